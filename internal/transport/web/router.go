// Package web is the HTTP surface of the storefront shell. It stays thin:
// handlers delegate to the session service and the guarded data client, and
// transport concerns never leak into them.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"storefront/internal/guard"
	"storefront/internal/platform/middleware"
	"storefront/internal/session/models"
)

// SessionService is the slice of the session manager the web layer drives.
type SessionService interface {
	Snapshot() models.Snapshot
	Login(ctx context.Context, email, password string) error
	Signup(ctx context.Context, name, email, password string, role models.Role) error
	Logout(ctx context.Context) error
}

// Handler carries the handlers' shared dependencies. The data client must be
// the intercepted one so every outbound call gets the bearer credential and
// the response sniffing.
type Handler struct {
	sessions   SessionService
	data       *http.Client
	backendURL string
	loginPath  string
	logger     *slog.Logger
}

func NewHandler(sessions SessionService, data *http.Client, backendURL, loginPath string, logger *slog.Logger) *Handler {
	return &Handler{
		sessions:   sessions,
		data:       data,
		backendURL: backendURL,
		loginPath:  loginPath,
		logger:     logger,
	}
}

// NewRouter wires all shell endpoints. The guard's Observe middleware runs on
// every route so each request doubles as a navigation revalidation; Protect
// and RequireRole gate only the routes that need a session.
func NewRouter(h *Handler, g *guard.Guard, metricsHandler http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(g.Observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Get("/login", h.handleLoginForm)
	r.Post("/login", h.handleLogin)
	r.Get("/signup", h.handleSignupForm)
	r.Post("/signup", h.handleSignup)
	r.Post("/logout", h.handleLogout)

	r.Group(func(pr chi.Router) {
		pr.Use(g.Protect)
		pr.Get("/dashboard", h.handleDashboard)
		pr.Get("/orders", h.handleOrders)

		pr.Group(func(vr chi.Router) {
			vr.Use(g.RequireRole(models.RoleVendor))
			vr.Get("/vendor", h.handleVendor)
		})
	})

	return r
}
