// Package guard gates protected routes on the current session snapshot and
// feeds the navigation revalidation trigger.
package guard

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/credential"
	"storefront/internal/session/broadcast"
	"storefront/internal/session/metrics"
	"storefront/internal/session/models"
	"storefront/internal/session/token"
)

// Decision is the outcome of evaluating a snapshot against a protected route.
type Decision int

const (
	// DecisionLoading holds the route while the restore attempt is unresolved.
	DecisionLoading Decision = iota
	// DecisionRedirect sends the visitor to the login page.
	DecisionRedirect
	// DecisionRender lets the request through.
	DecisionRender
)

// Evaluate maps a session snapshot to a routing decision. A bootstrapping
// session never redirects; it holds until the restore attempt resolves.
func Evaluate(snap models.Snapshot) Decision {
	switch snap.State {
	case models.StateBootstrapping:
		return DecisionLoading
	case models.StateAuthenticated:
		return DecisionRender
	default:
		return DecisionRedirect
	}
}

// SessionReader is the slice of the session manager the guard needs.
type SessionReader interface {
	Snapshot() models.Snapshot
}

const defaultLoginPath = "/login"

// loadingPage is served while the session restore is still in flight. The
// refresh keeps dumb clients polling until the snapshot resolves.
const loadingPage = `<!doctype html>
<html><head><meta http-equiv="refresh" content="1"><title>Loading</title></head>
<body><p>Restoring your session&hellip;</p></body></html>
`

// Guard evaluates protected routes. It reads session state, never writes it;
// anything suspicious goes out as a broadcaster signal for the manager to act
// on.
type Guard struct {
	sessions  SessionReader
	creds     credential.Store
	bus       *broadcast.Broadcaster
	loginPath string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithLoginPath overrides the redirect target for anonymous visitors.
func WithLoginPath(path string) Option {
	return func(g *Guard) {
		if path != "" {
			g.loginPath = path
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithMetrics attaches session metrics.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = mx }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New builds a Guard around the given session reader, credential store and
// broadcaster.
func New(sessions SessionReader, creds credential.Store, bus *broadcast.Broadcaster, opts ...Option) *Guard {
	g := &Guard{
		sessions:  sessions,
		creds:     creds,
		bus:       bus,
		loginPath: defaultLoginPath,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Protect is middleware for routes that require a live session. While the
// session is still bootstrapping it serves a holding page rather than
// redirecting, so a slow restore never bounces a logged-in visitor to the
// login form.
func (g *Guard) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := g.sessions.Snapshot()
		switch Evaluate(snap) {
		case DecisionLoading:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, loadingPage)
		case DecisionRedirect:
			http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
		case DecisionRender:
			if !g.credentialBacksSession(r.Context()) {
				g.logger.InfoContext(r.Context(), "stored credential no longer backs the session", "path", r.URL.Path)
				g.signalInvalid(r.Context(), metrics.SourceGuard)
				http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		}
	})
}

// RequireRole is middleware for routes restricted to one role. Admins pass
// any role gate. It implies Protect's anonymous handling but not its holding
// page, so stack it behind Protect.
func (g *Guard) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.sessions.Snapshot()
			if !snap.Authenticated() {
				http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
				return
			}
			if snap.Identity.Role != role && snap.Identity.Role != models.RoleAdmin {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ObserveNavigation runs the navigation revalidation trigger for one route
// change. It only inspects a live session that still has a stored credential;
// in every other combination it stays silent and lets the manager's own
// machinery resolve things.
func (g *Guard) ObserveNavigation(ctx context.Context, path string) {
	if g.sessions.Snapshot().State != models.StateAuthenticated {
		return
	}
	cred, err := g.creds.Get(ctx)
	if err != nil {
		return
	}
	if g.metrics != nil {
		g.metrics.Revalidations.WithLabelValues(metrics.TriggerNavigation).Inc()
	}
	if !token.IsValid(cred, g.now()) {
		g.logger.InfoContext(ctx, "credential failed navigation check", "path", path)
		g.signalInvalid(ctx, metrics.SourceNavigation)
	}
}

// Observe wraps ObserveNavigation as middleware, treating every request as a
// route change. It never blocks the request.
func (g *Guard) Observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.ObserveNavigation(r.Context(), r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// credentialBacksSession reports whether the stored credential still passes
// the local check. The guard counts this as a revalidation like any other
// trigger.
func (g *Guard) credentialBacksSession(ctx context.Context) bool {
	if g.metrics != nil {
		g.metrics.Revalidations.WithLabelValues(metrics.TriggerGuard).Inc()
	}
	cred, err := g.creds.Get(ctx)
	if err != nil {
		return false
	}
	return token.IsValid(cred, g.now())
}

func (g *Guard) signalInvalid(ctx context.Context, source string) {
	if err := g.creds.Clear(ctx); err != nil {
		g.logger.WarnContext(ctx, "clearing credential", "error", err)
	}
	if g.metrics != nil {
		g.metrics.Invalidations.WithLabelValues(source).Inc()
	}
	g.bus.Signal()
}
