// Command lab-backend is a small stand-in for the storefront REST backend,
// meant for local development of the shell. It keeps users in memory, hands
// out short-lived HS256 tokens with the subject in the custom "id" claim, and
// rejects stale bearers with the same message shapes the real backend uses.
package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	dErrors "storefront/pkg/domain-errors"

	"storefront/internal/platform/logger"
	"storefront/internal/platform/middleware"
	"storefront/internal/session/models"
	"storefront/internal/transport/httputil"
)

const tokenTTL = 15 * time.Minute

type user struct {
	ID           string
	Name         string
	Email        string
	Role         models.Role
	PasswordHash []byte
}

type server struct {
	key []byte

	mu      sync.RWMutex
	byEmail map[string]*user
	byID    map[string]*user
}

func newServer(key string) *server {
	return &server{
		key:     []byte(key),
		byEmail: make(map[string]*user),
		byID:    make(map[string]*user),
	}
}

func main() {
	log := logger.New()
	addr := getenv("LAB_BACKEND_ADDR", ":8080")
	key := getenv("LAB_BACKEND_SIGNING_KEY", "lab-signing-key")

	s := newServer(key)
	s.seedDemoUsers(log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/users", s.handleSignup)
	r.Get("/users/{id}", s.handleGetUser)
	r.Get("/orders", s.handleOrders)

	log.Info("lab backend listening", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Error("lab backend exited", "error", err)
		os.Exit(1)
	}
}

// seedDemoUsers gives the shell something to log into out of the box.
func (s *server) seedDemoUsers(log *slog.Logger) {
	for _, seed := range []struct {
		name, email, password string
		role                  models.Role
	}{
		{"Ada Lovelace", "ada@example.com", "hunter2", models.RoleCustomer},
		{"Vera Vendor", "vera@example.com", "hunter2", models.RoleVendor},
	} {
		if _, err := s.createUser(seed.name, seed.email, seed.password, seed.role); err == nil {
			log.Info("seeded user", "email", seed.email, "role", string(seed.role))
		}
	}
}

func (s *server) createUser(name, email, password string, role models.Role) (*user, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "hashing password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[email]; exists {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "Email already registered")
	}
	u := &user{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
	}
	s.byEmail[email] = u
	s.byID[u.ID] = u
	return u, nil
}

func (s *server) issueToken(u *user) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":  u.ID,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	s.mu.RLock()
	u, ok := s.byEmail[req.Email]
	s.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidCredentials, "Invalid credentials"))
		return
	}

	s.writeAuthResponse(w, u)
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "email and password are required"))
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil || !role.SelfAssignable() {
		role = models.RoleCustomer
	}

	u, err := s.createUser(req.Name, req.Email, req.Password, role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	s.writeAuthResponse(w, u)
}

func (s *server) writeAuthResponse(w http.ResponseWriter, u *user) {
	token, err := s.issueToken(u)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "signing token"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  userPayload(u),
	})
}

func (s *server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authorize(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if caller.ID != id && caller.Role != models.RoleAdmin {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Unauthorized access"))
		return
	}

	s.mu.RLock()
	u, found := s.byID[id]
	s.mu.RUnlock()
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "user not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, userPayload(u))
}

func (s *server) handleOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authorize(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, []map[string]string{
		{"id": uuid.New().String(), "user_id": caller.ID, "status": "shipped"},
		{"id": uuid.New().String(), "user_id": caller.ID, "status": "processing"},
	})
}

// authorize verifies the bearer token and resolves the caller. The rejection
// messages mirror the real backend so the shell's interceptor treats both the
// same way.
func (s *server) authorize(w http.ResponseWriter, r *http.Request) (*user, bool) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
		return nil, false
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "Token expired"
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, msg))
		return nil, false
	}

	id, _ := claims["id"].(string)
	s.mu.RLock()
	u, found := s.byID[id]
	s.mu.RUnlock()
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
		return nil, false
	}
	return u, true
}

func userPayload(u *user) map[string]any {
	return map[string]any{
		"_id":   u.ID,
		"name":  u.Name,
		"email": u.Email,
		"role":  string(u.Role),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
