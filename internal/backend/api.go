// Package backend consumes the storefront REST backend as an opaque
// collaborator. It owns the wire shapes and normalizes the backend's
// duck-typed user payloads into the canonical Identity at this boundary.
package backend

import (
	"context"

	"storefront/internal/session/models"
)

// AuthResult is a successful login or signup response: a fresh bearer
// credential plus the normalized user it belongs to.
type AuthResult struct {
	Token string
	User  models.Identity
}

// API is the backend surface the session guard depends on.
//
// Error Contract:
//   - Login and Signup return CodeInvalidCredentials carrying the backend's
//     rejection message verbatim (generic fallback when the body has none).
//   - FetchUser returns CodeNotFound for 404, CodeUnauthorized for 401/403,
//     and CodeUnavailable for transport failures and 5xx responses.
type API interface {
	Login(ctx context.Context, email, password string) (AuthResult, error)
	Signup(ctx context.Context, name, email, password string, role models.Role) (AuthResult, error)
	FetchUser(ctx context.Context, cred, userID string) (models.Identity, error)
}
