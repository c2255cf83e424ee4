package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningKey signs test credentials. The inspector never verifies signatures,
// so the key only matters for lab-backend round trips.
const SigningKey = "test-signing-key"

// TokenBuilder provides a fluent interface for building test bearer credentials.
type TokenBuilder struct {
	claims jwt.MapClaims
	key    string
}

// NewTokenBuilder creates a TokenBuilder with sensible defaults: a subject in
// the custom "id" claim and no expiry.
func NewTokenBuilder() *TokenBuilder {
	return &TokenBuilder{
		claims: jwt.MapClaims{"id": "user-1"},
		key:    SigningKey,
	}
}

// WithSubject sets the subject identifier in the custom "id" claim.
func (b *TokenBuilder) WithSubject(sub string) *TokenBuilder {
	b.claims["id"] = sub
	return b
}

// WithRegisteredSubject moves the subject into the registered "sub" claim.
func (b *TokenBuilder) WithRegisteredSubject(sub string) *TokenBuilder {
	delete(b.claims, "id")
	b.claims["sub"] = sub
	return b
}

// WithoutSubject drops the subject entirely, producing a structurally
// invalid credential.
func (b *TokenBuilder) WithoutSubject() *TokenBuilder {
	delete(b.claims, "id")
	delete(b.claims, "sub")
	return b
}

// ExpiresAt sets the exp claim.
func (b *TokenBuilder) ExpiresAt(t time.Time) *TokenBuilder {
	b.claims["exp"] = t.Unix()
	return b
}

// IssuedAt sets the iat claim.
func (b *TokenBuilder) IssuedAt(t time.Time) *TokenBuilder {
	b.claims["iat"] = t.Unix()
	return b
}

// WithKey overrides the signing key.
func (b *TokenBuilder) WithKey(key string) *TokenBuilder {
	b.key = key
	return b
}

// Build signs and returns the credential string.
func (b *TokenBuilder) Build(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, b.claims).SignedString([]byte(b.key))
	if err != nil {
		t.Fatalf("building test token: %v", err)
	}
	return signed
}

// Token is a shorthand for a valid credential with the given subject and expiry.
func Token(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	return NewTokenBuilder().WithSubject(subject).ExpiresAt(expiresAt).Build(t)
}
