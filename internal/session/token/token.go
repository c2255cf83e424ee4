// Package token inspects bearer credentials locally, without a network round
// trip. The client holds no signing key; signature verification is the
// backend's job. Every check is a pure function of the credential string and
// an explicit now, so callers inject clocks and results stay deterministic.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "storefront/pkg/domain-errors"
)

// Claims is the decoded view of a credential. The backend issues tokens whose
// subject travels in a custom "id" claim; the registered "sub" claim is kept
// as a fallback.
type Claims struct {
	UserID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns the subject identifier, preferring the "id" claim.
func (c *Claims) SubjectID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

var parser = jwt.NewParser()

// Decode extracts claims from a credential without verifying its signature.
// A malformed payload yields a CodeDecodeFailed domain error.
func Decode(cred string) (*Claims, error) {
	if cred == "" {
		return nil, dErrors.New(dErrors.CodeDecodeFailed, "empty credential")
	}
	claims := new(Claims)
	if _, _, err := parser.ParseUnverified(cred, claims); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecodeFailed, "malformed credential")
	}
	return claims, nil
}

// IsStructurallyValid reports whether the credential decodes and carries a
// subject identifier. A credential with no subject is never valid,
// independent of expiry.
func IsStructurallyValid(cred string) bool {
	claims, err := Decode(cred)
	if err != nil {
		return false
	}
	return claims.SubjectID() != ""
}

// IsExpired reports whether the credential's expiry is in the past.
// Decode failures count as expired (fail closed). A missing exp claim means
// the credential does not expire.
func IsExpired(cred string, now time.Time) bool {
	claims, err := Decode(cred)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Before(now)
}

// IsValid combines the structural and expiry checks.
func IsValid(cred string, now time.Time) bool {
	return IsStructurallyValid(cred) && !IsExpired(cred, now)
}

// RemainingLifetime returns how long the credential stays valid and whether
// that bound exists. bounded is false for credentials without an exp claim;
// such credentials are valid indefinitely and the returned duration is zero.
func RemainingLifetime(cred string, now time.Time) (remaining time.Duration, bounded bool) {
	claims, err := Decode(cred)
	if err != nil {
		return 0, true
	}
	if claims.ExpiresAt == nil {
		return 0, false
	}
	d := claims.ExpiresAt.Time.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// ExpiryTime returns the credential's expiry timestamp, if it has one.
func ExpiryTime(cred string) (time.Time, bool) {
	claims, err := Decode(cred)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
