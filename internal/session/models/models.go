package models

import (
	"fmt"

	dErrors "storefront/pkg/domain-errors"
)

// This file contains pure domain models for the session guard: entities
// that should not depend on transport or HTTP-specific concerns.

// Role is the storefront role carried by an authenticated identity.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// ParseRole validates a backend-supplied role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCustomer, RoleVendor, RoleAdmin:
		return Role(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown role %q", s))
}

// SelfAssignable reports whether the role may be chosen at signup.
// Admin accounts are provisioned out of band.
func (r Role) SelfAssignable() bool {
	return r == RoleCustomer || r == RoleVendor
}

// Identity is the normalized in-memory representation of the authenticated
// user. It is owned exclusively by the session manager and replaced wholesale,
// never partially updated.
type Identity struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// State is the authenticated-identity state of the session manager.
type State int

const (
	// StateBootstrapping is the startup phase before the stored credential has
	// been resolved to Anonymous or Authenticated.
	StateBootstrapping State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Snapshot is a race-free whole-value view of the session manager's state.
// Identity is non-nil exactly when State is StateAuthenticated.
type Snapshot struct {
	State    State
	Identity *Identity
}

// Authenticated reports whether the snapshot holds a live identity.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Identity != nil
}
