package models

import (
	dErrors "storefront/pkg/domain-errors"
)

// UserPayload is the backend's duck-typed user object. Depending on the
// endpoint the identifier arrives as either "_id" or "id"; normalization into
// the canonical Identity shape happens here, at the system boundary.
type UserPayload struct {
	MongoID string `json:"_id"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

// Normalize converts the wire payload into the canonical Identity.
// It fails when no identifier is present or the role is unknown.
func (p UserPayload) Normalize() (Identity, error) {
	id := p.MongoID
	if id == "" {
		id = p.ID
	}
	if id == "" {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "user payload missing id")
	}

	role, err := ParseRole(p.Role)
	if err != nil {
		return Identity{}, err
	}

	return Identity{
		ID:    id,
		Name:  p.Name,
		Email: p.Email,
		Role:  role,
	}, nil
}
