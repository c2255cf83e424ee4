// Package credential persists the single bearer credential a storefront
// process holds. The store is a dumb slot: one whole value, no validation.
package credential

import "context"

// Store is the persisted slot for the process's one bearer credential.
//
// Error Contract:
//   - Get returns sentinel.ErrNoCredential (optionally wrapped) when no
//     credential is stored.
//   - Set and Clear replace or remove the slot as a whole value; partial
//     updates do not exist.
//   - Clear is idempotent: clearing an empty slot succeeds.
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, cred string) error
	Clear(ctx context.Context) error
}
