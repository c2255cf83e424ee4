package credential

import (
	"context"
	"fmt"
	"sync"

	"storefront/internal/sentinel"
)

// MemoryStore keeps the credential in process memory. Used by tests and by
// deployments that prefer to drop the session on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	cred string
	set  bool
}

// NewMemoryStore constructs an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return "", fmt.Errorf("credential slot empty: %w", sentinel.ErrNoCredential)
	}
	return s.cred, nil
}

func (s *MemoryStore) Set(_ context.Context, cred string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	s.set = true
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = ""
	s.set = false
	return nil
}

var _ Store = (*MemoryStore)(nil)
