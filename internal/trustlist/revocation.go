// internal/trustlist/revocation.go
package trustlist

import (
	"context"
	"sync"

	"github.com/solatis/healthcert/internal/types"
)

// Store is a revocation list that can be extended. The list only grows; no
// implementation supports removing an identifier.
type Store interface {
	types.RevocationStore
	Add(ctx context.Context, certificateIDs ...string) error
}

// MemoryStore keeps revoked identifiers in a set.
type MemoryStore struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding ids.
func NewMemoryStore(ids ...string) *MemoryStore {
	s := &MemoryStore{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

func (s *MemoryStore) Contains(_ context.Context, certificateID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[certificateID]
	return ok, nil
}

// Add inserts ids; duplicates and empty strings are ignored.
func (s *MemoryStore) Add(_ context.Context, certificateIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range certificateIDs {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return nil
}

// Len returns the number of distinct revoked identifiers.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
