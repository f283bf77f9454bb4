package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process ActivityStore for tests and single-binary
// deployments without Redis.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]time.Time)}
}

func (s *MemoryStore) LastActivity(_ context.Context, principalID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.data[principalID]
	return at, ok, nil
}

func (s *MemoryStore) SetLastActivity(_ context.Context, principalID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[principalID] = at
	return nil
}

func (s *MemoryStore) ClearLastActivity(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, principalID)
	return nil
}
