package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore implements Store in memory. Used when no checkpoint URI is
// configured and in tests.
type MemoryStore struct {
	cursor Cursor
	mu     sync.RWMutex
}

// NewMemoryStore creates a new MemoryStore instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load retrieves the current cursor from memory
func (s *MemoryStore) Load(ctx context.Context) (Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor, nil
}

// Save stores the cursor in memory
func (s *MemoryStore) Save(ctx context.Context, cursor Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	return nil
}
