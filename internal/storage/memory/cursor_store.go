package memory

import (
	"context"
	"sync"

	"solana-signal-engine/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]string
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		cursors: make(map[string]string),
	}
}

// GetCursor returns the cursor for name.
func (s *CursorStore) GetCursor(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor, ok := s.cursors[name]
	if !ok {
		return "", storage.ErrNotFound
	}
	return cursor, nil
}

// SetCursor saves the cursor for name.
func (s *CursorStore) SetCursor(_ context.Context, name, cursor string) error {
	if name == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[name] = cursor
	return nil
}

var _ storage.CursorStore = (*CursorStore)(nil)
