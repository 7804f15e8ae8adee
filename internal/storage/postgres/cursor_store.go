package postgres

import (
	"context"
	"fmt"

	"solana-signal-engine/internal/storage"
)

// CursorStore implements storage.CursorStore using the ingest_cursors table.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new CursorStore.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// GetCursor returns the cursor for name. Returns ErrNotFound if never set.
func (s *CursorStore) GetCursor(ctx context.Context, name string) (string, error) {
	var cursor string
	err := s.pool.QueryRow(ctx, `SELECT cursor_value FROM ingest_cursors WHERE name = $1`, name).Scan(&cursor)
	if err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get cursor: %w", err)
	}
	return cursor, nil
}

// SetCursor saves the cursor for name.
func (s *CursorStore) SetCursor(ctx context.Context, name, cursor string) error {
	if name == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_cursors (name, cursor_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE
		SET cursor_value = EXCLUDED.cursor_value,
		    updated_at = NOW()
	`, name, cursor)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}
