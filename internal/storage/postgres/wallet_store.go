package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

const walletColumns = `address, label, win_rate, status, source, first_tracked_at, updated_at`

// Upsert inserts a wallet or refreshes an existing one, keeping first_tracked_at.
func (s *WalletStore) Upsert(ctx context.Context, w *domain.CredibleWallet) (err error) {
	if w == nil || w.Address == "" {
		return storage.ErrInvalidInput
	}
	defer observe("wallet_upsert", time.Now(), &err)

	query := `
		INSERT INTO credible_wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE
		SET label = EXCLUDED.label,
		    win_rate = EXCLUDED.win_rate,
		    status = EXCLUDED.status,
		    source = EXCLUDED.source,
		    updated_at = EXCLUDED.updated_at
	`

	_, err = s.pool.Exec(ctx, query,
		w.Address,
		w.Label,
		w.WinRate,
		string(w.Status),
		string(w.Source),
		w.FirstTrackedAt,
		w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	return nil
}

// Get retrieves a wallet by address. Returns ErrNotFound if not exists.
func (s *WalletStore) Get(ctx context.Context, address string) (*domain.CredibleWallet, error) {
	query := `SELECT ` + walletColumns + ` FROM credible_wallets WHERE address = $1`

	w, err := scanWallet(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// List returns all wallets ordered by first_tracked_at, then address.
func (s *WalletStore) List(ctx context.Context) (result []*domain.CredibleWallet, err error) {
	defer observe("wallet_list", time.Now(), &err)

	query := `SELECT ` + walletColumns + ` FROM credible_wallets ORDER BY first_tracked_at ASC, address ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// Delete removes a wallet. Returns ErrNotFound if not exists.
func (s *WalletStore) Delete(ctx context.Context, address string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM credible_wallets WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.CredibleWallet, error) {
	var w domain.CredibleWallet
	var status, source string
	err := row.Scan(
		&w.Address,
		&w.Label,
		&w.WinRate,
		&status,
		&source,
		&w.FirstTrackedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.Status = domain.WalletStatus(status)
	w.Source = domain.DiscoverySource(source)
	return &w, nil
}
