package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

// EarlyBuyerStore implements storage.EarlyBuyerStore using PostgreSQL.
type EarlyBuyerStore struct {
	pool *Pool
}

// NewEarlyBuyerStore creates a new EarlyBuyerStore.
func NewEarlyBuyerStore(pool *Pool) *EarlyBuyerStore {
	return &EarlyBuyerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EarlyBuyerStore = (*EarlyBuyerStore)(nil)

// InsertBatch inserts buyers in one transaction, skipping existing pairs.
func (s *EarlyBuyerStore) InsertBatch(ctx context.Context, buyers []*domain.EarlyBuyer) (inserted int, err error) {
	if len(buyers) == 0 {
		return 0, nil
	}
	for _, b := range buyers {
		if b == nil || b.WinnerAddress == "" || b.Wallet == "" {
			return 0, storage.ErrInvalidInput
		}
	}
	defer observe("early_buyer_insert_batch", time.Now(), &err)

	batch := &pgx.Batch{}
	for _, b := range buyers {
		batch.Queue(`
			INSERT INTO early_buyers (winner_address, wallet, entry_time, entry_price, exit_time, signature)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (winner_address, wallet) DO NOTHING
		`, b.WinnerAddress, b.Wallet, b.EntryTime, b.EntryPrice, b.ExitTime, b.Signature)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for range buyers {
		tag, execErr := results.Exec()
		if execErr != nil {
			results.Close()
			return 0, fmt.Errorf("insert early buyer: %w", execErr)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit early buyers: %w", err)
	}
	return inserted, nil
}

// ListByWinner returns buyers of a winner ordered by entry_time ASC.
func (s *EarlyBuyerStore) ListByWinner(ctx context.Context, winnerAddress string) ([]*domain.EarlyBuyer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT winner_address, wallet, entry_time, entry_price, exit_time, signature
		FROM early_buyers
		WHERE winner_address = $1
		ORDER BY entry_time ASC, wallet ASC
	`, winnerAddress)
	if err != nil {
		return nil, fmt.Errorf("list early buyers: %w", err)
	}
	defer rows.Close()

	var result []*domain.EarlyBuyer
	for rows.Next() {
		var b domain.EarlyBuyer
		if err := rows.Scan(&b.WinnerAddress, &b.Wallet, &b.EntryTime, &b.EntryPrice, &b.ExitTime, &b.Signature); err != nil {
			return nil, fmt.Errorf("scan early buyer: %w", err)
		}
		result = append(result, &b)
	}
	return result, rows.Err()
}

// CountByWinner returns the number of buyers stored for a winner.
func (s *EarlyBuyerStore) CountByWinner(ctx context.Context, winnerAddress string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM early_buyers WHERE winner_address = $1`, winnerAddress).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count early buyers: %w", err)
	}
	return n, nil
}

// AggregateByWallet returns wallets that bought at least minWinners distinct
// winners discovered on or after sinceRunDate.
func (s *EarlyBuyerStore) AggregateByWallet(ctx context.Context, sinceRunDate string, minWinners int) (result []*domain.WalletAppearance, err error) {
	defer observe("early_buyer_aggregate", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		WITH winners AS (
			SELECT address, MAX(symbol) AS symbol
			FROM winner_assets
			WHERE run_date >= $1
			GROUP BY address
		)
		SELECT eb.wallet,
		       COUNT(DISTINCT eb.winner_address) AS winner_count,
		       ARRAY_REMOVE(ARRAY_AGG(DISTINCT NULLIF(w.symbol, '') ORDER BY NULLIF(w.symbol, '')), NULL) AS symbols
		FROM early_buyers eb
		JOIN winners w ON w.address = eb.winner_address
		GROUP BY eb.wallet
		HAVING COUNT(DISTINCT eb.winner_address) >= $2
		ORDER BY winner_count DESC, eb.wallet ASC
	`, sinceRunDate, minWinners)
	if err != nil {
		return nil, fmt.Errorf("aggregate early buyers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.WalletAppearance
		if err := rows.Scan(&a.Wallet, &a.WinnerCount, &a.Symbols); err != nil {
			return nil, fmt.Errorf("scan appearance: %w", err)
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

// Count returns the number of buyer rows.
func (s *EarlyBuyerStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM early_buyers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count early buyers: %w", err)
	}
	return n, nil
}
