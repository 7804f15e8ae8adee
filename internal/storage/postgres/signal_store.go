package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

// SignalStore implements storage.SignalStore and storage.AssetStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.SignalStore = (*SignalStore)(nil)
	_ storage.AssetStore  = (*SignalStore)(nil)
)

const assetColumns = `address, symbol, name, creator, created_at, market_cap_at_scan, status, updated_at`

// InsertSignal atomically creates an asset and its signal in one transaction.
func (s *SignalStore) InsertSignal(ctx context.Context, a *domain.Asset, sig *domain.Signal) (err error) {
	if a == nil || sig == nil || a.Address == "" || sig.AssetAddress != a.Address {
		return storage.ErrInvalidInput
	}
	defer observe("signal_insert", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		a.Address, a.Symbol, a.Name, a.Creator, a.CreatedAt,
		a.MarketCapAtScan, string(a.Status), a.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert asset: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO signals (id, asset_address, match_count, score, created_at, executed)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		sig.ID, sig.AssetAddress, sig.MatchCount, sig.Score, sig.CreatedAt, sig.Executed,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert signal: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit signal: %w", err)
	}
	return nil
}

// GetByAsset retrieves the signal of an asset. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByAsset(ctx context.Context, assetAddress string) (*domain.Signal, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, asset_address, match_count, score, created_at, executed
		FROM signals
		WHERE asset_address = $1
	`, assetAddress)

	var sig domain.Signal
	err := row.Scan(&sig.ID, &sig.AssetAddress, &sig.MatchCount, &sig.Score, &sig.CreatedAt, &sig.Executed)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get signal: %w", err)
	}
	return &sig, nil
}

// ListLatest returns up to limit signals with their asset, newest first.
func (s *SignalStore) ListLatest(ctx context.Context, limit int) (result []*domain.SignalView, err error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	defer observe("signal_list_latest", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.asset_address, s.match_count, s.score, s.created_at, s.executed,
		       a.address, a.symbol, a.name, a.creator, a.created_at, a.market_cap_at_scan, a.status, a.updated_at
		FROM signals s
		JOIN assets a ON a.address = s.asset_address
		ORDER BY s.created_at DESC, s.id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list latest signals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.SignalView
		var status string
		err := rows.Scan(
			&v.Signal.ID, &v.Signal.AssetAddress, &v.Signal.MatchCount, &v.Signal.Score,
			&v.Signal.CreatedAt, &v.Signal.Executed,
			&v.Asset.Address, &v.Asset.Symbol, &v.Asset.Name, &v.Asset.Creator,
			&v.Asset.CreatedAt, &v.Asset.MarketCapAtScan, &status, &v.Asset.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal view: %w", err)
		}
		v.Asset.Status = domain.AssetStatus(status)
		result = append(result, &v)
	}
	return result, rows.Err()
}

// Get retrieves an asset by address. Returns ErrNotFound if not exists.
func (s *SignalStore) Get(ctx context.Context, address string) (*domain.Asset, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE address = $1`, address)

	a, err := scanAsset(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// ListByStatus returns assets in the given status ordered by created_at ASC.
func (s *SignalStore) ListByStatus(ctx context.Context, status domain.AssetStatus) (result []*domain.Asset, err error) {
	defer observe("asset_list_by_status", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		SELECT `+assetColumns+`
		FROM assets
		WHERE status = $1
		ORDER BY created_at ASC, address ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list assets by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// TransitionStatus moves an asset from one status to another with a
// compare-and-set on the current status.
func (s *SignalStore) TransitionStatus(ctx context.Context, address string, from, to domain.AssetStatus, marketCap float64, at int64) error {
	if _, err := from.TransitionTo(to); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE assets
		SET status = $3, market_cap_at_scan = $4, updated_at = $5
		WHERE address = $1 AND status = $2
	`, address, string(from), string(to), marketCap, at)
	if err != nil {
		return fmt.Errorf("transition asset status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a missing asset from a status that moved underneath us.
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM assets WHERE address = $1)`, address).Scan(&exists); err != nil {
		return fmt.Errorf("check asset exists: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

// UpdateMarketCap refreshes market_cap_at_scan.
func (s *SignalStore) UpdateMarketCap(ctx context.Context, address string, marketCap float64, at int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE assets SET market_cap_at_scan = $2, updated_at = $3 WHERE address = $1
	`, address, marketCap, at)
	if err != nil {
		return fmt.Errorf("update market cap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var a domain.Asset
	var status string
	err := row.Scan(
		&a.Address,
		&a.Symbol,
		&a.Name,
		&a.Creator,
		&a.CreatedAt,
		&a.MarketCapAtScan,
		&status,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.AssetStatus(status)
	return &a, nil
}
