package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

// WinnerStore implements storage.WinnerStore using PostgreSQL.
type WinnerStore struct {
	pool *Pool
}

// NewWinnerStore creates a new WinnerStore.
func NewWinnerStore(pool *Pool) *WinnerStore {
	return &WinnerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WinnerStore = (*WinnerStore)(nil)

const winnerColumns = `address, run_date, symbol, pair_address, dex_id, start_market_cap, peak_market_cap,
	gain_multiple, time_to_peak_minutes, extraction, buyers_found, discovered_at`

// Upsert inserts a winner for (address, run_date) or refreshes market figures.
// xmax = 0 identifies a freshly inserted row.
func (s *WinnerStore) Upsert(ctx context.Context, w *domain.WinnerAsset) (created bool, err error) {
	if w == nil || w.Address == "" || w.RunDate == "" {
		return false, storage.ErrInvalidInput
	}
	defer observe("winner_upsert", time.Now(), &err)

	extraction := w.Extraction
	if extraction == "" {
		extraction = domain.ExtractionPending
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO winner_assets (`+winnerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (address, run_date) DO UPDATE
		SET start_market_cap = EXCLUDED.start_market_cap,
		    peak_market_cap = EXCLUDED.peak_market_cap,
		    gain_multiple = EXCLUDED.gain_multiple,
		    time_to_peak_minutes = EXCLUDED.time_to_peak_minutes,
		    symbol = COALESCE(NULLIF(EXCLUDED.symbol, ''), winner_assets.symbol)
		RETURNING (xmax = 0)
	`,
		w.Address, w.RunDate, w.Symbol, w.PairAddress, w.DexID,
		w.StartMarketCap, w.PeakMarketCap, w.GainMultiple, w.TimeToPeakMinutes,
		string(extraction), w.BuyersFound, w.DiscoveredAt,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert winner: %w", err)
	}
	return created, nil
}

// ListByExtraction returns winners in the given states ordered by gain DESC.
func (s *WinnerStore) ListByExtraction(ctx context.Context, states ...domain.ExtractionStatus) ([]*domain.WinnerAsset, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}

	return s.query(ctx, `
		SELECT `+winnerColumns+`
		FROM winner_assets
		WHERE extraction = ANY($1)
		ORDER BY gain_multiple DESC, address ASC, run_date ASC
	`, names)
}

// SetExtraction records the extraction result for every row of an address.
func (s *WinnerStore) SetExtraction(ctx context.Context, address string, status domain.ExtractionStatus, buyersFound int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE winner_assets SET extraction = $2, buyers_found = $3 WHERE address = $1
	`, address, string(status), buyersFound)
	if err != nil {
		return fmt.Errorf("set extraction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListSince returns winners whose run_date is on or after runDate.
func (s *WinnerStore) ListSince(ctx context.Context, runDate string) ([]*domain.WinnerAsset, error) {
	return s.query(ctx, `
		SELECT `+winnerColumns+`
		FROM winner_assets
		WHERE run_date >= $1
		ORDER BY gain_multiple DESC, address ASC, run_date ASC
	`, runDate)
}

// Count returns the number of winner rows.
func (s *WinnerStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM winner_assets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count winners: %w", err)
	}
	return n, nil
}

func (s *WinnerStore) query(ctx context.Context, sql string, args ...any) ([]*domain.WinnerAsset, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query winners: %w", err)
	}
	defer rows.Close()

	var result []*domain.WinnerAsset
	for rows.Next() {
		w, err := scanWinner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan winner: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func scanWinner(row pgx.Row) (*domain.WinnerAsset, error) {
	var w domain.WinnerAsset
	var extraction string
	err := row.Scan(
		&w.Address,
		&w.RunDate,
		&w.Symbol,
		&w.PairAddress,
		&w.DexID,
		&w.StartMarketCap,
		&w.PeakMarketCap,
		&w.GainMultiple,
		&w.TimeToPeakMinutes,
		&extraction,
		&w.BuyersFound,
		&w.DiscoveredAt,
	)
	if err != nil {
		return nil, err
	}
	w.Extraction = domain.ExtractionStatus(extraction)
	return &w, nil
}
