package storage

import (
	"context"

	"solana-signal-engine/internal/domain"
)

// WalletStore provides access to credible_wallets storage.
type WalletStore interface {
	// Upsert inserts a wallet or refreshes label, win rate, status and source of an
	// existing one. first_tracked_at of an existing wallet is never changed.
	Upsert(ctx context.Context, w *domain.CredibleWallet) error

	// Get retrieves a wallet by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.CredibleWallet, error)

	// List returns all wallets ordered by first_tracked_at ASC, address ASC.
	List(ctx context.Context) ([]*domain.CredibleWallet, error)

	// Delete removes a wallet. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, address string) error
}

// AssetStore provides access to assets storage.
// Assets are created together with their signal through SignalStore.InsertSignal.
type AssetStore interface {
	// Get retrieves an asset by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.Asset, error)

	// ListByStatus returns assets in the given status ordered by created_at ASC.
	ListByStatus(ctx context.Context, status domain.AssetStatus) ([]*domain.Asset, error)

	// TransitionStatus moves an asset from one status to another and records the
	// market cap observed. Returns ErrNotFound if the asset does not exist and
	// ErrConflict if its current status is not from.
	TransitionStatus(ctx context.Context, address string, from, to domain.AssetStatus, marketCap float64, at int64) error

	// UpdateMarketCap refreshes market_cap_at_scan. Returns ErrNotFound if not exists.
	UpdateMarketCap(ctx context.Context, address string, marketCap float64, at int64) error
}

// SignalStore provides access to signals storage.
type SignalStore interface {
	// InsertSignal atomically creates an asset and its signal.
	// Returns ErrDuplicateKey if the asset or a signal for it already exists;
	// in that case nothing is written.
	InsertSignal(ctx context.Context, a *domain.Asset, s *domain.Signal) error

	// GetByAsset retrieves the signal of an asset. Returns ErrNotFound if not exists.
	GetByAsset(ctx context.Context, assetAddress string) (*domain.Signal, error)

	// ListLatest returns up to limit signals joined with their asset, newest first.
	ListLatest(ctx context.Context, limit int) ([]*domain.SignalView, error)
}

// WinnerStore provides access to winner_assets storage.
type WinnerStore interface {
	// Upsert inserts a winner for its (address, run_date) key or refreshes market
	// figures of the existing row. Extraction state of an existing row is kept.
	// Returns true when a new row was created.
	Upsert(ctx context.Context, w *domain.WinnerAsset) (bool, error)

	// ListByExtraction returns winners in the given extraction states
	// ordered by gain_multiple DESC.
	ListByExtraction(ctx context.Context, states ...domain.ExtractionStatus) ([]*domain.WinnerAsset, error)

	// SetExtraction records the extraction result for every row of an address.
	SetExtraction(ctx context.Context, address string, status domain.ExtractionStatus, buyersFound int) error

	// ListSince returns winners whose run_date is on or after runDate.
	ListSince(ctx context.Context, runDate string) ([]*domain.WinnerAsset, error)

	// Count returns the number of winner rows.
	Count(ctx context.Context) (int, error)
}

// EarlyBuyerStore provides access to early_buyers storage.
type EarlyBuyerStore interface {
	// InsertBatch inserts buyers, skipping (winner_address, wallet) pairs that
	// already exist. Returns the number of rows inserted.
	InsertBatch(ctx context.Context, buyers []*domain.EarlyBuyer) (int, error)

	// ListByWinner returns buyers of a winner ordered by entry_time ASC.
	ListByWinner(ctx context.Context, winnerAddress string) ([]*domain.EarlyBuyer, error)

	// CountByWinner returns the number of buyers stored for a winner.
	CountByWinner(ctx context.Context, winnerAddress string) (int, error)

	// AggregateByWallet groups buyers of winners with run_date on or after
	// sinceRunDate by wallet and returns wallets that bought at least minWinners
	// distinct winners, ordered by winner count DESC, wallet ASC.
	AggregateByWallet(ctx context.Context, sinceRunDate string, minWinners int) ([]*domain.WalletAppearance, error)

	// Count returns the number of buyer rows.
	Count(ctx context.Context) (int, error)
}

// DecisionRecord is one analyzer decision kept for audit.
type DecisionRecord struct {
	ID         string
	Address    string
	Outcome    domain.Outcome
	Reason     domain.Reason
	MatchCount int
	Score      int
	Err        string
	DecidedAt  int64 // ms
}

// DecisionLog provides append-only access to the analyzer decision audit log.
type DecisionLog interface {
	// Record appends decisions.
	Record(ctx context.Context, records []*DecisionRecord) error

	// ListByAddress returns decisions of an asset ordered by decided_at ASC.
	ListByAddress(ctx context.Context, address string) ([]*DecisionRecord, error)
}

// CursorStore persists named ingestion cursors so polling resumes after restarts.
type CursorStore interface {
	// GetCursor returns the cursor for name. Returns ErrNotFound if never set.
	GetCursor(ctx context.Context, name string) (string, error)

	// SetCursor saves the cursor for name.
	SetCursor(ctx context.Context, name, cursor string) error
}
