// Package service exposes the read and curation operations served by the
// HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/credibility"
	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/health"
	"solana-signal-engine/internal/scheduler"
	"solana-signal-engine/internal/storage"
	"solana-signal-engine/internal/walletdiscovery"
)

const (
	DefaultSignalLimit = 50
	MaxSignalLimit     = 500
)

// WalletRegistry is the credible wallet set.
type WalletRegistry interface {
	Snapshot() *credibility.Snapshot
	Upsert(ctx context.Context, address, label string) (domain.CredibleWallet, error)
	SetStatus(ctx context.Context, address string, status domain.WalletStatus) (domain.CredibleWallet, error)
	Delete(ctx context.Context, address string) error
}

// Discovery runs wallet discovery.
type Discovery interface {
	Run(ctx context.Context) (*walletdiscovery.RunSummary, error)
	Running() bool
	Status(ctx context.Context) (*walletdiscovery.Status, error)
}

// HealthSource reports the store health.
type HealthSource interface {
	State() health.State
}

// BacklogSource reports queued analyses.
type BacklogSource interface {
	Backlog() int
}

// JobSource reports scheduled job status.
type JobSource interface {
	Status() []scheduler.JobStatus
}

// Options for creating a Service.
type Options struct {
	// Required
	Signals storage.SignalStore
	Wallets WalletRegistry

	// Optional
	Decisions storage.DecisionLog
	Discovery Discovery
	Health    HealthSource
	Backlog   BacklogSource
	Jobs      JobSource
	// Context bounds background discovery runs. Default: context.Background().
	Context context.Context
	Logger  *zap.Logger
}

// Service implements the API operations.
type Service struct {
	signals   storage.SignalStore
	wallets   WalletRegistry
	decisions storage.DecisionLog
	discovery Discovery
	health    HealthSource
	backlog   BacklogSource
	jobs      JobSource
	bg        context.Context
	logger    *zap.Logger
	started   time.Time
}

// Errors returned for unavailable features.
var (
	ErrDiscoveryDisabled = errors.New("wallet discovery is not configured")
	ErrDecisionsDisabled = errors.New("decision log is not configured")
)

// New creates a Service.
func New(opts Options) *Service {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		signals:   opts.Signals,
		wallets:   opts.Wallets,
		decisions: opts.Decisions,
		discovery: opts.Discovery,
		health:    opts.Health,
		backlog:   opts.Backlog,
		jobs:      opts.Jobs,
		bg:        opts.Context,
		logger:    opts.Logger.Named("service"),
		started:   time.Now(),
	}
}

// ListLatestSignals returns the newest signals. limit is clamped to
// [1, MaxSignalLimit]; 0 selects DefaultSignalLimit.
func (s *Service) ListLatestSignals(ctx context.Context, limit int) ([]*domain.SignalView, error) {
	switch {
	case limit <= 0:
		limit = DefaultSignalLimit
	case limit > MaxSignalLimit:
		limit = MaxSignalLimit
	}
	views, err := s.signals.ListLatest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	return views, nil
}

// ListCredibleWallets returns every wallet, active and paused, oldest first.
func (s *Service) ListCredibleWallets() []domain.CredibleWallet {
	return s.wallets.Snapshot().List()
}

// UpsertCredibleWallet adds or relabels a manually curated wallet.
func (s *Service) UpsertCredibleWallet(ctx context.Context, address, label string) (domain.CredibleWallet, error) {
	return s.wallets.Upsert(ctx, address, label)
}

// DeleteCredibleWallet removes a wallet.
func (s *Service) DeleteCredibleWallet(ctx context.Context, address string) error {
	return s.wallets.Delete(ctx, address)
}

// SetWalletStatus pauses or resumes a wallet.
func (s *Service) SetWalletStatus(ctx context.Context, address string, status domain.WalletStatus) (domain.CredibleWallet, error) {
	return s.wallets.SetStatus(ctx, address, status)
}

// ListDecisions returns the audit trail of an asset.
func (s *Service) ListDecisions(ctx context.Context, address string) ([]*storage.DecisionRecord, error) {
	if s.decisions == nil {
		return nil, ErrDecisionsDisabled
	}
	return s.decisions.ListByAddress(ctx, address)
}

// RunDiscovery starts a discovery run in the background.
func (s *Service) RunDiscovery() error {
	if s.discovery == nil {
		return ErrDiscoveryDisabled
	}
	if s.discovery.Running() {
		return walletdiscovery.ErrRunInProgress
	}
	go func() {
		summary, err := s.discovery.Run(s.bg)
		switch {
		case errors.Is(err, walletdiscovery.ErrRunInProgress):
		case err != nil:
			s.logger.Error("manual discovery run failed", zap.Error(err))
		default:
			s.logger.Info("manual discovery run finished",
				zap.String("run_id", summary.RunID),
				zap.Int("wallets_created", summary.WalletsCreated),
			)
		}
	}()
	return nil
}

// DiscoveryStatus reports stored discovery data.
func (s *Service) DiscoveryStatus(ctx context.Context) (*walletdiscovery.Status, error) {
	if s.discovery == nil {
		return nil, ErrDiscoveryDisabled
	}
	return s.discovery.Status(ctx)
}

// HealthReport summarizes service health.
type HealthReport struct {
	Status        string                `json:"status"`
	Uptime        string                `json:"uptime"`
	Store         health.State          `json:"store"`
	Backlog       int                   `json:"analysis_backlog"`
	Wallets       int                   `json:"credible_wallets"`
	ActiveWallets int                   `json:"active_wallets"`
	Jobs          []scheduler.JobStatus `json:"jobs,omitempty"`
}

// Health reports store health, queue depth and job status.
func (s *Service) Health() HealthReport {
	snap := s.wallets.Snapshot()
	r := HealthReport{
		Status:        "ok",
		Uptime:        time.Since(s.started).Truncate(time.Second).String(),
		Wallets:       snap.Len(),
		ActiveWallets: snap.ActiveCount(),
	}
	if s.health != nil {
		r.Store = s.health.State()
		if r.Store.Degraded {
			r.Status = "degraded"
		}
	}
	if s.backlog != nil {
		r.Backlog = s.backlog.Backlog()
	}
	if s.jobs != nil {
		r.Jobs = s.jobs.Status()
	}
	return r
}
