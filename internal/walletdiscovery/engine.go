// Package walletdiscovery mines historical winners for wallets that
// repeatedly bought first and promotes them to the credible set.
//
// A run has three stages:
//  1. Find winners (historical gainers meeting the criteria)
//  2. Extract the earliest unique buyers of each winner
//  3. Cross-reference buyers across winners and promote recurring wallets
package walletdiscovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/observability"
	"solana-signal-engine/internal/storage"
)

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("discovery run already in progress")

// Options for creating an Engine.
type Options struct {
	// Required
	Finder    *Finder
	Extractor *Extractor
	CrossRef  *CrossReferencer
	Winners   storage.WinnerStore
	Buyers    storage.EarlyBuyerStore

	Logger *zap.Logger
}

// RunSummary contains the results of one run.
type RunSummary struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	WinnersFound   int           `json:"winners_found"`
	WinnersNew     int           `json:"winners_new"`
	Extracted      int           `json:"extracted"`
	AlreadyStored  int           `json:"already_stored"`
	ExtractFailed  int           `json:"extract_failed"`
	BuyersStored   int           `json:"buyers_stored"`
	Candidates     int           `json:"candidates"`
	WalletsCreated int           `json:"wallets_created"`
	WalletsUpdated int           `json:"wallets_updated"`
	Errors         []string      `json:"errors,omitempty"`
}

// Status reports stored discovery data and the last run.
type Status struct {
	Running     bool        `json:"running"`
	Winners     int         `json:"winners"`
	Pending     int         `json:"pending"`
	Failed      int         `json:"failed"`
	EarlyBuyers int         `json:"early_buyers"`
	Candidates  int         `json:"candidates"`
	LastRun     *RunSummary `json:"last_run,omitempty"`
}

// Engine coordinates the discovery stages. At most one run is active.
type Engine struct {
	finder    *Finder
	extractor *Extractor
	crossRef  *CrossReferencer
	winners   storage.WinnerStore
	buyers    storage.EarlyBuyerStore
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
	lastRun *RunSummary
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		finder:    opts.Finder,
		extractor: opts.Extractor,
		crossRef:  opts.CrossRef,
		winners:   opts.Winners,
		buyers:    opts.Buyers,
		logger:    opts.Logger.Named("discovery"),
		now:       time.Now,
	}
}

// Run executes one discovery run. Extraction failures for single winners
// are recorded in the summary; what was aggregated is still promoted.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrRunInProgress
	}
	e.running = true
	e.mu.Unlock()

	start := e.now()
	summary := &RunSummary{RunID: uuid.NewString(), StartedAt: start}
	log := e.logger.With(zap.String("run_id", summary.RunID))

	defer func() {
		summary.Duration = e.now().Sub(start)
		e.mu.Lock()
		e.running = false
		e.lastRun = summary
		e.mu.Unlock()
	}()

	// Stage 1: winners
	log.Info("stage 1: finding winners")
	found, created, err := e.finder.Find(ctx, start)
	if err != nil {
		e.record(summary, "error")
		return summary, fmt.Errorf("stage 1 (find winners) failed: %w", err)
	}
	summary.WinnersFound = len(found)
	summary.WinnersNew = created

	// Stage 2: early buyers, for every winner not yet extracted
	log.Info("stage 2: extracting early buyers")
	todo, err := e.winners.ListByExtraction(ctx, domain.ExtractionPending, domain.ExtractionFailed)
	if err != nil {
		e.record(summary, "error")
		return summary, fmt.Errorf("stage 2 (list winners) failed: %w", err)
	}
	ext := e.extractor.ExtractAll(ctx, todo)
	summary.Extracted = ext.Extracted
	summary.AlreadyStored = ext.AlreadyStored
	summary.ExtractFailed = ext.Failed
	summary.BuyersStored = ext.BuyersStored
	summary.Errors = append(summary.Errors, ext.Errors...)
	if err := ctx.Err(); err != nil {
		e.record(summary, "canceled")
		return summary, err
	}

	// Stage 3: cross-reference and promote
	log.Info("stage 3: cross-referencing")
	promo, err := e.crossRef.Promote(ctx, start)
	summary.Candidates = promo.Candidates
	summary.WalletsCreated = promo.Created
	summary.WalletsUpdated = promo.Refreshed
	if err != nil {
		e.record(summary, "error")
		return summary, fmt.Errorf("stage 3 (cross-reference) failed: %w", err)
	}

	e.record(summary, "success")
	log.Info("discovery run completed",
		zap.Int("winners", summary.WinnersFound),
		zap.Int("buyers_stored", summary.BuyersStored),
		zap.Int("extract_failed", summary.ExtractFailed),
		zap.Int("wallets_created", summary.WalletsCreated),
		zap.Int("wallets_updated", summary.WalletsUpdated),
		zap.Duration("duration", e.now().Sub(start)),
	)
	return summary, nil
}

// Running reports whether a run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// RunJob adapts Run to a scheduler job.
func (e *Engine) RunJob(ctx context.Context) error {
	_, err := e.Run(ctx)
	if errors.Is(err, ErrRunInProgress) {
		return nil
	}
	return err
}

// Status reports counts of stored discovery data.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	e.mu.Lock()
	st := &Status{Running: e.running, LastRun: e.lastRun}
	e.mu.Unlock()

	var err error
	if st.Winners, err = e.winners.Count(ctx); err != nil {
		return nil, fmt.Errorf("count winners: %w", err)
	}
	pending, err := e.winners.ListByExtraction(ctx, domain.ExtractionPending)
	if err != nil {
		return nil, fmt.Errorf("list pending winners: %w", err)
	}
	st.Pending = len(pending)
	failed, err := e.winners.ListByExtraction(ctx, domain.ExtractionFailed)
	if err != nil {
		return nil, fmt.Errorf("list failed winners: %w", err)
	}
	st.Failed = len(failed)
	if st.EarlyBuyers, err = e.buyers.Count(ctx); err != nil {
		return nil, fmt.Errorf("count early buyers: %w", err)
	}
	candidates, err := e.crossRef.Candidates(ctx, e.now())
	if err != nil {
		return nil, err
	}
	st.Candidates = len(candidates)
	return st, nil
}

func (e *Engine) record(s *RunSummary, status string) {
	observability.RecordDiscoveryRun(status, e.now().Sub(s.StartedAt).Seconds(),
		s.WinnersNew, s.BuyersStored, s.WalletsCreated)
}
