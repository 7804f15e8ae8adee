// Package tracker advances the lifecycle status of signaled assets from
// current market data.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/observability"
	"solana-signal-engine/internal/storage"
)

// MarketSource reports current market data of an asset.
type MarketSource interface {
	GetCurrentMarketData(ctx context.Context, address string) (domain.MarketData, error)
}

// HealthRecorder receives the outcome of every store operation.
type HealthRecorder interface {
	Observe(err error)
}

// Config tunes status transitions.
type Config struct {
	Interval      time.Duration // cycle period, default 60s
	GraduateAbove float64       // USD market cap, default 50k
	RugBelow      float64       // USD market cap, default 500
	MaxTrackAge   time.Duration // bonding assets older than this are no longer polled, default 48h
	Concurrency   int           // parallel market lookups, default 8
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		Interval:      60 * time.Second,
		GraduateAbove: 50_000,
		RugBelow:      500,
		MaxTrackAge:   48 * time.Hour,
		Concurrency:   8,
	}
}

// CycleStats summarizes one tracker cycle.
type CycleStats struct {
	Tracked   int
	Skipped   int // older than MaxTrackAge
	Graduated int
	Rugged    int
	Unchanged int
	Conflicts int // changed by someone else during the cycle
	Failed    int
	Duration  time.Duration
}

// Tracker polls bonding assets and moves them to graduated or rugged.
// Terminal assets are never listed, so they are never polled again.
type Tracker struct {
	assets storage.AssetStore
	market MarketSource
	health HealthRecorder
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Tracker.
func New(assets storage.AssetStore, market MarketSource, health HealthRecorder, cfg Config, logger *zap.Logger) *Tracker {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.GraduateAbove <= 0 {
		cfg.GraduateAbove = def.GraduateAbove
	}
	if cfg.RugBelow <= 0 {
		cfg.RugBelow = def.RugBelow
	}
	if cfg.MaxTrackAge <= 0 {
		cfg.MaxTrackAge = def.MaxTrackAge
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		assets: assets,
		market: market,
		health: health,
		cfg:    cfg,
		logger: logger.Named("tracker"),
		now:    time.Now,
	}
}

// Interval returns the configured cycle period.
func (t *Tracker) Interval() time.Duration {
	return t.cfg.Interval
}

// Next returns the status a bonding asset moves to given md.
func (t *Tracker) Next(md domain.MarketData) domain.AssetStatus {
	switch {
	case md.MarketCap > t.cfg.GraduateAbove && md.ListedOnAMM:
		return domain.AssetGraduated
	case md.MarketCap < t.cfg.RugBelow:
		return domain.AssetRugged
	default:
		return domain.AssetBonding
	}
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeGraduated
	outcomeRugged
	outcomeConflict
	outcomeFailed
)

// RunOnce runs one tracker cycle. Per-asset failures are counted, not
// returned; only a failure to list assets fails the cycle.
func (t *Tracker) RunOnce(ctx context.Context) (CycleStats, error) {
	start := t.now()
	var stats CycleStats

	assets, err := t.assets.ListByStatus(ctx, domain.AssetBonding)
	t.observe(err)
	if err != nil {
		return stats, fmt.Errorf("list bonding assets: %w", err)
	}

	cutoff := start.Add(-t.cfg.MaxTrackAge).UnixMilli()
	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(t.cfg.Concurrency)
	for _, a := range assets {
		if a.CreatedAt < cutoff {
			stats.Skipped++
			continue
		}
		stats.Tracked++
		p.Go(func() {
			res := t.track(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			switch res {
			case outcomeGraduated:
				stats.Graduated++
			case outcomeRugged:
				stats.Rugged++
			case outcomeConflict:
				stats.Conflicts++
			case outcomeFailed:
				stats.Failed++
			default:
				stats.Unchanged++
			}
		})
	}
	p.Wait()

	stats.Duration = t.now().Sub(start)
	observability.SetTrackedAssets(stats.Tracked)
	t.logger.Info("tracker cycle",
		zap.Int("tracked", stats.Tracked),
		zap.Int("skipped", stats.Skipped),
		zap.Int("graduated", stats.Graduated),
		zap.Int("rugged", stats.Rugged),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", stats.Duration),
	)
	return stats, ctx.Err()
}

func (t *Tracker) track(ctx context.Context, a *domain.Asset) outcome {
	if ctx.Err() != nil {
		return outcomeFailed
	}
	md, err := t.market.GetCurrentMarketData(ctx, a.Address)
	if err != nil {
		t.logger.Warn("market data unavailable", zap.String("address", a.Address), zap.Error(err))
		return outcomeFailed
	}

	next, err := a.Status.TransitionTo(t.Next(md))
	if err != nil {
		t.logger.Error("invalid transition", zap.String("address", a.Address), zap.Error(err))
		return outcomeFailed
	}
	at := t.now().UnixMilli()

	if next == a.Status {
		err := t.assets.UpdateMarketCap(ctx, a.Address, md.MarketCap, at)
		t.observe(err)
		if err != nil {
			t.logger.Warn("update market cap failed", zap.String("address", a.Address), zap.Error(err))
			return outcomeFailed
		}
		return outcomeUnchanged
	}

	err = t.assets.TransitionStatus(ctx, a.Address, a.Status, next, md.MarketCap, at)
	if errors.Is(err, storage.ErrConflict) {
		t.observe(nil)
		return outcomeConflict
	}
	t.observe(err)
	if err != nil {
		t.logger.Warn("transition failed", zap.String("address", a.Address), zap.String("to", next.String()), zap.Error(err))
		return outcomeFailed
	}

	observability.RecordStatusTransition(next.String())
	t.logger.Info("asset status changed",
		zap.String("address", a.Address),
		zap.String("symbol", a.Symbol),
		zap.String("status", next.String()),
		zap.Float64("market_cap", md.MarketCap),
	)
	if next == domain.AssetGraduated {
		return outcomeGraduated
	}
	return outcomeRugged
}

func (t *Tracker) observe(err error) {
	if t.health == nil || errors.Is(err, storage.ErrNotFound) {
		return
	}
	t.health.Observe(err)
}
