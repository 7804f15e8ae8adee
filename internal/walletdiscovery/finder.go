package walletdiscovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

// RunDateLayout formats the run date of winner rows.
const RunDateLayout = "2006-01-02"

// GainerSource reports historical gainers.
type GainerSource interface {
	GetHistoricalGainers(ctx context.Context, window time.Duration, minGain float64) ([]domain.Gainer, error)
}

// FinderConfig selects winner assets.
type FinderConfig struct {
	MinGain         float64       // peak / start multiple, default 100
	StartCapCeiling float64       // USD, default 10k
	PeakCapFloor    float64       // USD, default 1M
	MaxTimeToPeak   time.Duration // default 48h
	Lookback        time.Duration // default 30 days
}

// DefaultFinderConfig returns the default winner criteria.
func DefaultFinderConfig() FinderConfig {
	return FinderConfig{
		MinGain:         100,
		StartCapCeiling: 10_000,
		PeakCapFloor:    1_000_000,
		MaxTimeToPeak:   48 * time.Hour,
		Lookback:        30 * 24 * time.Hour,
	}
}

// Finder turns historical gainers into WinnerAsset rows.
type Finder struct {
	source  GainerSource
	winners storage.WinnerStore
	cfg     FinderConfig
	logger  *zap.Logger
}

// NewFinder creates a Finder.
func NewFinder(source GainerSource, winners storage.WinnerStore, cfg FinderConfig, logger *zap.Logger) *Finder {
	def := DefaultFinderConfig()
	if cfg.MinGain <= 0 {
		cfg.MinGain = def.MinGain
	}
	if cfg.StartCapCeiling <= 0 {
		cfg.StartCapCeiling = def.StartCapCeiling
	}
	if cfg.PeakCapFloor <= 0 {
		cfg.PeakCapFloor = def.PeakCapFloor
	}
	if cfg.MaxTimeToPeak <= 0 {
		cfg.MaxTimeToPeak = def.MaxTimeToPeak
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{source: source, winners: winners, cfg: cfg, logger: logger.Named("finder")}
}

// Qualifies reports whether g meets the winner criteria.
func (f *Finder) Qualifies(g domain.Gainer) bool {
	if g.Address == "" || g.StartMarketCap <= 0 {
		return false
	}
	if g.StartMarketCap > f.cfg.StartCapCeiling || g.PeakMarketCap < f.cfg.PeakCapFloor {
		return false
	}
	if g.TimeToPeak <= 0 || time.Duration(g.TimeToPeak)*time.Millisecond > f.cfg.MaxTimeToPeak {
		return false
	}
	return g.PeakMarketCap/g.StartMarketCap >= f.cfg.MinGain
}

// Find stores the qualifying gainers for the run date of now. Rows are
// keyed by (address, run date), so repeating a run on the same day refreshes
// rather than duplicates. It returns the winners and how many rows were new.
func (f *Finder) Find(ctx context.Context, now time.Time) ([]*domain.WinnerAsset, int, error) {
	gainers, err := f.source.GetHistoricalGainers(ctx, f.cfg.Lookback, f.cfg.MinGain)
	if err != nil {
		return nil, 0, fmt.Errorf("historical gainers: %w", err)
	}

	runDate := now.UTC().Format(RunDateLayout)
	seen := make(map[string]bool, len(gainers))
	var (
		winners []*domain.WinnerAsset
		created int
	)
	for _, g := range gainers {
		if seen[g.Address] || !f.Qualifies(g) {
			continue
		}
		seen[g.Address] = true

		w := &domain.WinnerAsset{
			Address:           g.Address,
			RunDate:           runDate,
			Symbol:            g.Symbol,
			PairAddress:       g.PairAddress,
			DexID:             g.DexID,
			StartMarketCap:    g.StartMarketCap,
			PeakMarketCap:     g.PeakMarketCap,
			GainMultiple:      g.PeakMarketCap / g.StartMarketCap,
			TimeToPeakMinutes: g.TimeToPeak / 60_000,
			Extraction:        domain.ExtractionPending,
			DiscoveredAt:      now.UnixMilli(),
		}
		isNew, err := f.winners.Upsert(ctx, w)
		if err != nil {
			return winners, created, fmt.Errorf("store winner %s: %w", g.Address, err)
		}
		if isNew {
			created++
		}
		winners = append(winners, w)
	}

	f.logger.Info("winners found",
		zap.Int("gainers", len(gainers)),
		zap.Int("winners", len(winners)),
		zap.Int("new", created),
		zap.String("run_date", runDate),
	)
	return winners, created, nil
}
