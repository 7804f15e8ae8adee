package walletdiscovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

const maxLabelSymbols = 30

// WalletPromoter receives promoted wallets.
type WalletPromoter interface {
	UpsertDiscovered(ctx context.Context, address, label string, winRate *float64) (bool, error)
}

// CrossRefConfig tunes promotion.
type CrossRefConfig struct {
	MinWinners int           // distinct winners a wallet must appear in, default 2
	Window     time.Duration // aggregation window over run dates, default 30 days
}

// DefaultCrossRefConfig returns the default promotion rule.
func DefaultCrossRefConfig() CrossRefConfig {
	return CrossRefConfig{MinWinners: 2, Window: 30 * 24 * time.Hour}
}

// PromoteStats summarizes a promotion pass.
type PromoteStats struct {
	Candidates int
	Created    int
	Refreshed  int
}

// CrossReferencer promotes wallets that bought early into several winners.
type CrossReferencer struct {
	buyers  storage.EarlyBuyerStore
	wallets WalletPromoter
	cfg     CrossRefConfig
	logger  *zap.Logger
}

// NewCrossReferencer creates a CrossReferencer.
func NewCrossReferencer(buyers storage.EarlyBuyerStore, wallets WalletPromoter, cfg CrossRefConfig, logger *zap.Logger) *CrossReferencer {
	def := DefaultCrossRefConfig()
	if cfg.MinWinners < 2 {
		cfg.MinWinners = def.MinWinners
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrossReferencer{buyers: buyers, wallets: wallets, cfg: cfg, logger: logger.Named("crossref")}
}

// Candidates returns the wallets that currently qualify for promotion.
func (c *CrossReferencer) Candidates(ctx context.Context, now time.Time) ([]*domain.WalletAppearance, error) {
	since := now.Add(-c.cfg.Window).UTC().Format(RunDateLayout)
	apps, err := c.buyers.AggregateByWallet(ctx, since, c.cfg.MinWinners)
	if err != nil {
		return nil, fmt.Errorf("aggregate early buyers: %w", err)
	}
	return apps, nil
}

// Promote upserts every qualifying wallet into the credible set with
// source backtested. Re-running refreshes labels and never duplicates.
func (c *CrossReferencer) Promote(ctx context.Context, now time.Time) (PromoteStats, error) {
	apps, err := c.Candidates(ctx, now)
	if err != nil {
		return PromoteStats{}, err
	}

	stats := PromoteStats{Candidates: len(apps)}
	for _, a := range apps {
		created, err := c.wallets.UpsertDiscovered(ctx, a.Wallet, Label(a), nil)
		if err != nil {
			return stats, fmt.Errorf("promote %s: %w", a.Wallet, err)
		}
		if created {
			stats.Created++
		} else {
			stats.Refreshed++
		}
	}

	c.logger.Info("wallets promoted",
		zap.Int("candidates", stats.Candidates),
		zap.Int("created", stats.Created),
		zap.Int("refreshed", stats.Refreshed),
	)
	return stats, nil
}

// Label returns the credible wallet label for an appearance, e.g.
// "Discovery_3x (BONK, WIF, POPCAT)". The symbol list is cut at 30 characters.
func Label(a *domain.WalletAppearance) string {
	symbols := strings.Join(a.Symbols, ", ")
	if r := []rune(symbols); len(r) > maxLabelSymbols {
		symbols = string(r[:maxLabelSymbols])
	}
	return fmt.Sprintf("Discovery_%dx (%s)", a.WinnerCount, symbols)
}
