// Package antirug flags assets whose early buyers look like a dev-funded
// bundle: many wallets buying in the same slot window, each funded directly
// by the creator shortly before.
package antirug

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
)

// FundingSource returns incoming SOL transfers of a wallet, newest first.
type FundingSource interface {
	GetFundingHistory(ctx context.Context, wallet string, window domain.TimeWindow) ([]domain.Transfer, error)
}

// Config tunes bundle detection.
type Config struct {
	// Threshold is the largest tolerated number of creator-funded buyers in one
	// slot window; more than Threshold flags the asset.
	Threshold int
	// SlotWindow widens a "same slot" group to slots [s, s+SlotWindow].
	// 0 means strict same-slot equality.
	SlotWindow int64
	// Lookback bounds how far before a wallet's first buy its funding is read.
	Lookback time.Duration
	// Concurrency caps parallel funding lookups.
	Concurrency int
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:   5,
		SlotWindow:  0,
		Lookback:    24 * time.Hour,
		Concurrency: 8,
	}
}

// Result describes the densest creator-funded slot group found.
type Result struct {
	Flagged       bool
	Slot          int64    // first slot of the densest group
	FundedCount   int      // creator-funded buyers in that group
	FundedWallets []string // sorted
	Checked       int      // wallets whose funding was looked up
}

// Detector runs the co-funding heuristic.
type Detector struct {
	funding FundingSource
	cfg     Config
	logger  *zap.Logger
}

// New creates a Detector.
func New(funding FundingSource, cfg Config, logger *zap.Logger) *Detector {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.SlotWindow < 0 {
		cfg.SlotWindow = 0
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{funding: funding, cfg: cfg, logger: logger.Named("antirug")}
}

type firstBuy struct {
	wallet string
	slot   int64
	time   int64 // ms
}

type group struct {
	slot    int64
	wallets []string
}

// Detect inspects the buy signers of an asset. Funding is only looked up for
// wallets in slot groups large enough to exceed the threshold.
func (d *Detector) Detect(ctx context.Context, creator string, signers []domain.Signer) (Result, error) {
	buys := firstBuys(creator, signers)
	groups := d.groups(buys)
	if len(groups) == 0 {
		return Result{}, nil
	}

	byWallet := make(map[string]firstBuy, len(buys))
	for _, b := range buys {
		byWallet[b.wallet] = b
	}
	var candidates []firstBuy
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, w := range g.wallets {
			if !seen[w] {
				seen[w] = true
				candidates = append(candidates, byWallet[w])
			}
		}
	}

	funded, err := d.creatorFunded(ctx, creator, candidates)
	if err != nil {
		return Result{}, err
	}

	res := Result{Checked: len(candidates)}
	for _, g := range groups {
		var hits []string
		for _, w := range g.wallets {
			if funded[w] {
				hits = append(hits, w)
			}
		}
		if len(hits) > res.FundedCount {
			sort.Strings(hits)
			res.Slot, res.FundedCount, res.FundedWallets = g.slot, len(hits), hits
		}
	}
	res.Flagged = res.FundedCount > d.cfg.Threshold

	d.logger.Debug("bundle check",
		zap.String("creator", creator),
		zap.Int("candidates", len(candidates)),
		zap.Int("funded", res.FundedCount),
		zap.Int64("slot", res.Slot),
		zap.Bool("flagged", res.Flagged),
	)
	return res, nil
}

// firstBuys returns each non-creator buyer's earliest buy.
func firstBuys(creator string, signers []domain.Signer) []firstBuy {
	first := make(map[string]firstBuy)
	for _, s := range signers {
		if s.Kind != domain.SignerBuy || s.Wallet == creator || s.Wallet == "" {
			continue
		}
		cur, ok := first[s.Wallet]
		if !ok || s.Slot < cur.slot {
			first[s.Wallet] = firstBuy{wallet: s.Wallet, slot: s.Slot, time: s.BlockTime}
		}
	}
	out := make([]firstBuy, 0, len(first))
	for _, b := range first {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].slot != out[j].slot {
			return out[i].slot < out[j].slot
		}
		return out[i].wallet < out[j].wallet
	})
	return out
}

// groups returns, for each distinct buy slot s, the wallets whose first buy
// falls in [s, s+SlotWindow], keeping only groups larger than the threshold.
func (d *Detector) groups(buys []firstBuy) []group {
	var out []group
	for i := 0; i < len(buys); i++ {
		if i > 0 && buys[i].slot == buys[i-1].slot {
			continue
		}
		end := buys[i].slot + d.cfg.SlotWindow
		var wallets []string
		for j := i; j < len(buys) && buys[j].slot <= end; j++ {
			wallets = append(wallets, buys[j].wallet)
		}
		if len(wallets) > d.cfg.Threshold {
			out = append(out, group{slot: buys[i].slot, wallets: wallets})
		}
	}
	return out
}

type fundingResult struct {
	wallet string
	funded bool
}

// creatorFunded reports, per wallet, whether its most recent incoming
// transfer before its first buy came from creator within the lookback.
func (d *Detector) creatorFunded(ctx context.Context, creator string, buys []firstBuy) (map[string]bool, error) {
	p := pool.NewWithResults[fundingResult]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(d.cfg.Concurrency)

	for _, b := range buys {
		p.Go(func(ctx context.Context) (fundingResult, error) {
			window := domain.TimeWindow{Start: b.time - d.cfg.Lookback.Milliseconds(), End: b.time}
			transfers, err := d.funding.GetFundingHistory(ctx, b.wallet, window)
			if err != nil {
				return fundingResult{}, fmt.Errorf("funding history of %s: %w", b.wallet, err)
			}
			return fundingResult{wallet: b.wallet, funded: lastFundedBy(transfers, b.wallet, window) == creator}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	funded := make(map[string]bool, len(results))
	for _, r := range results {
		funded[r.wallet] = r.funded
	}
	return funded, nil
}

// lastFundedBy returns the sender of the most recent transfer into wallet
// inside window, or "" when there is none.
func lastFundedBy(transfers []domain.Transfer, wallet string, window domain.TimeWindow) string {
	var latest *domain.Transfer
	for i := range transfers {
		t := &transfers[i]
		if t.To != wallet || !window.Contains(t.BlockTime) {
			continue
		}
		if latest == nil || t.BlockTime > latest.BlockTime || (t.BlockTime == latest.BlockTime && t.Slot > latest.Slot) {
			latest = t
		}
	}
	if latest == nil {
		return ""
	}
	return latest.From
}
