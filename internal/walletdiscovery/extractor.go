package walletdiscovery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/pumpfun"
	"solana-signal-engine/internal/storage"
)

// ErrNoBuyers is returned when a winner's early history has no eligible buyer.
var ErrNoBuyers = errors.New("no early buyers found")

// SignerSource returns the signers of an asset.
type SignerSource interface {
	GetSigners(ctx context.Context, address string, limit int, order domain.SignerOrder) ([]domain.Signer, error)
}

// ExtractorConfig bounds early-buyer extraction.
type ExtractorConfig struct {
	TxLimit     int // earliest transactions read per winner, default 1000
	MaxBuyers   int // unique buyers kept per winner, default 100
	Concurrency int // winners extracted in parallel, default 4
}

// DefaultExtractorConfig returns the default extraction bounds.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{TxLimit: 1000, MaxBuyers: 100, Concurrency: 4}
}

// ExtractStats summarizes an extraction stage.
type ExtractStats struct {
	Extracted     int // winners fetched successfully
	AlreadyStored int // winners whose buyers were stored by an earlier run
	Failed        int
	BuyersStored  int
	Errors        []string
}

// Extractor derives and stores the earliest unique buyers of winners.
type Extractor struct {
	signers SignerSource
	winners storage.WinnerStore
	buyers  storage.EarlyBuyerStore
	cfg     ExtractorConfig
	logger  *zap.Logger

	// lpAddress resolves the liquidity-provider account of a mint.
	lpAddress func(mint string) (string, error)
}

// NewExtractor creates an Extractor.
func NewExtractor(signers SignerSource, winners storage.WinnerStore, buyers storage.EarlyBuyerStore, cfg ExtractorConfig, logger *zap.Logger) *Extractor {
	def := DefaultExtractorConfig()
	if cfg.TxLimit <= 0 {
		cfg.TxLimit = def.TxLimit
	}
	if cfg.MaxBuyers <= 0 {
		cfg.MaxBuyers = def.MaxBuyers
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		signers:   signers,
		winners:   winners,
		buyers:    buyers,
		cfg:       cfg,
		logger:    logger.Named("extractor"),
		lpAddress: pumpfun.BondingCurveAddress,
	}
}

// Extract returns the first MaxBuyers unique buying wallets of winner,
// read from its earliest TxLimit transactions. The creator, the bonding
// curve and the AMM pool are excluded.
func (e *Extractor) Extract(ctx context.Context, winner *domain.WinnerAsset) ([]*domain.EarlyBuyer, error) {
	signers, err := e.signers.GetSigners(ctx, winner.Address, e.cfg.TxLimit, domain.OldestFirst)
	if err != nil {
		return nil, fmt.Errorf("get signers of %s: %w", winner.Address, err)
	}

	excluded := map[string]bool{}
	if winner.PairAddress != "" {
		excluded[winner.PairAddress] = true
	}
	if lp, err := e.lpAddress(winner.Address); err == nil {
		excluded[lp] = true
	}
	for _, s := range signers {
		if s.Kind == domain.SignerCreate {
			excluded[s.Wallet] = true
			break
		}
	}

	byWallet := make(map[string]*domain.EarlyBuyer)
	var out []*domain.EarlyBuyer
	for _, s := range signers {
		if s.Wallet == "" || excluded[s.Wallet] {
			continue
		}
		b, known := byWallet[s.Wallet]
		switch s.Kind {
		case domain.SignerBuy:
			if known || len(out) >= e.cfg.MaxBuyers {
				continue
			}
			b = &domain.EarlyBuyer{
				WinnerAddress: winner.Address,
				Wallet:        s.Wallet,
				EntryTime:     s.BlockTime,
				EntryPrice:    s.EntryPrice,
				Signature:     s.Signature,
			}
			byWallet[s.Wallet] = b
			out = append(out, b)
		case domain.SignerSell:
			if known && b.ExitTime == nil {
				exit := s.BlockTime
				b.ExitTime = &exit
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoBuyers
	}
	return out, nil
}

// ExtractAll extracts buyers for every winner concurrently. A winner whose
// buyers are already stored is marked done without being fetched again.
// Per-winner failures are recorded and skipped; only ctx cancellation
// stops the stage early.
func (e *Extractor) ExtractAll(ctx context.Context, winners []*domain.WinnerAsset) ExtractStats {
	var extracted, already, failed, stored atomic.Int64
	errs := make(chan string, len(winners))

	seen := make(map[string]bool, len(winners))
	p := pool.New().WithMaxGoroutines(e.cfg.Concurrency)
	for _, w := range winners {
		if seen[w.Address] {
			continue
		}
		seen[w.Address] = true

		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			n, fetched, err := e.extractOne(ctx, w)
			if err != nil {
				failed.Add(1)
				errs <- fmt.Sprintf("%s: %v", w.Address, err)
				e.logger.Warn("early buyer extraction failed", zap.String("winner", w.Address), zap.Error(err))
				if serr := e.winners.SetExtraction(ctx, w.Address, domain.ExtractionFailed, 0); serr != nil {
					e.logger.Warn("mark extraction failed", zap.String("winner", w.Address), zap.Error(serr))
				}
				return
			}
			if fetched {
				extracted.Add(1)
				stored.Add(int64(n))
			} else {
				already.Add(1)
			}
		})
	}
	p.Wait()
	close(errs)

	stats := ExtractStats{
		Extracted:     int(extracted.Load()),
		AlreadyStored: int(already.Load()),
		Failed:        int(failed.Load()),
		BuyersStored:  int(stored.Load()),
	}
	for msg := range errs {
		stats.Errors = append(stats.Errors, msg)
	}
	return stats
}

// extractOne stores buyers of w. It reports the rows inserted and whether
// the ledger was queried.
func (e *Extractor) extractOne(ctx context.Context, w *domain.WinnerAsset) (int, bool, error) {
	have, err := e.buyers.CountByWinner(ctx, w.Address)
	if err != nil {
		return 0, false, fmt.Errorf("count buyers: %w", err)
	}
	if have > 0 {
		if err := e.winners.SetExtraction(ctx, w.Address, domain.ExtractionDone, have); err != nil {
			return 0, false, fmt.Errorf("mark done: %w", err)
		}
		return 0, false, nil
	}

	buyers, err := e.Extract(ctx, w)
	if err != nil {
		return 0, true, err
	}
	inserted, err := e.buyers.InsertBatch(ctx, buyers)
	if err != nil {
		return 0, true, fmt.Errorf("store buyers: %w", err)
	}
	if err := e.winners.SetExtraction(ctx, w.Address, domain.ExtractionDone, len(buyers)); err != nil {
		return inserted, true, fmt.Errorf("mark done: %w", err)
	}
	e.logger.Debug("early buyers stored",
		zap.String("winner", w.Address),
		zap.String("symbol", w.Symbol),
		zap.Int("buyers", len(buyers)),
	)
	return inserted, true, nil
}
