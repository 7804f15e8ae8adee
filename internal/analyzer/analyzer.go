// Package analyzer turns asset creation events into signal decisions.
//
// Each candidate walks a fixed sequence of gates; the first failing gate
// is terminal:
//
//	freshness -> duplicate -> signers -> cross_reference -> anti_rug -> narrative -> score -> emit
//
// Every gate evaluation is reported to an Observer whether it passes or not.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/antirug"
	"solana-signal-engine/internal/credibility"
	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/idhash"
	"solana-signal-engine/internal/scoring"
	"solana-signal-engine/internal/storage"
)

// SignerFetcher returns the signers of an asset.
type SignerFetcher interface {
	GetSigners(ctx context.Context, address string, limit int, order domain.SignerOrder) ([]domain.Signer, error)
}

// WalletSnapshots yields consistent views of the credible wallet set.
type WalletSnapshots interface {
	Snapshot() *credibility.Snapshot
}

// BundleDetector decides whether early buys look dev-funded.
type BundleDetector interface {
	Detect(ctx context.Context, creator string, signers []domain.Signer) (antirug.Result, error)
}

// MarketSource reports current market data for the asset record.
type MarketSource interface {
	GetCurrentMarketData(ctx context.Context, address string) (domain.MarketData, error)
}

// HealthRecorder receives the outcome of every store operation.
type HealthRecorder interface {
	Observe(err error)
}

// Notifier dispatches an emitted signal. It must not block.
type Notifier interface {
	Dispatch(ctx context.Context, v domain.SignalView) error
}

// Config tunes the gates.
type Config struct {
	MaxAge      time.Duration // freshness limit, default 10m
	SignerLimit int           // most recent signers fetched, default 50
	MinMatches  int           // credible wallets required, default 2
	Scorer      scoring.Scorer
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		MaxAge:      10 * time.Minute,
		SignerLimit: 50,
		MinMatches:  2,
		Scorer:      scoring.DefaultScorer(),
	}
}

// Options contains the collaborators of an Analyzer.
type Options struct {
	Signers    SignerFetcher      // required
	Wallets    WalletSnapshots    // required
	AntiRug    BundleDetector     // required
	Signals    storage.SignalStore // required
	Narratives *scoring.NarrativeMatcher
	Market     MarketSource // optional; market cap at scan stays 0 without it
	Health     HealthRecorder
	Notifier   Notifier
	Observer   Observer
	Config     Config
	Logger     *zap.Logger
}

// Analyzer runs the gate pipeline. It is safe for concurrent use.
type Analyzer struct {
	signers    SignerFetcher
	wallets    WalletSnapshots
	antirug    BundleDetector
	signals    storage.SignalStore
	narratives *scoring.NarrativeMatcher
	market     MarketSource
	health     HealthRecorder
	notifier   Notifier
	observer   Observer
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	def := DefaultConfig()
	cfg := opts.Config
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.SignerLimit <= 0 {
		cfg.SignerLimit = def.SignerLimit
	}
	if cfg.MinMatches <= 0 {
		cfg.MinMatches = def.MinMatches
	}
	if cfg.Scorer == (scoring.Scorer{}) {
		cfg.Scorer = def.Scorer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	return &Analyzer{
		signers:    opts.Signers,
		wallets:    opts.Wallets,
		antirug:    opts.AntiRug,
		signals:    opts.Signals,
		narratives: opts.Narratives,
		market:     opts.Market,
		health:     opts.Health,
		notifier:   opts.Notifier,
		observer:   opts.Observer,
		cfg:        cfg,
		logger:     opts.Logger.Named("analyzer"),
		now:        time.Now,
	}
}

// run carries one candidate through the pipeline.
type run struct {
	a     *Analyzer
	ev    domain.AssetCreated
	start time.Time
	d     domain.Decision
}

func (r *run) gate(g domain.Gate, passed bool, detail string) {
	r.a.observer.OnGate(domain.GateEvent{
		Address: r.ev.Address,
		Gate:    g,
		Passed:  passed,
		Detail:  detail,
		At:      r.a.now().UnixMilli(),
	})
}

func (r *run) discard(g domain.Gate, reason domain.Reason, detail string) domain.Decision {
	r.gate(g, false, detail)
	return r.finish(r.d.Discard(reason, r.a.now().UnixMilli()))
}

func (r *run) fail(g domain.Gate, err error) domain.Decision {
	r.gate(g, false, err.Error())
	return r.finish(r.d.Fail(err, r.a.now().UnixMilli()))
}

func (r *run) finish(d domain.Decision) domain.Decision {
	r.a.observer.OnDecision(d, r.a.now().Sub(r.start))
	return d
}

// Analyze evaluates one candidate and returns its terminal decision.
// Upstream failures yield an analysis_failed decision; Analyze never
// returns a non-terminal decision.
func (a *Analyzer) Analyze(ctx context.Context, ev domain.AssetCreated) domain.Decision {
	r := &run{a: a, ev: ev, start: a.now(), d: domain.Discovered(ev.Address)}

	// 1. Freshness.
	age := a.now().Sub(time.UnixMilli(ev.CreatedAt))
	if age > a.cfg.MaxAge {
		return r.discard(domain.GateFreshness, domain.ReasonStale, "age "+age.Truncate(time.Second).String())
	}
	r.gate(domain.GateFreshness, true, "")

	// Already signaled assets are not analyzed twice.
	if _, err := a.signals.GetByAsset(ctx, ev.Address); err == nil {
		return r.discard(domain.GateDuplicate, domain.ReasonDuplicate, "signal exists")
	} else if !errors.Is(err, storage.ErrNotFound) {
		a.observeStore(err)
		return r.fail(domain.GateDuplicate, fmt.Errorf("lookup signal: %w", err))
	}
	r.gate(domain.GateDuplicate, true, "")

	// 2. Signer extraction.
	signers, err := a.signers.GetSigners(ctx, ev.Address, a.cfg.SignerLimit, domain.NewestFirst)
	if err != nil {
		return r.fail(domain.GateSigners, fmt.Errorf("get signers: %w", err))
	}
	wallets := uniqueWallets(signers, ev.Creator)
	r.gate(domain.GateSigners, true, fmt.Sprintf("%d unique signers", len(wallets)))

	// 3. Smart-money cross reference against one snapshot.
	matches := a.wallets.Snapshot().MatchActive(wallets)
	matchCount := len(matches)
	r.d.MatchCount = matchCount
	if matchCount < a.cfg.MinMatches {
		return r.discard(domain.GateCrossRef, domain.ReasonInsufficientSignal,
			fmt.Sprintf("%d of %d required", matchCount, a.cfg.MinMatches))
	}
	r.gate(domain.GateCrossRef, true, fmt.Sprintf("%d matches", matchCount))

	// 4. Anti-rug.
	bundle, err := a.antirug.Detect(ctx, ev.Creator, signers)
	if err != nil {
		return r.fail(domain.GateAntiRug, fmt.Errorf("anti-rug: %w", err))
	}
	if bundle.Flagged {
		return r.discard(domain.GateAntiRug, domain.ReasonBundleSuspected,
			fmt.Sprintf("%d creator-funded buyers in slot %d", bundle.FundedCount, bundle.Slot))
	}
	r.gate(domain.GateAntiRug, true, "")

	// 5. Narrative.
	pattern, narrative := a.narratives.Match(ev.Symbol, ev.Name)
	r.gate(domain.GateNarrative, narrative, pattern)

	// 6. Score.
	score := a.cfg.Scorer.Score(matchCount, narrative)
	r.gate(domain.GateScore, true, fmt.Sprintf("score %d", score))

	// 7. Emission.
	now := a.now().UnixMilli()
	asset := &domain.Asset{
		Address:         ev.Address,
		Symbol:          ev.Symbol,
		Name:            ev.Name,
		Creator:         ev.Creator,
		CreatedAt:       ev.CreatedAt,
		MarketCapAtScan: a.marketCap(ctx, ev.Address),
		Status:          domain.AssetBonding,
		UpdatedAt:       now,
	}
	sig := &domain.Signal{
		ID:           idhash.ComputeSignalID(ev.Address),
		AssetAddress: ev.Address,
		MatchCount:   matchCount,
		Score:        score,
		CreatedAt:    now,
	}
	if err := a.signals.InsertSignal(ctx, asset, sig); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			a.observeStore(nil)
			return r.discard(domain.GateEmit, domain.ReasonDuplicate, "signal exists")
		}
		a.observeStore(err)
		return r.fail(domain.GateEmit, fmt.Errorf("insert signal: %w", err))
	}
	a.observeStore(nil)
	r.gate(domain.GateEmit, true, sig.ID)

	a.logger.Info("signal emitted",
		zap.String("address", ev.Address),
		zap.String("symbol", ev.Symbol),
		zap.Int("match_count", matchCount),
		zap.Int("score", score),
		zap.Strings("matches", matches),
	)
	if a.notifier != nil {
		if err := a.notifier.Dispatch(ctx, domain.SignalView{Signal: *sig, Asset: *asset}); err != nil {
			a.logger.Warn("notify failed", zap.String("address", ev.Address), zap.Error(err))
		}
	}

	return r.finish(r.d.Signal(matchCount, score, now))
}

// marketCap returns the current market cap, or 0 when unavailable.
func (a *Analyzer) marketCap(ctx context.Context, address string) float64 {
	if a.market == nil {
		return 0
	}
	md, err := a.market.GetCurrentMarketData(ctx, address)
	if err != nil {
		a.logger.Debug("market cap unavailable", zap.String("address", address), zap.Error(err))
		return 0
	}
	return md.MarketCap
}

func (a *Analyzer) observeStore(err error) {
	if a.health != nil {
		a.health.Observe(err)
	}
}

// uniqueWallets returns the distinct signer wallets except creator, in
// first-seen order.
func uniqueWallets(signers []domain.Signer, creator string) []string {
	seen := make(map[string]struct{}, len(signers))
	out := make([]string, 0, len(signers))
	for _, s := range signers {
		if s.Wallet == "" || s.Wallet == creator {
			continue
		}
		if _, ok := seen[s.Wallet]; ok {
			continue
		}
		seen[s.Wallet] = struct{}{}
		out = append(out, s.Wallet)
	}
	return out
}
