// Package ledger adapts the Solana RPC and websocket clients to the ledger
// operations used by ingestion, analysis and wallet discovery.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/pumpfun"
	"solana-signal-engine/internal/solana"
)

const lamportsPerSOL = 1e9

// Dialer opens a websocket client for log subscriptions.
type Dialer func(ctx context.Context) (solana.WSClient, error)

// Config bounds how much history a single lookup may read.
type Config struct {
	PageSize         int // signatures per getSignaturesForAddress call (max 1000)
	MaxPages         int // pages walked for oldest-first lookups
	FetchConcurrency int // parallel getTransaction calls
	PollLimit        int // signatures read per poll
	FundingScanLimit int // transactions inspected per funding lookup
	ProgramID        string
}

// DefaultConfig returns the default ledger configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:         1000,
		MaxPages:         10,
		FetchConcurrency: 8,
		PollLimit:        100,
		FundingScanLimit: 25,
		ProgramID:        pumpfun.ProgramID,
	}
}

// Provider implements the ledger data operations on top of Solana RPC.
type Provider struct {
	rpc    solana.RPCClient
	dial   Dialer
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Provider. dial may be nil when subscriptions are not used.
func New(rpc solana.RPCClient, dial Dialer, cfg Config, logger *zap.Logger) *Provider {
	def := DefaultConfig()
	if cfg.PageSize <= 0 || cfg.PageSize > 1000 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = def.FetchConcurrency
	}
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = def.PollLimit
	}
	if cfg.FundingScanLimit <= 0 {
		cfg.FundingScanLimit = def.FundingScanLimit
	}
	if cfg.ProgramID == "" {
		cfg.ProgramID = def.ProgramID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		rpc:    rpc,
		dial:   dial,
		cfg:    cfg,
		logger: logger.Named("ledger"),
		now:    time.Now,
	}
}

// SubscribeAssetCreation streams create events into out until the
// subscription ends. It always returns a non-nil error: ctx.Err() on
// cancellation, otherwise the reason the stream stopped.
func (p *Provider) SubscribeAssetCreation(ctx context.Context, out chan<- domain.AssetCreated) error {
	if p.dial == nil {
		return errors.New("ledger: no websocket dialer configured")
	}

	ws, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer ws.Close()

	notifications, err := ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{p.cfg.ProgramID}})
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				if err := ws.Err(); err != nil {
					return err
				}
				return ErrStreamClosed
			}
			if n.Err != nil || !pumpfun.IsCreate(n.Logs) {
				continue
			}
			ev, err := pumpfun.ParseCreateEvent(n.Logs)
			if err != nil {
				p.logger.Debug("skip undecodable create", zap.String("signature", n.Signature), zap.Error(err))
				continue
			}
			// Notifications carry no block time; receipt time is within seconds of it.
			created := toAssetCreated(ev, n.Signature, n.Slot, p.now().UnixMilli())
			select {
			case out <- created:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// ErrStreamClosed is returned when the subscription ends without an error.
var ErrStreamClosed = errors.New("ledger: subscription stream closed")

// ErrHistoryTooDeep is returned by oldest-first lookups when the address has
// more history than MaxPages pages, so its earliest transactions are unreachable.
var ErrHistoryTooDeep = errors.New("ledger: history deeper than page limit")

// PollAssetCreation returns create events newer than cursor (a transaction
// signature), oldest first, and the new cursor. An empty cursor reads only
// the latest page.
func (p *Provider) PollAssetCreation(ctx context.Context, cursor string) ([]domain.AssetCreated, string, error) {
	sigs, err := p.rpc.GetSignaturesForAddress(ctx, p.cfg.ProgramID, &solana.SignaturesOpts{
		Until: cursor,
		Limit: p.cfg.PollLimit,
	})
	if err != nil {
		return nil, cursor, fmt.Errorf("poll signatures: %w", err)
	}
	if len(sigs) == 0 {
		return nil, cursor, nil
	}
	if cursor != "" && len(sigs) == p.cfg.PollLimit {
		p.logger.Warn("poll page full, older creates may be missed", zap.Int("limit", p.cfg.PollLimit))
	}

	ok := successful(sigs)
	txs, err := p.fetchTransactions(ctx, ok)
	if err != nil {
		return nil, cursor, err
	}

	var events []domain.AssetCreated
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		if tx == nil || tx.Meta == nil || !pumpfun.IsCreate(tx.Meta.LogMessages) {
			continue
		}
		ev, err := pumpfun.ParseCreateEvent(tx.Meta.LogMessages)
		if err != nil {
			continue
		}
		events = append(events, toAssetCreated(ev, tx.Signature, tx.Slot, tx.BlockTime*1000))
	}
	return events, sigs[0].Signature, nil
}

func toAssetCreated(ev *pumpfun.CreateEvent, signature string, slot, createdAt int64) domain.AssetCreated {
	return domain.AssetCreated{
		Address:   ev.Mint,
		Creator:   ev.User,
		CreatedAt: createdAt,
		Symbol:    ev.Symbol,
		Name:      ev.Name,
		Signature: signature,
		Slot:      slot,
	}
}

// GetSigners returns up to limit fee payers of successful transactions
// touching address, newest first or oldest first.
func (p *Provider) GetSigners(ctx context.Context, address string, limit int, order domain.SignerOrder) ([]domain.Signer, error) {
	if limit <= 0 {
		return nil, nil
	}

	var sigs []solana.SignatureInfo
	var err error
	if order == domain.OldestFirst {
		sigs, err = p.oldestSignatures(ctx, address, limit)
	} else {
		sigs, err = p.rpc.GetSignaturesForAddress(ctx, address, &solana.SignaturesOpts{Limit: min(limit, p.cfg.PageSize)})
		sigs = successful(sigs)
	}
	if err != nil {
		return nil, fmt.Errorf("signatures for %s: %w", address, err)
	}

	txs, err := p.fetchTransactions(ctx, sigs)
	if err != nil {
		return nil, err
	}

	signers := make([]domain.Signer, 0, len(txs))
	for _, tx := range txs {
		if tx == nil || tx.Failed() || tx.FeePayer() == "" {
			continue
		}
		s := domain.Signer{
			Wallet:    tx.FeePayer(),
			Slot:      tx.Slot,
			BlockTime: tx.BlockTime * 1000,
			Signature: tx.Signature,
			Kind:      domain.SignerOther,
		}
		if tx.Meta != nil {
			s.Kind = pumpfun.InstructionKind(tx.Meta.LogMessages)
		}
		if s.Kind == domain.SignerBuy {
			s.EntryPrice = entryPrice(tx, s.Wallet, address)
		}
		signers = append(signers, s)
	}
	return signers, nil
}

// oldestSignatures walks history backwards and returns the oldest limit
// successful signatures in ascending order. It fails with ErrHistoryTooDeep
// rather than return a page that is not the start of the history.
func (p *Provider) oldestSignatures(ctx context.Context, address string, limit int) ([]solana.SignatureInfo, error) {
	var all []solana.SignatureInfo
	before := ""
	complete := false
	for page := 0; page < p.cfg.MaxPages; page++ {
		batch, err := p.rpc.GetSignaturesForAddress(ctx, address, &solana.SignaturesOpts{
			Before: before,
			Limit:  p.cfg.PageSize,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < p.cfg.PageSize {
			complete = true
			break
		}
		before = batch[len(batch)-1].Signature
	}
	if !complete {
		// The last page was full; check whether anything older remains.
		rest, err := p.rpc.GetSignaturesForAddress(ctx, address, &solana.SignaturesOpts{Before: before, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(rest) > 0 {
			return nil, fmt.Errorf("%w: more than %d signatures", ErrHistoryTooDeep, p.cfg.MaxPages*p.cfg.PageSize)
		}
	}

	ok := successful(all)
	// all is newest first; reverse into ascending order.
	for i, j := 0, len(ok)-1; i < j; i, j = i+1, j-1 {
		ok[i], ok[j] = ok[j], ok[i]
	}
	if len(ok) > limit {
		ok = ok[:limit]
	}
	return ok, nil
}

// fetchTransactions loads transactions concurrently, preserving input order.
// Unknown signatures yield nil entries; any other error aborts the batch.
func (p *Provider) fetchTransactions(ctx context.Context, sigs []solana.SignatureInfo) ([]*solana.Transaction, error) {
	txs := make([]*solana.Transaction, len(sigs))
	workers := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(p.cfg.FetchConcurrency)
	for i, sig := range sigs {
		workers.Go(func(ctx context.Context) error {
			tx, err := p.rpc.GetTransaction(ctx, sig.Signature)
			if errors.Is(err, solana.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get transaction %s: %w", sig.Signature, err)
			}
			if tx.BlockTime == 0 {
				tx.BlockTime = p.blockTime(ctx, sig)
			}
			txs[i] = tx
			return nil
		})
	}
	if err := workers.Wait(); err != nil {
		return nil, err
	}
	return txs, nil
}

// blockTime resolves the unix time of a transaction whose block time came
// back null, from its signature info or else from getBlockTime. Zero means
// unknown.
func (p *Provider) blockTime(ctx context.Context, sig solana.SignatureInfo) int64 {
	if sig.BlockTime != nil && *sig.BlockTime > 0 {
		return *sig.BlockTime
	}
	bt, err := p.rpc.GetBlockTime(ctx, sig.Slot)
	if err != nil {
		p.logger.Debug("block time unavailable", zap.Int64("slot", sig.Slot), zap.Error(err))
		return 0
	}
	return bt
}

// HeadSlot returns the node's current slot, used to check RPC reachability.
func (p *Provider) HeadSlot(ctx context.Context) (int64, error) {
	slot, err := p.rpc.GetSlot(ctx)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// GetFundingHistory returns incoming SOL transfers to wallet inside window,
// newest first. The sender is the fee payer of a transaction that raised
// the wallet's balance without the wallet paying for it.
func (p *Provider) GetFundingHistory(ctx context.Context, wallet string, window domain.TimeWindow) ([]domain.Transfer, error) {
	var candidates []solana.SignatureInfo
	before := ""
	for page := 0; page < p.cfg.MaxPages && len(candidates) < p.cfg.FundingScanLimit; page++ {
		batch, err := p.rpc.GetSignaturesForAddress(ctx, wallet, &solana.SignaturesOpts{
			Before: before,
			Limit:  min(p.cfg.PageSize, 100),
		})
		if err != nil {
			return nil, fmt.Errorf("funding signatures for %s: %w", wallet, err)
		}

		reachedStart := false
		for _, s := range batch {
			if s.Err != nil || s.BlockTime == nil {
				continue
			}
			ts := *s.BlockTime * 1000
			if ts > window.End {
				continue
			}
			if ts < window.Start {
				reachedStart = true
				break
			}
			candidates = append(candidates, s)
			if len(candidates) == p.cfg.FundingScanLimit {
				break
			}
		}
		if reachedStart || len(batch) < min(p.cfg.PageSize, 100) {
			break
		}
		before = batch[len(batch)-1].Signature
	}

	txs, err := p.fetchTransactions(ctx, candidates)
	if err != nil {
		return nil, err
	}

	var transfers []domain.Transfer
	for _, tx := range txs {
		if tx == nil || tx.Failed() {
			continue
		}
		payer := tx.FeePayer()
		if payer == "" || payer == wallet {
			continue
		}
		delta, ok := tx.LamportDelta(wallet)
		if !ok || delta <= 0 {
			continue
		}
		transfers = append(transfers, domain.Transfer{
			From:      payer,
			To:        wallet,
			Lamports:  uint64(delta),
			Slot:      tx.Slot,
			BlockTime: tx.BlockTime * 1000,
			Signature: tx.Signature,
		})
	}
	return transfers, nil
}

// BondingCurveComplete reports whether mint's bonding curve has migrated.
func (p *Provider) BondingCurveComplete(ctx context.Context, mint string) (bool, error) {
	curve, err := pumpfun.BondingCurveAddress(mint)
	if err != nil {
		return false, err
	}
	info, err := p.rpc.GetAccountInfo(ctx, curve)
	if err != nil {
		return false, fmt.Errorf("bonding curve account: %w", err)
	}
	state, err := pumpfun.DecodeBondingCurve(info.Data)
	if err != nil {
		return false, err
	}
	return state.Complete, nil
}

// entryPrice returns SOL paid per token received by wallet for mint.
func entryPrice(tx *solana.Transaction, wallet, mint string) float64 {
	tokens := tx.TokenDelta(wallet, mint)
	if tokens <= 0 {
		return 0
	}
	delta, ok := tx.LamportDelta(wallet)
	if !ok {
		return 0
	}
	spent := -delta
	if tx.Meta != nil {
		spent -= int64(tx.Meta.Fee)
	}
	if spent <= 0 {
		return 0
	}
	return float64(spent) / lamportsPerSOL / tokens
}

func successful(sigs []solana.SignatureInfo) []solana.SignatureInfo {
	out := make([]solana.SignatureInfo, 0, len(sigs))
	for _, s := range sigs {
		if s.Err == nil {
			out = append(out, s)
		}
	}
	return out
}
