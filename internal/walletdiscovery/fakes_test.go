package walletdiscovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"solana-signal-engine/internal/domain"
)

var runAt = time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

type fakeGainers struct {
	gainers []domain.Gainer
	err     error
	window  time.Duration
}

func (f *fakeGainers) GetHistoricalGainers(_ context.Context, window time.Duration, _ float64) ([]domain.Gainer, error) {
	f.window = window
	return f.gainers, f.err
}

type fakeSigners struct {
	mu      sync.Mutex
	signers map[string][]domain.Signer
	errs    map[string]error
	calls   map[string]int
}

func newFakeSigners() *fakeSigners {
	return &fakeSigners{
		signers: map[string][]domain.Signer{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeSigners) GetSigners(_ context.Context, address string, limit int, order domain.SignerOrder) ([]domain.Signer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[address]++
	if order != domain.OldestFirst {
		return nil, fmt.Errorf("unexpected order %v", order)
	}
	if err := f.errs[address]; err != nil {
		return nil, err
	}
	s := f.signers[address]
	if len(s) > limit {
		s = s[:limit]
	}
	return s, nil
}

func (f *fakeSigners) callsFor(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

// history builds an oldest-first signer list: a create by creator followed
// by one buy per wallet.
func history(creator string, wallets ...string) []domain.Signer {
	out := []domain.Signer{{Wallet: creator, Slot: 1, BlockTime: 1_000, Kind: domain.SignerCreate}}
	for i, w := range wallets {
		out = append(out, domain.Signer{
			Wallet:     w,
			Slot:       int64(2 + i),
			BlockTime:  int64(2_000 + i*1_000),
			Signature:  fmt.Sprintf("sig-%s", w),
			Kind:       domain.SignerBuy,
			EntryPrice: 0.0001,
		})
	}
	return out
}

func gainer(address, symbol string) domain.Gainer {
	return domain.Gainer{
		Address:        address,
		Symbol:         symbol,
		PairAddress:    "pool-" + address,
		DexID:          "raydium",
		StartMarketCap: 5_000,
		PeakMarketCap:  2_000_000,
		TimeToPeak:     (20 * time.Hour).Milliseconds(),
	}
}
