package memory

import (
	"context"
	"sort"
	"sync"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

type buyerKey struct {
	winner string
	wallet string
}

// EarlyBuyerStore is an in-memory implementation of storage.EarlyBuyerStore.
// Aggregation reads run dates and symbols from the winner store it is built with.
type EarlyBuyerStore struct {
	mu      sync.RWMutex
	data    map[buyerKey]*domain.EarlyBuyer
	winners *WinnerStore
}

// NewEarlyBuyerStore creates a new in-memory early buyer store.
func NewEarlyBuyerStore(winners *WinnerStore) *EarlyBuyerStore {
	return &EarlyBuyerStore{
		data:    make(map[buyerKey]*domain.EarlyBuyer),
		winners: winners,
	}
}

// InsertBatch inserts buyers, skipping existing (winner, wallet) pairs.
func (s *EarlyBuyerStore) InsertBatch(_ context.Context, buyers []*domain.EarlyBuyer) (int, error) {
	for _, b := range buyers {
		if b == nil || b.WinnerAddress == "" || b.Wallet == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, b := range buyers {
		key := buyerKey{winner: b.WinnerAddress, wallet: b.Wallet}
		if _, exists := s.data[key]; exists {
			continue
		}
		buyerCopy := *b
		if b.ExitTime != nil {
			exit := *b.ExitTime
			buyerCopy.ExitTime = &exit
		}
		s.data[key] = &buyerCopy
		inserted++
	}
	return inserted, nil
}

// ListByWinner returns buyers of a winner ordered by entry_time ASC.
func (s *EarlyBuyerStore) ListByWinner(_ context.Context, winnerAddress string) ([]*domain.EarlyBuyer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EarlyBuyer
	for key, b := range s.data {
		if key.winner == winnerAddress {
			buyerCopy := *b
			result = append(result, &buyerCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].EntryTime != result[j].EntryTime {
			return result[i].EntryTime < result[j].EntryTime
		}
		return result[i].Wallet < result[j].Wallet
	})
	return result, nil
}

// CountByWinner returns the number of buyers stored for a winner.
func (s *EarlyBuyerStore) CountByWinner(_ context.Context, winnerAddress string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for key := range s.data {
		if key.winner == winnerAddress {
			n++
		}
	}
	return n, nil
}

// AggregateByWallet returns wallets that bought at least minWinners distinct winners.
func (s *EarlyBuyerStore) AggregateByWallet(ctx context.Context, sinceRunDate string, minWinners int) ([]*domain.WalletAppearance, error) {
	winners, err := s.winners.ListSince(ctx, sinceRunDate)
	if err != nil {
		return nil, err
	}
	symbols := make(map[string]string, len(winners))
	for _, w := range winners {
		symbols[w.Address] = w.Symbol
	}

	s.mu.RLock()
	perWallet := make(map[string]map[string]bool)
	for key := range s.data {
		if _, ok := symbols[key.winner]; !ok {
			continue
		}
		if perWallet[key.wallet] == nil {
			perWallet[key.wallet] = make(map[string]bool)
		}
		perWallet[key.wallet][key.winner] = true
	}
	s.mu.RUnlock()

	var result []*domain.WalletAppearance
	for wallet, winnerSet := range perWallet {
		if len(winnerSet) < minWinners {
			continue
		}
		symSet := make(map[string]bool, len(winnerSet))
		for addr := range winnerSet {
			if sym := symbols[addr]; sym != "" {
				symSet[sym] = true
			}
		}
		syms := make([]string, 0, len(symSet))
		for sym := range symSet {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		result = append(result, &domain.WalletAppearance{
			Wallet:      wallet,
			WinnerCount: len(winnerSet),
			Symbols:     syms,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].WinnerCount != result[j].WinnerCount {
			return result[i].WinnerCount > result[j].WinnerCount
		}
		return result[i].Wallet < result[j].Wallet
	})
	return result, nil
}

// Count returns the number of buyer rows.
func (s *EarlyBuyerStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

var _ storage.EarlyBuyerStore = (*EarlyBuyerStore)(nil)
