package memory

import (
	"context"
	"sort"
	"sync"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

type winnerKey struct {
	address string
	runDate string
}

// WinnerStore is an in-memory implementation of storage.WinnerStore.
type WinnerStore struct {
	mu   sync.RWMutex
	data map[winnerKey]*domain.WinnerAsset
}

// NewWinnerStore creates a new in-memory winner store.
func NewWinnerStore() *WinnerStore {
	return &WinnerStore{
		data: make(map[winnerKey]*domain.WinnerAsset),
	}
}

// Upsert inserts a winner or refreshes market figures of the existing row.
func (s *WinnerStore) Upsert(_ context.Context, w *domain.WinnerAsset) (bool, error) {
	if w == nil || w.Address == "" || w.RunDate == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := winnerKey{address: w.Address, runDate: w.RunDate}
	if existing, ok := s.data[key]; ok {
		existing.PeakMarketCap = w.PeakMarketCap
		existing.StartMarketCap = w.StartMarketCap
		existing.GainMultiple = w.GainMultiple
		existing.TimeToPeakMinutes = w.TimeToPeakMinutes
		if w.Symbol != "" {
			existing.Symbol = w.Symbol
		}
		return false, nil
	}

	winnerCopy := *w
	if winnerCopy.Extraction == "" {
		winnerCopy.Extraction = domain.ExtractionPending
	}
	s.data[key] = &winnerCopy
	return true, nil
}

// ListByExtraction returns winners in the given states ordered by gain DESC.
func (s *WinnerStore) ListByExtraction(_ context.Context, states ...domain.ExtractionStatus) ([]*domain.WinnerAsset, error) {
	want := make(map[domain.ExtractionStatus]bool, len(states))
	for _, st := range states {
		want[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WinnerAsset
	for _, w := range s.data {
		if want[w.Extraction] {
			winnerCopy := *w
			result = append(result, &winnerCopy)
		}
	}
	sortWinners(result)
	return result, nil
}

// SetExtraction records the extraction result for every row of an address.
func (s *WinnerStore) SetExtraction(_ context.Context, address string, status domain.ExtractionStatus, buyersFound int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for key, w := range s.data {
		if key.address == address {
			w.Extraction = status
			w.BuyersFound = buyersFound
			found = true
		}
	}
	if !found {
		return storage.ErrNotFound
	}
	return nil
}

// ListSince returns winners whose run_date is on or after runDate.
func (s *WinnerStore) ListSince(_ context.Context, runDate string) ([]*domain.WinnerAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WinnerAsset
	for key, w := range s.data {
		if key.runDate >= runDate {
			winnerCopy := *w
			result = append(result, &winnerCopy)
		}
	}
	sortWinners(result)
	return result, nil
}

// Count returns the number of winner rows.
func (s *WinnerStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

func sortWinners(ws []*domain.WinnerAsset) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].GainMultiple != ws[j].GainMultiple {
			return ws[i].GainMultiple > ws[j].GainMultiple
		}
		if ws[i].Address != ws[j].Address {
			return ws[i].Address < ws[j].Address
		}
		return ws[i].RunDate < ws[j].RunDate
	})
}

var _ storage.WinnerStore = (*WinnerStore)(nil)
