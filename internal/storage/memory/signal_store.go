package memory

import (
	"context"
	"sort"
	"sync"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore and
// storage.AssetStore. Assets and signals share one lock so InsertSignal is atomic.
type SignalStore struct {
	mu      sync.RWMutex
	assets  map[string]*domain.Asset  // keyed by address
	signals map[string]*domain.Signal // keyed by asset address
}

// NewSignalStore creates a new in-memory asset and signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		assets:  make(map[string]*domain.Asset),
		signals: make(map[string]*domain.Signal),
	}
}

// InsertSignal atomically creates an asset and its signal.
func (s *SignalStore) InsertSignal(_ context.Context, a *domain.Asset, sig *domain.Signal) error {
	if a == nil || sig == nil || a.Address == "" || sig.AssetAddress != a.Address {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assets[a.Address]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.signals[a.Address]; exists {
		return storage.ErrDuplicateKey
	}

	assetCopy := *a
	signalCopy := *sig
	s.assets[a.Address] = &assetCopy
	s.signals[a.Address] = &signalCopy
	return nil
}

// GetByAsset retrieves the signal of an asset. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByAsset(_ context.Context, assetAddress string) (*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.signals[assetAddress]
	if !ok {
		return nil, storage.ErrNotFound
	}
	signalCopy := *sig
	return &signalCopy, nil
}

// ListLatest returns up to limit signals with their asset, newest first.
func (s *SignalStore) ListLatest(_ context.Context, limit int) ([]*domain.SignalView, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.SignalView, 0, len(s.signals))
	for addr, sig := range s.signals {
		result = append(result, &domain.SignalView{Signal: *sig, Asset: *s.assets[addr]})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Signal.CreatedAt != result[j].Signal.CreatedAt {
			return result[i].Signal.CreatedAt > result[j].Signal.CreatedAt
		}
		return result[i].Signal.ID < result[j].Signal.ID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Get retrieves an asset by address. Returns ErrNotFound if not exists.
func (s *SignalStore) Get(_ context.Context, address string) (*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	assetCopy := *a
	return &assetCopy, nil
}

// ListByStatus returns assets in the given status ordered by created_at ASC.
func (s *SignalStore) ListByStatus(_ context.Context, status domain.AssetStatus) ([]*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Asset
	for _, a := range s.assets {
		if a.Status == status {
			assetCopy := *a
			result = append(result, &assetCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address < result[j].Address
	})

	return result, nil
}

// TransitionStatus moves an asset from one status to another.
func (s *SignalStore) TransitionStatus(_ context.Context, address string, from, to domain.AssetStatus, marketCap float64, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[address]
	if !ok {
		return storage.ErrNotFound
	}
	if a.Status != from {
		return storage.ErrConflict
	}
	next, err := a.Status.TransitionTo(to)
	if err != nil {
		return err
	}

	a.Status = next
	a.MarketCapAtScan = marketCap
	a.UpdatedAt = at
	return nil
}

// UpdateMarketCap refreshes market_cap_at_scan.
func (s *SignalStore) UpdateMarketCap(_ context.Context, address string, marketCap float64, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[address]
	if !ok {
		return storage.ErrNotFound
	}
	a.MarketCapAtScan = marketCap
	a.UpdatedAt = at
	return nil
}

var (
	_ storage.SignalStore = (*SignalStore)(nil)
	_ storage.AssetStore  = (*SignalStore)(nil)
)
