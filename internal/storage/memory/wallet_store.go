package memory

import (
	"context"
	"sort"
	"sync"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CredibleWallet // keyed by address
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.CredibleWallet),
	}
}

// Upsert inserts a wallet or refreshes an existing one, keeping first_tracked_at.
func (s *WalletStore) Upsert(_ context.Context, w *domain.CredibleWallet) error {
	if w == nil || w.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	walletCopy := copyWallet(w)
	if existing, ok := s.data[w.Address]; ok {
		walletCopy.FirstTrackedAt = existing.FirstTrackedAt
	}
	s.data[w.Address] = walletCopy
	return nil
}

// Get retrieves a wallet by address. Returns ErrNotFound if not exists.
func (s *WalletStore) Get(_ context.Context, address string) (*domain.CredibleWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyWallet(w), nil
}

// List returns all wallets ordered by first_tracked_at, then address.
func (s *WalletStore) List(_ context.Context) ([]*domain.CredibleWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.CredibleWallet, 0, len(s.data))
	for _, w := range s.data {
		result = append(result, copyWallet(w))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].FirstTrackedAt != result[j].FirstTrackedAt {
			return result[i].FirstTrackedAt < result[j].FirstTrackedAt
		}
		return result[i].Address < result[j].Address
	})

	return result, nil
}

// Delete removes a wallet. Returns ErrNotFound if not exists.
func (s *WalletStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[address]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, address)
	return nil
}

func copyWallet(w *domain.CredibleWallet) *domain.CredibleWallet {
	walletCopy := *w
	if w.WinRate != nil {
		rate := *w.WinRate
		walletCopy.WinRate = &rate
	}
	return &walletCopy
}

var _ storage.WalletStore = (*WalletStore)(nil)
