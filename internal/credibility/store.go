// Package credibility holds the credible wallet set read by the analyzer.
//
// Reads go through an immutable Snapshot swapped atomically on every write,
// so a reader never observes a half-applied update. Writes are serialized
// and persisted before the new snapshot is published.
package credibility

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/observability"
	"solana-signal-engine/internal/solana"
	"solana-signal-engine/internal/storage"
)

// ErrInvalidAddress is returned for addresses that are not base58 public keys.
var ErrInvalidAddress = errors.New("invalid wallet address")

// Snapshot is an immutable view of the credible wallet set.
type Snapshot struct {
	wallets map[string]domain.CredibleWallet
	active  map[string]struct{}
}

func newSnapshot(wallets map[string]domain.CredibleWallet) *Snapshot {
	s := &Snapshot{wallets: wallets, active: make(map[string]struct{}, len(wallets))}
	for addr, w := range wallets {
		if w.IsActive() {
			s.active[addr] = struct{}{}
		}
	}
	return s
}

// Len returns the number of wallets, active or not.
func (s *Snapshot) Len() int { return len(s.wallets) }

// ActiveCount returns the number of active wallets.
func (s *Snapshot) ActiveCount() int { return len(s.active) }

// IsActive reports whether address is an active credible wallet.
func (s *Snapshot) IsActive(address string) bool {
	_, ok := s.active[address]
	return ok
}

// Active returns active wallet addresses in ascending order.
func (s *Snapshot) Active() []string {
	out := make([]string, 0, len(s.active))
	for addr := range s.active {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// MatchActive returns the distinct addresses that are active credible wallets.
func (s *Snapshot) MatchActive(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var out []string
	for _, addr := range addresses {
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		if s.IsActive(addr) {
			out = append(out, addr)
		}
	}
	return out
}

// Get returns the wallet for address.
func (s *Snapshot) Get(address string) (domain.CredibleWallet, bool) {
	w, ok := s.wallets[address]
	return w, ok
}

// List returns all wallets ordered by first tracked time, then address.
func (s *Snapshot) List() []domain.CredibleWallet {
	out := make([]domain.CredibleWallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstTrackedAt != out[j].FirstTrackedAt {
			return out[i].FirstTrackedAt < out[j].FirstTrackedAt
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Store is the credible wallet set with a single serialized write path.
type Store struct {
	persist storage.WalletStore
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes writers
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore creates an empty Store backed by persist. Call Load to read
// wallets persisted earlier.
func NewStore(persist storage.WalletStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{persist: persist, logger: logger.Named("credibility"), now: time.Now}
	s.current.Store(newSnapshot(map[string]domain.CredibleWallet{}))
	return s
}

// Snapshot returns the current consistent view.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Load replaces the in-memory set with the persisted wallets.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallets, err := s.persist.List(ctx)
	if err != nil {
		return fmt.Errorf("load wallets: %w", err)
	}
	next := make(map[string]domain.CredibleWallet, len(wallets))
	for _, w := range wallets {
		next[w.Address] = *w
	}
	s.publish(next)
	s.logger.Info("credible wallets loaded", zap.Int("wallets", len(next)))
	return nil
}

// Upsert adds a manually curated wallet or relabels an existing one.
// Status, source and first tracked time of an existing wallet are kept.
func (s *Store) Upsert(ctx context.Context, address, label string) (domain.CredibleWallet, error) {
	if !solana.IsValidAddress(address) {
		return domain.CredibleWallet{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return s.write(ctx, address, func(w *domain.CredibleWallet, exists bool) bool {
		if exists {
			if w.Label == label {
				return false
			}
			w.Label = label
			return true
		}
		w.Label = label
		w.Status = domain.WalletActive
		w.Source = domain.SourceManual
		return true
	})
}

// UpsertDiscovered records a wallet promoted by wallet discovery. A new
// wallet starts active with source backtested. An existing backtested wallet
// gets the new label; a manually curated one keeps its label and source.
// It reports whether the wallet was newly created.
func (s *Store) UpsertDiscovered(ctx context.Context, address, label string, winRate *float64) (bool, error) {
	created := false
	_, err := s.write(ctx, address, func(w *domain.CredibleWallet, exists bool) bool {
		if !exists {
			created = true
			w.Label = label
			w.WinRate = winRate
			w.Status = domain.WalletActive
			w.Source = domain.SourceBacktested
			return true
		}
		if winRate != nil {
			w.WinRate = winRate
		}
		if w.Source == domain.SourceBacktested {
			w.Label = label
		}
		return true
	})
	return created, err
}

// SetStatus pauses or resumes a wallet. Returns storage.ErrNotFound for
// unknown wallets.
func (s *Store) SetStatus(ctx context.Context, address string, status domain.WalletStatus) (domain.CredibleWallet, error) {
	if !status.IsValid() {
		return domain.CredibleWallet{}, fmt.Errorf("%w: status %q", storage.ErrInvalidInput, status)
	}
	var missing bool
	w, err := s.write(ctx, address, func(w *domain.CredibleWallet, exists bool) bool {
		if !exists {
			missing = true
			return false
		}
		if w.Status == status {
			return false
		}
		w.Status = status
		return true
	})
	if err == nil && missing {
		return domain.CredibleWallet{}, storage.ErrNotFound
	}
	return w, err
}

// Delete removes a wallet. Returns storage.ErrNotFound for unknown wallets.
func (s *Store) Delete(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist.Delete(ctx, address); err != nil {
		return err
	}
	cur := s.current.Load()
	next := make(map[string]domain.CredibleWallet, len(cur.wallets))
	for addr, w := range cur.wallets {
		if addr != address {
			next[addr] = w
		}
	}
	s.publish(next)
	s.logger.Info("credible wallet deleted", zap.String("address", address))
	return nil
}

// write applies mutate to a copy of the wallet, persists it when mutate
// reports a change, then publishes a new snapshot.
func (s *Store) write(ctx context.Context, address string, mutate func(w *domain.CredibleWallet, exists bool) bool) (domain.CredibleWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	w, exists := cur.wallets[address]
	if !exists {
		w = domain.CredibleWallet{Address: address, FirstTrackedAt: s.now().UnixMilli()}
	}
	if !mutate(&w, exists) {
		return w, nil
	}
	w.UpdatedAt = s.now().UnixMilli()

	if err := s.persist.Upsert(ctx, &w); err != nil {
		return domain.CredibleWallet{}, fmt.Errorf("persist wallet %s: %w", address, err)
	}

	next := make(map[string]domain.CredibleWallet, len(cur.wallets)+1)
	for addr, existing := range cur.wallets {
		next[addr] = existing
	}
	next[address] = w
	s.publish(next)

	s.logger.Debug("credible wallet written",
		zap.String("address", address),
		zap.String("status", w.Status.String()),
		zap.String("source", string(w.Source)),
		zap.Bool("created", !exists),
	)
	return w, nil
}

func (s *Store) publish(wallets map[string]domain.CredibleWallet) {
	snap := newSnapshot(wallets)
	s.current.Store(snap)
	observability.SetCredibleWallets(snap.ActiveCount())
}
