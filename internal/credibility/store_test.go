package credibility

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/pumpfun/pumpfuntest"
	"solana-signal-engine/internal/storage"
	"solana-signal-engine/internal/storage/memory"
)

var (
	walletA = pumpfuntest.Address(1)
	walletB = pumpfuntest.Address(2)
	walletC = pumpfuntest.Address(3)
)

func newTestStore(t *testing.T) (*Store, *memory.WalletStore) {
	t.Helper()
	persist := memory.NewWalletStore()
	s := NewStore(persist, nil)
	clock := int64(1_000)
	s.now = func() time.Time {
		clock += 1_000
		return time.UnixMilli(clock)
	}
	return s, persist
}

func TestStore_UpsertManual(t *testing.T) {
	ctx := context.Background()
	s, persist := newTestStore(t)

	w, err := s.Upsert(ctx, walletA, "whale")
	require.NoError(t, err)
	assert.Equal(t, domain.WalletActive, w.Status)
	assert.Equal(t, domain.SourceManual, w.Source)

	stored, err := persist.Get(ctx, walletA)
	require.NoError(t, err)
	assert.Equal(t, "whale", stored.Label)

	// Relabel keeps first tracked time.
	again, err := s.Upsert(ctx, walletA, "big whale")
	require.NoError(t, err)
	assert.Equal(t, "big whale", again.Label)
	assert.Equal(t, w.FirstTrackedAt, again.FirstTrackedAt)
	assert.Equal(t, 1, s.Snapshot().Len())
}

func TestStore_UpsertRejectsInvalidAddress(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Upsert(context.Background(), "not-an-address", "x")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, 0, s.Snapshot().Len())
}

func TestStore_UpsertDiscovered(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	created, err := s.UpsertDiscovered(ctx, walletA, "Discovery_2x (AAA, BBB)", nil)
	require.NoError(t, err)
	assert.True(t, created)

	first, _ := s.Snapshot().Get(walletA)
	assert.Equal(t, domain.SourceBacktested, first.Source)

	// Re-discovery refreshes the label, never duplicates.
	created, err = s.UpsertDiscovered(ctx, walletA, "Discovery_3x (AAA, BBB, CCC)", nil)
	require.NoError(t, err)
	assert.False(t, created)

	w, ok := s.Snapshot().Get(walletA)
	require.True(t, ok)
	assert.Equal(t, "Discovery_3x (AAA, BBB, CCC)", w.Label)
	assert.Equal(t, first.FirstTrackedAt, w.FirstTrackedAt)
	assert.Equal(t, 1, s.Snapshot().Len())
}

func TestStore_UpsertDiscoveredKeepsManualCuration(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Upsert(ctx, walletA, "friend")
	require.NoError(t, err)
	_, err = s.SetStatus(ctx, walletA, domain.WalletPaused)
	require.NoError(t, err)

	created, err := s.UpsertDiscovered(ctx, walletA, "Discovery_2x (X, Y)", nil)
	require.NoError(t, err)
	assert.False(t, created)

	w, _ := s.Snapshot().Get(walletA)
	assert.Equal(t, "friend", w.Label)
	assert.Equal(t, domain.SourceManual, w.Source)
	assert.Equal(t, domain.WalletPaused, w.Status)
}

func TestStore_SetStatusAndMatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	for _, addr := range []string{walletA, walletB, walletC} {
		_, err := s.Upsert(ctx, addr, "")
		require.NoError(t, err)
	}

	_, err := s.SetStatus(ctx, walletB, domain.WalletPaused)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, 2, snap.ActiveCount())
	assert.ElementsMatch(t, []string{walletA, walletC}, snap.Active())
	assert.Equal(t, []string{walletA, walletC}, snap.MatchActive([]string{walletA, walletB, walletC, walletA, "other"}))

	_, err = s.SetStatus(ctx, "unknown", domain.WalletPaused)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.SetStatus(ctx, walletA, "frozen")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, persist := newTestStore(t)
	_, err := s.Upsert(ctx, walletA, "")
	require.NoError(t, err)

	before := s.Snapshot()
	require.NoError(t, s.Delete(ctx, walletA))

	assert.Equal(t, 0, s.Snapshot().Len())
	assert.Equal(t, 1, before.Len(), "old snapshot is immutable")
	_, err = persist.Get(ctx, walletA)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, walletA), storage.ErrNotFound)
}

func TestStore_Load(t *testing.T) {
	ctx := context.Background()
	persist := memory.NewWalletStore()
	require.NoError(t, persist.Upsert(ctx, &domain.CredibleWallet{
		Address: walletA, Status: domain.WalletActive, Source: domain.SourceManual, FirstTrackedAt: 1,
	}))
	require.NoError(t, persist.Upsert(ctx, &domain.CredibleWallet{
		Address: walletB, Status: domain.WalletPaused, Source: domain.SourceBacktested, FirstTrackedAt: 2,
	}))

	s := NewStore(persist, nil)
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 2, s.Snapshot().Len())
	assert.Equal(t, []string{walletA}, s.Snapshot().Active())
	assert.Equal(t, walletA, s.Snapshot().List()[0].Address)
}

type failingWallets struct{ storage.WalletStore }

func (failingWallets) Upsert(context.Context, *domain.CredibleWallet) error {
	return errors.New("db down")
}

func TestStore_PersistFailureLeavesSnapshot(t *testing.T) {
	s := NewStore(failingWallets{memory.NewWalletStore()}, nil)
	_, err := s.Upsert(context.Background(), walletA, "x")
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, 0, s.Snapshot().Len())
}

// Readers never see a partially applied batch of writes: every snapshot
// holds a consistent count between active and total wallets.
func TestStore_ConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				if len(snap.Active()) != snap.ActiveCount() || snap.ActiveCount() > snap.Len() {
					t.Errorf("inconsistent snapshot")
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		_, err := s.UpsertDiscovered(ctx, pumpfuntest.Address(byte(10+i)), "d", nil)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, 50, s.Snapshot().ActiveCount())
}
