package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

func newAsset(addr string, createdAt int64) *domain.Asset {
	return &domain.Asset{
		Address:   addr,
		Symbol:    "SYM",
		Creator:   "creator",
		CreatedAt: createdAt,
		Status:    domain.AssetBonding,
	}
}

func newSignal(addr string, createdAt int64) *domain.Signal {
	return &domain.Signal{
		ID:           "id-" + addr,
		AssetAddress: addr,
		MatchCount:   2,
		Score:        60,
		CreatedAt:    createdAt,
	}
}

func TestSignalStore_InsertSignalAtomic(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	if err := store.InsertSignal(ctx, newAsset("mint1", 100), newSignal("mint1", 200)); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}

	err := store.InsertSignal(ctx, newAsset("mint1", 100), newSignal("mint1", 300))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	sig, err := store.GetByAsset(ctx, "mint1")
	if err != nil {
		t.Fatalf("GetByAsset failed: %v", err)
	}
	if sig.CreatedAt != 200 {
		t.Errorf("signal overwritten: CreatedAt = %d", sig.CreatedAt)
	}

	if _, err := store.Get(ctx, "mint1"); err != nil {
		t.Errorf("asset not stored: %v", err)
	}
}

func TestSignalStore_ConcurrentDuplicateInsert(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.InsertSignal(ctx, newAsset("mint1", 100), newSignal("mint1", 200)); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly 1 successful insert, got %d", successes)
	}
}

func TestSignalStore_ListLatest(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	for i, addr := range []string{"a", "b", "c"} {
		_ = store.InsertSignal(ctx, newAsset(addr, int64(i)), newSignal(addr, int64(1000+i)))
	}

	views, err := store.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("ListLatest failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[0].Signal.AssetAddress != "c" || views[1].Signal.AssetAddress != "b" {
		t.Errorf("unexpected order: %s, %s", views[0].Signal.AssetAddress, views[1].Signal.AssetAddress)
	}
	if views[0].Asset.Address != "c" {
		t.Errorf("asset not joined: %+v", views[0].Asset)
	}
}

func TestSignalStore_TransitionStatus(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()
	_ = store.InsertSignal(ctx, newAsset("mint1", 100), newSignal("mint1", 200))

	if err := store.TransitionStatus(ctx, "mint1", domain.AssetBonding, domain.AssetGraduated, 60000, 300); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}

	err := store.TransitionStatus(ctx, "mint1", domain.AssetBonding, domain.AssetRugged, 10, 400)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	a, _ := store.Get(ctx, "mint1")
	if a.Status != domain.AssetGraduated || a.MarketCapAtScan != 60000 {
		t.Errorf("unexpected asset: %+v", a)
	}

	bonding, _ := store.ListByStatus(ctx, domain.AssetBonding)
	if len(bonding) != 0 {
		t.Errorf("graduated asset still listed as bonding")
	}

	if err := store.TransitionStatus(ctx, "missing", domain.AssetBonding, domain.AssetRugged, 0, 0); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
