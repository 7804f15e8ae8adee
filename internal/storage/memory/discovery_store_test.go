package memory

import (
	"context"
	"testing"

	"solana-signal-engine/internal/domain"
)

func TestWinnerStore_UpsertIdempotent(t *testing.T) {
	store := NewWinnerStore()
	ctx := context.Background()

	w := &domain.WinnerAsset{Address: "win1", RunDate: "2025-01-01", Symbol: "WIN", GainMultiple: 150}
	created, err := store.Upsert(ctx, w)
	if err != nil || !created {
		t.Fatalf("first Upsert: created=%v err=%v", created, err)
	}

	_ = store.SetExtraction(ctx, "win1", domain.ExtractionDone, 10)

	w2 := &domain.WinnerAsset{Address: "win1", RunDate: "2025-01-01", GainMultiple: 180}
	created, err = store.Upsert(ctx, w2)
	if err != nil || created {
		t.Fatalf("second Upsert: created=%v err=%v", created, err)
	}

	n, _ := store.Count(ctx)
	if n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}

	done, _ := store.ListByExtraction(ctx, domain.ExtractionDone)
	if len(done) != 1 || done[0].GainMultiple != 180 || done[0].BuyersFound != 10 {
		t.Errorf("unexpected winner after refresh: %+v", done)
	}
}

func TestEarlyBuyerStore_InsertBatchSkipsDuplicates(t *testing.T) {
	winners := NewWinnerStore()
	store := NewEarlyBuyerStore(winners)
	ctx := context.Background()

	batch := []*domain.EarlyBuyer{
		{WinnerAddress: "win1", Wallet: "w1", EntryTime: 2},
		{WinnerAddress: "win1", Wallet: "w2", EntryTime: 1},
	}
	n, err := store.InsertBatch(ctx, batch)
	if err != nil || n != 2 {
		t.Fatalf("InsertBatch: n=%d err=%v", n, err)
	}

	n, err = store.InsertBatch(ctx, batch)
	if err != nil || n != 0 {
		t.Fatalf("second InsertBatch: n=%d err=%v", n, err)
	}

	list, _ := store.ListByWinner(ctx, "win1")
	if len(list) != 2 || list[0].Wallet != "w2" {
		t.Errorf("unexpected buyers: %+v", list)
	}
}

func TestEarlyBuyerStore_AggregateByWallet(t *testing.T) {
	winners := NewWinnerStore()
	store := NewEarlyBuyerStore(winners)
	ctx := context.Background()

	_, _ = winners.Upsert(ctx, &domain.WinnerAsset{Address: "win1", RunDate: "2025-01-10", Symbol: "AAA"})
	_, _ = winners.Upsert(ctx, &domain.WinnerAsset{Address: "win2", RunDate: "2025-01-11", Symbol: "BBB"})
	_, _ = winners.Upsert(ctx, &domain.WinnerAsset{Address: "win2", RunDate: "2025-01-12", Symbol: "BBB"})
	_, _ = winners.Upsert(ctx, &domain.WinnerAsset{Address: "old", RunDate: "2024-11-01", Symbol: "OLD"})

	_, _ = store.InsertBatch(ctx, []*domain.EarlyBuyer{
		{WinnerAddress: "win1", Wallet: "repeat"},
		{WinnerAddress: "win2", Wallet: "repeat"},
		{WinnerAddress: "win1", Wallet: "once"},
		{WinnerAddress: "win1", Wallet: "stale"},
		{WinnerAddress: "old", Wallet: "stale"},
	})

	got, err := store.AggregateByWallet(ctx, "2025-01-01", 2)
	if err != nil {
		t.Fatalf("AggregateByWallet failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 wallet, got %d: %+v", len(got), got)
	}
	if got[0].Wallet != "repeat" || got[0].WinnerCount != 2 {
		t.Errorf("unexpected appearance: %+v", got[0])
	}
	if len(got[0].Symbols) != 2 || got[0].Symbols[0] != "AAA" || got[0].Symbols[1] != "BBB" {
		t.Errorf("unexpected symbols: %v", got[0].Symbols)
	}
}
