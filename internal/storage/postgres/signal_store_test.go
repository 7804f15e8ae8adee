package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

func newTestAsset(addr string, createdAt int64) *domain.Asset {
	return &domain.Asset{
		Address:         addr,
		Symbol:          "SYM",
		Name:            "Token " + addr,
		Creator:         "Creator1",
		CreatedAt:       createdAt,
		MarketCapAtScan: 6000,
		Status:          domain.AssetBonding,
		UpdatedAt:       createdAt,
	}
}

func newTestSignal(addr string, createdAt int64) *domain.Signal {
	return &domain.Signal{
		ID:           "sig-" + addr,
		AssetAddress: addr,
		MatchCount:   2,
		Score:        60,
		CreatedAt:    createdAt,
	}
}

func TestSignalStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSignalStore(pool)

	require.NoError(t, store.InsertSignal(ctx, newTestAsset("Mint1", 1000), newTestSignal("Mint1", 1100)))

	sig, err := store.GetByAsset(ctx, "Mint1")
	require.NoError(t, err)
	assert.Equal(t, 2, sig.MatchCount)
	assert.Equal(t, 60, sig.Score)
	assert.False(t, sig.Executed)

	asset, err := store.Get(ctx, "Mint1")
	require.NoError(t, err)
	assert.Equal(t, domain.AssetBonding, asset.Status)
	assert.Equal(t, "Creator1", asset.Creator)
}

func TestSignalStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSignalStore(pool)

	require.NoError(t, store.InsertSignal(ctx, newTestAsset("Mint1", 1000), newTestSignal("Mint1", 1100)))

	err := store.InsertSignal(ctx, newTestAsset("Mint1", 1000), newTestSignal("Mint1", 1200))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSignalStore_ListLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSignalStore(pool)

	require.NoError(t, store.InsertSignal(ctx, newTestAsset("Mint1", 1000), newTestSignal("Mint1", 1000)))
	require.NoError(t, store.InsertSignal(ctx, newTestAsset("Mint2", 2000), newTestSignal("Mint2", 2000)))
	require.NoError(t, store.InsertSignal(ctx, newTestAsset("Mint3", 3000), newTestSignal("Mint3", 3000)))

	views, err := store.ListLatest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Mint3", views[0].Signal.AssetAddress)
	assert.Equal(t, "Mint3", views[0].Asset.Address)
	assert.Equal(t, "Mint2", views[1].Signal.AssetAddress)
}

func TestSignalStore_TransitionStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSignalStore(pool)

	require.NoError(t, store.InsertSignal(ctx, newTestAsset("Mint1", 1000), newTestSignal("Mint1", 1000)))

	err := store.TransitionStatus(ctx, "Mint1", domain.AssetBonding, domain.AssetGraduated, 90000, 5000)
	require.NoError(t, err)

	asset, err := store.Get(ctx, "Mint1")
	require.NoError(t, err)
	assert.Equal(t, domain.AssetGraduated, asset.Status)
	assert.Equal(t, int64(5000), asset.UpdatedAt)

	// Second transition from bonding loses the compare-and-set.
	err = store.TransitionStatus(ctx, "Mint1", domain.AssetBonding, domain.AssetRugged, 0, 6000)
	assert.ErrorIs(t, err, storage.ErrConflict)

	err = store.TransitionStatus(ctx, "Missing", domain.AssetBonding, domain.AssetRugged, 0, 6000)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	bonding, err := store.ListByStatus(ctx, domain.AssetBonding)
	require.NoError(t, err)
	assert.Empty(t, bonding)
}
