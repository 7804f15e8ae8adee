package walletdiscovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-engine/internal/credibility"
	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage/memory"
)

type engineFixture struct {
	engine  *Engine
	gainers *fakeGainers
	signers *fakeSigners
	winners *memory.WinnerStore
	buyers  *memory.EarlyBuyerStore
	wallets *credibility.Store
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		gainers: &fakeGainers{gainers: []domain.Gainer{gainer("A", "AAA"), gainer("B", "BBB"), gainer("C", "CCC")}},
		signers: newFakeSigners(),
		winners: memory.NewWinnerStore(),
	}
	f.buyers = memory.NewEarlyBuyerStore(f.winners)
	f.wallets = credibility.NewStore(memory.NewWalletStore(), nil)

	f.signers.signers["A"] = history("devA", "smart1", "smart2", "x1")
	f.signers.signers["B"] = history("devB", "smart1", "x2", "smart2")
	f.signers.signers["C"] = history("devC", "smart1", "x3")

	ext := NewExtractor(f.signers, f.winners, f.buyers, DefaultExtractorConfig(), nil)
	ext.lpAddress = func(string) (string, error) { return "", errors.New("not a pump mint") }

	f.engine = NewEngine(Options{
		Finder:    NewFinder(f.gainers, f.winners, DefaultFinderConfig(), nil),
		Extractor: ext,
		CrossRef:  NewCrossReferencer(f.buyers, f.wallets, DefaultCrossRefConfig(), nil),
		Winners:   f.winners,
		Buyers:    f.buyers,
	})
	f.engine.now = func() time.Time { return runAt }
	return f
}

func TestEngine_Run(t *testing.T) {
	f := newEngineFixture()

	summary, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.WinnersFound)
	assert.Equal(t, 3, summary.WinnersNew)
	assert.Equal(t, 3, summary.Extracted)
	assert.Equal(t, 8, summary.BuyersStored)
	assert.Equal(t, 2, summary.Candidates)
	assert.Equal(t, 2, summary.WalletsCreated)
	assert.Empty(t, summary.Errors)

	snap := f.wallets.Snapshot()
	w, ok := snap.Get("smart1")
	require.True(t, ok)
	assert.Equal(t, "Discovery_3x (AAA, BBB, CCC)", w.Label)
	w, ok = snap.Get("smart2")
	require.True(t, ok)
	assert.Equal(t, "Discovery_2x (AAA, BBB)", w.Label)
	assert.Equal(t, 2, snap.Len())
}

func TestEngine_RerunIsIdempotent(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	_, err := f.engine.Run(ctx)
	require.NoError(t, err)
	second, err := f.engine.Run(ctx)
	require.NoError(t, err)

	assert.Zero(t, second.WinnersNew)
	assert.Zero(t, second.Extracted, "done winners are not listed again")
	assert.Zero(t, second.BuyersStored)
	assert.Zero(t, second.WalletsCreated)
	assert.Equal(t, 2, second.WalletsUpdated)

	winners, err := f.winners.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, winners)
	buyers, err := f.buyers.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, buyers)
	assert.Equal(t, 2, f.wallets.Snapshot().Len())
	assert.Equal(t, 1, f.signers.callsFor("A"))
}

func TestEngine_PartialExtractionFailure(t *testing.T) {
	f := newEngineFixture()
	f.signers.errs["C"] = errors.New("rpc timeout")

	summary, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Extracted)
	assert.Equal(t, 1, summary.ExtractFailed)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "rpc timeout")

	// Buyers from A and B are still promoted.
	w, ok := f.wallets.Snapshot().Get("smart1")
	require.True(t, ok)
	assert.Equal(t, "Discovery_2x (AAA, BBB)", w.Label)

	// The failed winner is retried by the next run.
	delete(f.signers.errs, "C")
	summary, err = f.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Extracted)
	w, _ = f.wallets.Snapshot().Get("smart1")
	assert.Equal(t, "Discovery_3x (AAA, BBB, CCC)", w.Label)
}

func TestEngine_FindFailure(t *testing.T) {
	f := newEngineFixture()
	f.gainers.err = errors.New("market down")

	summary, err := f.engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage 1")
	require.NotNil(t, summary)
	assert.Zero(t, f.wallets.Snapshot().Len())
}

func TestEngine_RejectsConcurrentRun(t *testing.T) {
	f := newEngineFixture()
	f.engine.running = true

	_, err := f.engine.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.NoError(t, f.engine.RunJob(context.Background()))
}

func TestEngine_Status(t *testing.T) {
	f := newEngineFixture()
	f.signers.errs["C"] = errors.New("rpc timeout")
	ctx := context.Background()

	st, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Winners)
	assert.Nil(t, st.LastRun)

	_, err = f.engine.Run(ctx)
	require.NoError(t, err)

	st, err = f.engine.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, 3, st.Winners)
	assert.Zero(t, st.Pending)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 6, st.EarlyBuyers)
	assert.Equal(t, 2, st.Candidates)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, 2, st.LastRun.Extracted)
}
