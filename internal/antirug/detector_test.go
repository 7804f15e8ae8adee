package antirug

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-engine/internal/domain"
)

const creator = "DEV"

// fundingGraph is a synthetic funding graph keyed by recipient.
type fundingGraph struct {
	mu        sync.Mutex
	transfers map[string][]domain.Transfer
	lookups   []string
	err       error
}

func newGraph() *fundingGraph {
	return &fundingGraph{transfers: make(map[string][]domain.Transfer)}
}

func (g *fundingGraph) fund(from, to string, at int64) {
	g.transfers[to] = append(g.transfers[to], domain.Transfer{From: from, To: to, Lamports: 1e9, BlockTime: at})
}

func (g *fundingGraph) GetFundingHistory(_ context.Context, wallet string, window domain.TimeWindow) ([]domain.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups = append(g.lookups, wallet)
	if g.err != nil {
		return nil, g.err
	}
	var out []domain.Transfer
	for _, t := range g.transfers[wallet] {
		if window.Contains(t.BlockTime) {
			out = append(out, t)
		}
	}
	return out, nil
}

const buyTime = int64(10_000_000)

func buyers(n int, slot int64, prefix string) []domain.Signer {
	out := make([]domain.Signer, n)
	for i := range out {
		out[i] = domain.Signer{
			Wallet:    fmt.Sprintf("%s%d", prefix, i),
			Slot:      slot,
			BlockTime: buyTime,
			Kind:      domain.SignerBuy,
		}
	}
	return out
}

func fundAll(g *fundingGraph, signers []domain.Signer, from string, at int64) {
	for _, s := range signers {
		g.fund(from, s.Wallet, at)
	}
}

func TestDetect_SixCreatorFundedBuyersInOneSlotFlags(t *testing.T) {
	g := newGraph()
	signers := buyers(6, 100, "w")
	fundAll(g, signers, creator, buyTime-60_000)

	res, err := New(g, DefaultConfig(), nil).Detect(context.Background(), creator, signers)
	require.NoError(t, err)
	assert.True(t, res.Flagged)
	assert.Equal(t, int64(100), res.Slot)
	assert.Equal(t, 6, res.FundedCount)
	assert.Len(t, res.FundedWallets, 6)
}

func TestDetect_FourCreatorFundedBuyersDoesNotFlag(t *testing.T) {
	g := newGraph()
	signers := buyers(4, 100, "w")
	fundAll(g, signers, creator, buyTime-60_000)

	res, err := New(g, DefaultConfig(), nil).Detect(context.Background(), creator, signers)
	require.NoError(t, err)
	assert.False(t, res.Flagged)
	// Groups that cannot exceed the threshold are never looked up.
	assert.Empty(t, g.lookups)
}

func TestDetect_ThresholdIsExclusive(t *testing.T) {
	g := newGraph()
	signers := buyers(6, 100, "w")
	fundAll(g, signers[:5], creator, buyTime-60_000)
	g.fund("EXCHANGE", signers[5].Wallet, buyTime-60_000)

	res, err := New(g, DefaultConfig(), nil).Detect(context.Background(), creator, signers)
	require.NoError(t, err)
	assert.False(t, res.Flagged)
	assert.Equal(t, 5, res.FundedCount)
	assert.Equal(t, 6, res.Checked)
}

func TestDetect_OnlyMostRecentPriorTransferCounts(t *testing.T) {
	g := newGraph()
	signers := buyers(6, 100, "w")
	fundAll(g, signers, creator, buyTime-120_000)
	// One wallet was topped up by someone else after the creator funded it.
	g.fund("OTHER", signers[0].Wallet, buyTime-30_000)

	res, err := New(g, DefaultConfig(), nil).Detect(context.Background(), creator, signers)
	require.NoError(t, err)
	assert.False(t, res.Flagged)
	assert.Equal(t, 5, res.FundedCount)
}

func TestDetect_FundingOutsideLookbackIgnored(t *testing.T) {
	g := newGraph()
	signers := buyers(6, 100, "w")
	cfg := DefaultConfig()
	fundAll(g, signers, creator, buyTime-cfg.Lookback.Milliseconds()-1)

	res, err := New(g, cfg, nil).Detect(context.Background(), creator, signers)
	require.NoError(t, err)
	assert.False(t, res.Flagged)
	assert.Zero(t, res.FundedCount)
}

func TestDetect_SlotWindow(t *testing.T) {
	g := newGraph()
	signers := append(buyers(3, 100, "a"), buyers(3, 101, "b")...)
	fundAll(g, signers, creator, buyTime-60_000)

	strict, err := New(g, DefaultConfig(), nil).Detect(context.Background(), creator, signers)
	require.NoError(t, err)
	assert.False(t, strict.Flagged)

	cfg := DefaultConfig()
	cfg.SlotWindow = 1
	wide, err := New(g, cfg, nil).Detect(context.Background(), creator, signers)
	require.NoError(t, err)
	assert.True(t, wide.Flagged)
	assert.Equal(t, int64(100), wide.Slot)
}

func TestDetect_IgnoresCreatorSellsAndRepeatBuys(t *testing.T) {
	g := newGraph()
	signers := buyers(5, 100, "w")
	fundAll(g, signers, creator, buyTime-60_000)
	signers = append(signers,
		domain.Signer{Wallet: creator, Slot: 100, BlockTime: buyTime, Kind: domain.SignerBuy},
		domain.Signer{Wallet: "seller", Slot: 100, BlockTime: buyTime, Kind: domain.SignerSell},
		// Second buy of w0 in a later slot does not move its first buy.
		domain.Signer{Wallet: "w0", Slot: 105, BlockTime: buyTime + 2_000, Kind: domain.SignerBuy},
	)
	g.fund(creator, "seller", buyTime-60_000)

	res, err := New(g, DefaultConfig(), nil).Detect(context.Background(), creator, signers)
	require.NoError(t, err)
	assert.False(t, res.Flagged)
	assert.Empty(t, g.lookups)
}

func TestDetect_LookupErrorFails(t *testing.T) {
	g := newGraph()
	g.err = errors.New("rate limited")

	_, err := New(g, DefaultConfig(), nil).Detect(context.Background(), creator, buyers(6, 100, "w"))
	assert.ErrorContains(t, err, "rate limited")
}

func TestDetect_NoSigners(t *testing.T) {
	res, err := New(newGraph(), DefaultConfig(), nil).Detect(context.Background(), creator, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}
