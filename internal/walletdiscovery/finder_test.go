package walletdiscovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage/memory"
)

func TestFinder_Qualifies(t *testing.T) {
	f := NewFinder(&fakeGainers{}, memory.NewWinnerStore(), DefaultFinderConfig(), nil)

	base := gainer("A", "AAA")
	tests := []struct {
		name   string
		mutate func(g *domain.Gainer)
		want   bool
	}{
		{"qualifies", func(*domain.Gainer) {}, true},
		{"start at ceiling", func(g *domain.Gainer) { g.StartMarketCap = 10_000; g.PeakMarketCap = 1_000_000 }, true},
		{"start above ceiling", func(g *domain.Gainer) { g.StartMarketCap = 10_001 }, false},
		{"peak below floor", func(g *domain.Gainer) { g.StartMarketCap = 5_000; g.PeakMarketCap = 999_999 }, false},
		{"gain below 100x", func(g *domain.Gainer) { g.StartMarketCap = 10_000; g.PeakMarketCap = 999_000 }, false},
		{"too slow", func(g *domain.Gainer) { g.TimeToPeak = (49 * time.Hour).Milliseconds() }, false},
		{"unknown time to peak", func(g *domain.Gainer) { g.TimeToPeak = 0 }, false},
		{"no start cap", func(g *domain.Gainer) { g.StartMarketCap = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := base
			tt.mutate(&g)
			assert.Equal(t, tt.want, f.Qualifies(g))
		})
	}
}

func TestFinder_FindStoresWinners(t *testing.T) {
	src := &fakeGainers{gainers: []domain.Gainer{
		gainer("A", "AAA"),
		gainer("A", "AAA"), // reported twice by the provider
		gainer("B", "BBB"),
		{Address: "C", Symbol: "SLOW", StartMarketCap: 5_000, PeakMarketCap: 2_000_000, TimeToPeak: (72 * time.Hour).Milliseconds()},
	}}
	store := memory.NewWinnerStore()
	f := NewFinder(src, store, DefaultFinderConfig(), nil)

	winners, created, err := f.Find(context.Background(), runAt)
	require.NoError(t, err)
	assert.Len(t, winners, 2)
	assert.Equal(t, 2, created)
	assert.Equal(t, 30*24*time.Hour, src.window)

	w := winners[0]
	assert.Equal(t, "2026-03-10", w.RunDate)
	assert.Equal(t, 400.0, w.GainMultiple)
	assert.Equal(t, int64(20*60), w.TimeToPeakMinutes)
	assert.Equal(t, domain.ExtractionPending, w.Extraction)

	// Same-day re-run refreshes rows instead of duplicating them.
	_, created, err = f.Find(context.Background(), runAt.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, created)
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFinder_SourceError(t *testing.T) {
	f := NewFinder(&fakeGainers{err: errors.New("dexscreener 503")}, memory.NewWinnerStore(), DefaultFinderConfig(), nil)
	_, _, err := f.Find(context.Background(), runAt)
	assert.ErrorContains(t, err, "dexscreener 503")
}
