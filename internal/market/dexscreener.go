// Package market provides market data for assets from DexScreener.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/httpclient"
)

// ErrNotFound is returned when no pair is known for an asset.
var ErrNotFound = errors.New("market: no pairs found")

const (
	// DefaultBaseURL is the public DexScreener API.
	DefaultBaseURL = "https://api.dexscreener.com"

	chainSolana    = "solana"
	maxBatchSize   = 30
	pumpLaunchCap  = 5_000
	otherLaunchCap = 10_000
)

// ammDexes are the automated market makers an asset graduates to.
var ammDexes = map[string]bool{
	"raydium":  true,
	"meteora":  true,
	"orca":     true,
	"jupiter":  true,
	"pumpswap": true,
}

// DefaultSearchTerms seed the historical gainer sweep.
var DefaultSearchTerms = []string{
	"pump SOL", "pumpfun", "meme SOL", "AI agent SOL", "cat SOL",
	"dog SOL", "pepe SOL", "trump SOL", "doge SOL", "bonk SOL",
}

// Provider is the market data contract consumed by the tracker and the
// winner finder.
type Provider interface {
	GetCurrentMarketData(ctx context.Context, address string) (domain.MarketData, error)
	GetHistoricalGainers(ctx context.Context, window time.Duration, minGain float64) ([]domain.Gainer, error)
}

// Config configures the DexScreener provider.
type Config struct {
	BaseURL     string
	SearchTerms []string
}

// DexScreener implements Provider over the DexScreener public API.
type DexScreener struct {
	http    *httpclient.Client
	baseURL string
	terms   []string
	logger  *zap.Logger
	now     func() time.Time
}

var _ Provider = (*DexScreener)(nil)

// NewDexScreener creates a DexScreener provider.
func NewDexScreener(client *httpclient.Client, cfg Config, logger *zap.Logger) *DexScreener {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if len(cfg.SearchTerms) == 0 {
		cfg.SearchTerms = DefaultSearchTerms
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DexScreener{
		http:    client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		terms:   cfg.SearchTerms,
		logger:  logger.Named("dexscreener"),
		now:     time.Now,
	}
}

type token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type pair struct {
	ChainID       string          `json:"chainId"`
	DexID         string          `json:"dexId"`
	PairAddress   string          `json:"pairAddress"`
	BaseToken     token           `json:"baseToken"`
	PriceUSD      decimal.Decimal `json:"priceUsd"`
	FDV           decimal.Decimal `json:"fdv"`
	MarketCap     decimal.Decimal `json:"marketCap"`
	PairCreatedAt int64           `json:"pairCreatedAt"`
	Liquidity     struct {
		USD decimal.Decimal `json:"usd"`
	} `json:"liquidity"`
}

// effectiveCap returns market cap, falling back to fully diluted valuation.
func (p pair) effectiveCap() decimal.Decimal {
	if p.MarketCap.IsPositive() {
		return p.MarketCap
	}
	return p.FDV
}

func (p pair) onAMM() bool {
	return ammDexes[strings.ToLower(p.DexID)]
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type boost struct {
	ChainID      string `json:"chainId"`
	TokenAddress string `json:"tokenAddress"`
}

// GetCurrentMarketData returns the state of the asset's largest pair. The
// asset counts as listed on an AMM when any of its pairs trades on one.
func (d *DexScreener) GetCurrentMarketData(ctx context.Context, address string) (domain.MarketData, error) {
	data, err := d.GetMarketDataBatch(ctx, []string{address})
	if err != nil {
		return domain.MarketData{}, err
	}
	md, ok := data[address]
	if !ok {
		return domain.MarketData{}, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	return md, nil
}

// GetMarketDataBatch returns market data for every address that has at
// least one Solana pair. Addresses are queried in batches of 30.
func (d *DexScreener) GetMarketDataBatch(ctx context.Context, addresses []string) (map[string]domain.MarketData, error) {
	pairs, err := d.tokenPairs(ctx, addresses)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		wanted[a] = true
	}

	best := make(map[string]pair)
	listed := make(map[string]bool)
	for _, p := range pairs {
		addr := p.BaseToken.Address
		if !wanted[addr] {
			continue
		}
		if p.onAMM() {
			listed[addr] = true
		}
		if cur, ok := best[addr]; !ok || p.effectiveCap().GreaterThan(cur.effectiveCap()) {
			best[addr] = p
		}
	}

	out := make(map[string]domain.MarketData, len(best))
	for addr, p := range best {
		out[addr] = domain.MarketData{
			MarketCap:    p.effectiveCap().InexactFloat64(),
			LiquidityUSD: p.Liquidity.USD.InexactFloat64(),
			DexID:        p.DexID,
			PairAddress:  p.PairAddress,
			ListedOnAMM:  listed[addr],
		}
	}
	return out, nil
}

// GetHistoricalGainers sweeps boosted tokens and search results for Solana
// assets launched inside window whose current cap is at least minGain times
// the estimated launch cap. DexScreener exposes no price history, so the
// current cap stands in for the peak and pair age for time-to-peak.
func (d *DexScreener) GetHistoricalGainers(ctx context.Context, window time.Duration, minGain float64) ([]domain.Gainer, error) {
	boosted, err := d.boostedTokens(ctx)
	if err != nil {
		// One source failing still leaves the search sweep.
		d.logger.Warn("boosted tokens unavailable", zap.Error(err))
	}
	searched := d.search(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	seen := make(map[string]bool)
	var addresses []string
	add := func(addr string) {
		if addr != "" && !seen[addr] {
			seen[addr] = true
			addresses = append(addresses, addr)
		}
	}
	for _, addr := range boosted {
		add(addr)
	}
	for _, p := range searched {
		add(p.BaseToken.Address)
	}

	pairs, err := d.tokenPairs(ctx, addresses)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		known[p.PairAddress] = true
	}
	for _, p := range searched {
		if !known[p.PairAddress] {
			pairs = append(pairs, p)
		}
	}

	best := make(map[string]pair)
	for _, p := range pairs {
		addr := p.BaseToken.Address
		if addr == "" {
			continue
		}
		if cur, ok := best[addr]; !ok || p.effectiveCap().GreaterThan(cur.effectiveCap()) {
			best[addr] = p
		}
	}

	now := d.now().UnixMilli()
	cutoff := now - window.Milliseconds()
	var gainers []domain.Gainer
	for addr, p := range best {
		if p.PairCreatedAt != 0 && p.PairCreatedAt < cutoff {
			continue
		}
		peak := p.effectiveCap()
		if !peak.IsPositive() {
			continue
		}
		start := launchCap(p.DexID)
		if peak.Div(start).LessThan(decimal.NewFromFloat(minGain)) {
			continue
		}

		g := domain.Gainer{
			Address:        addr,
			Symbol:         p.BaseToken.Symbol,
			PairAddress:    p.PairAddress,
			DexID:          p.DexID,
			StartMarketCap: start.InexactFloat64(),
			PeakMarketCap:  peak.InexactFloat64(),
			LaunchedAt:     p.PairCreatedAt,
		}
		if p.PairCreatedAt > 0 {
			g.TimeToPeak = now - p.PairCreatedAt
		}
		gainers = append(gainers, g)
	}

	sort.Slice(gainers, func(i, j int) bool {
		gi, gj := gainers[i].GainMultiple(), gainers[j].GainMultiple()
		if gi != gj {
			return gi > gj
		}
		return gainers[i].Address < gainers[j].Address
	})
	d.logger.Info("historical gainers",
		zap.Int("boosted", len(boosted)),
		zap.Int("searched", len(searched)),
		zap.Int("candidates", len(best)),
		zap.Int("gainers", len(gainers)),
	)
	return gainers, nil
}

// launchCap estimates the market cap at launch: pump.fun curves start near
// $5k, other venues near $10k.
func launchCap(dexID string) decimal.Decimal {
	if strings.Contains(strings.ToLower(dexID), "pump") {
		return decimal.NewFromInt(pumpLaunchCap)
	}
	return decimal.NewFromInt(otherLaunchCap)
}

// tokenPairs fetches Solana pairs for addresses in batches.
func (d *DexScreener) tokenPairs(ctx context.Context, addresses []string) ([]pair, error) {
	var out []pair
	for start := 0; start < len(addresses); start += maxBatchSize {
		end := min(start+maxBatchSize, len(addresses))
		var resp pairsResponse
		url := d.baseURL + "/latest/dex/tokens/" + strings.Join(addresses[start:end], ",")
		if err := d.http.Get(ctx, url, nil, &resp); err != nil {
			return nil, fmt.Errorf("token pairs: %w", err)
		}
		for _, p := range resp.Pairs {
			if p.ChainID == chainSolana {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (d *DexScreener) boostedTokens(ctx context.Context) ([]string, error) {
	var boosts []boost
	if err := d.http.Get(ctx, d.baseURL+"/token-boosts/top/v1", nil, &boosts); err != nil {
		return nil, err
	}
	var out []string
	for _, b := range boosts {
		if b.ChainID == chainSolana && b.TokenAddress != "" {
			out = append(out, b.TokenAddress)
		}
	}
	return out, nil
}

// search runs every search term; failing terms are skipped.
func (d *DexScreener) search(ctx context.Context) []pair {
	seen := make(map[string]bool)
	var out []pair
	for _, term := range d.terms {
		if ctx.Err() != nil {
			return out
		}
		var resp pairsResponse
		err := d.http.Get(ctx, d.baseURL+"/latest/dex/search", map[string]string{"q": term}, &resp)
		if err != nil {
			d.logger.Debug("search failed", zap.String("term", term), zap.Error(err))
			continue
		}
		for _, p := range resp.Pairs {
			addr := p.BaseToken.Address
			if p.ChainID != chainSolana || addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			out = append(out, p)
		}
	}
	return out
}
