package domain

// MarketData is the current market state of an asset.
type MarketData struct {
	MarketCap    float64 // USD
	LiquidityUSD float64
	DexID        string
	PairAddress  string
	ListedOnAMM  bool
}

// Gainer is a historical asset reported by the market data provider.
type Gainer struct {
	Address        string
	Symbol         string
	PairAddress    string
	DexID          string
	StartMarketCap float64 // USD
	PeakMarketCap  float64 // USD
	TimeToPeak     int64   // ms from launch to peak
	LaunchedAt     int64   // pair creation time (ms)
}

// GainMultiple returns peak / start, or 0 when start is unknown.
func (g Gainer) GainMultiple() float64 {
	if g.StartMarketCap <= 0 {
		return 0
	}
	return g.PeakMarketCap / g.StartMarketCap
}
