package domain

// ExtractionStatus tracks early-buyer extraction for a winner asset.
type ExtractionStatus string

const (
	ExtractionPending ExtractionStatus = "pending"
	ExtractionDone    ExtractionStatus = "done"
	ExtractionFailed  ExtractionStatus = "failed"
)

// String returns the string representation of ExtractionStatus.
func (s ExtractionStatus) String() string {
	return string(s)
}

// WinnerAsset is a historical asset that achieved an extreme gain.
// Corresponds to winner_assets table; unique on (address, run_date).
type WinnerAsset struct {
	Address           string           // token mint address
	RunDate           string           // discovery run window, UTC date "2006-01-02"
	Symbol            string           // ticker symbol
	PairAddress       string           // AMM pool address (liquidity provider)
	DexID             string           // dex the best pair trades on
	StartMarketCap    float64          // USD market cap at launch
	PeakMarketCap     float64          // USD peak market cap
	GainMultiple      float64          // peak / start
	TimeToPeakMinutes int64            // minutes from launch to peak
	Extraction        ExtractionStatus // pending | done | failed
	BuyersFound       int              // early buyers stored for this winner
	DiscoveredAt      int64            // Unix timestamp in milliseconds
}

// EarlyBuyer is one of the first unique buyers of a winner asset.
// Corresponds to early_buyers table; unique on (winner_address, wallet).
type EarlyBuyer struct {
	WinnerAddress string  // references winner_assets.address
	Wallet        string  // buyer wallet address
	EntryTime     int64   // first buy block time (ms)
	EntryPrice    float64 // SOL paid per token on the first buy, 0 if unknown
	ExitTime      *int64  // first sell block time (ms), nil if not observed
	Signature     string  // first buy transaction signature
}
