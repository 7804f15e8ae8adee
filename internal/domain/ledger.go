package domain

// AssetCreated is emitted when a new asset is created on chain.
type AssetCreated struct {
	Address   string // token mint address
	Creator   string // creator wallet address
	CreatedAt int64  // block time (ms)
	Symbol    string
	Name      string
	Signature string // creation transaction signature
	Slot      int64
}

// SignerKind classifies what a signer did in a transaction.
type SignerKind string

const (
	SignerCreate SignerKind = "create"
	SignerBuy    SignerKind = "buy"
	SignerSell   SignerKind = "sell"
	SignerOther  SignerKind = "other"
)

// SignerOrder selects the ordering of a signer lookup.
type SignerOrder int

const (
	NewestFirst SignerOrder = iota
	OldestFirst
)

// Signer is a wallet that signed a transaction against an asset.
type Signer struct {
	Wallet     string // fee payer address
	Slot       int64
	BlockTime  int64 // ms
	Signature  string
	Kind       SignerKind
	EntryPrice float64 // SOL per token for buys, 0 when unknown
}

// Transfer is a native SOL transfer between two wallets.
type Transfer struct {
	From      string
	To        string
	Lamports  uint64
	Slot      int64
	BlockTime int64 // ms
	Signature string
}

// TimeWindow is an inclusive [Start, End] range in Unix milliseconds.
type TimeWindow struct {
	Start int64
	End   int64
}

// Contains reports whether ts falls inside the window.
func (w TimeWindow) Contains(ts int64) bool {
	return ts >= w.Start && ts <= w.End
}
