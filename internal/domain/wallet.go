package domain

// WalletStatus is the tracking status of a credible wallet.
type WalletStatus string

const (
	WalletActive WalletStatus = "active"
	WalletPaused WalletStatus = "paused"
)

// String returns the string representation of WalletStatus.
func (s WalletStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s WalletStatus) IsValid() bool {
	return s == WalletActive || s == WalletPaused
}

// CredibleWallet is an address considered credible for signal detection.
// Corresponds to credible_wallets table in PostgreSQL.
type CredibleWallet struct {
	Address        string          // PRIMARY KEY, base58 wallet address
	Label          string          // human readable label
	WinRate        *float64        // optional historical win rate (0..1)
	Status         WalletStatus    // active | paused
	Source         DiscoverySource // manual | backtested
	FirstTrackedAt int64           // Unix timestamp in milliseconds
	UpdatedAt      int64           // last metadata refresh (ms)
}

// IsActive reports whether the wallet participates in cross-referencing.
func (w *CredibleWallet) IsActive() bool {
	return w.Status == WalletActive
}

// WalletAppearance aggregates how many distinct winners a wallet bought early.
type WalletAppearance struct {
	Wallet      string
	WinnerCount int
	Symbols     []string // sorted, distinct winner symbols
}
