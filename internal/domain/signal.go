package domain

// Signal is an accepted high-confidence detection for one asset.
// Corresponds to signals table in PostgreSQL. Immutable once created.
type Signal struct {
	ID           string // PRIMARY KEY, deterministic hash of the asset address
	AssetAddress string // UNIQUE, references assets.address
	MatchCount   int    // credible wallets among the asset's signers
	Score        int    // confidence score in [0, 100]
	CreatedAt    int64  // Unix timestamp in milliseconds
	Executed     bool   // reserved, always false
}

// SignalView joins a signal with its asset for the serving layer.
type SignalView struct {
	Signal Signal
	Asset  Asset
}
