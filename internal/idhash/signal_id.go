package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSignalID computes a deterministic signal_id using SHA256.
// Formula: SHA256(signal|asset_address)
// One asset yields at most one signal, so the asset address alone keys it.
// Returns hex-encoded hash (64 characters).
func ComputeSignalID(assetAddress string) string {
	data := fmt.Sprintf("signal|%s", assetAddress)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
