package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeDecisionID computes a deterministic decision record id using SHA256.
// Formula: SHA256(address|outcome|reason|decided_at)
// Returns hex-encoded hash (64 characters).
func ComputeDecisionID(
	address string,
	outcome string,
	reason string,
	decidedAt int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		address,
		outcome,
		reason,
		decidedAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
