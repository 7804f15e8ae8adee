package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("no viable bump seed")

const (
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

// IsValidAddress reports whether s is a base58 encoded 32-byte public key.
func IsValidAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}

// IsOnCurve reports whether the 32-byte key is a valid ed25519 point.
// Program derived addresses are always off the curve.
func IsOnCurve(key []byte) bool {
	if len(key) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(key)
	return err == nil
}

// FindProgramAddress derives the canonical PDA for seeds under programID,
// trying bump seeds from 255 down and returning the first off-curve result.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := base58.Decode(programID)
	if err != nil || len(program) != 32 {
		return "", 0, fmt.Errorf("invalid program id %q", programID)
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return "", 0, fmt.Errorf("seed exceeds %d bytes", maxSeedLength)
		}
	}

	for bump := 255; bump > 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program)
		h.Write([]byte(pdaMarker))
		sum := h.Sum(nil)

		if !IsOnCurve(sum) {
			return base58.Encode(sum), uint8(bump), nil
		}
	}
	return "", 0, ErrNoViableBump
}

// DecodeAddress decodes a base58 public key.
func DecodeAddress(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("address %q has %d bytes", s, len(b))
	}
	return b, nil
}
