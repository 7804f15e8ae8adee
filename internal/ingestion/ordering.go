package ingestion

import (
	"errors"
	"sort"

	"solana-signal-engine/internal/domain"
)

// ErrInvalidOrdering is returned when events are not properly ordered.
var ErrInvalidOrdering = errors.New("events are not in ledger order")

// SortAssetCreated orders events by (slot ASC, signature ASC, address ASC),
// the order in which the ledger produced them.
func SortAssetCreated(events []domain.AssetCreated) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareAssetCreated(&events[i], &events[j]) < 0
	})
}

// ValidateOrdering checks that events are strictly ordered.
// Returns ErrInvalidOrdering if not.
func ValidateOrdering(events []domain.AssetCreated) error {
	for i := 1; i < len(events); i++ {
		if compareAssetCreated(&events[i-1], &events[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareAssetCreated returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (slot ASC, signature ASC, address ASC)
func compareAssetCreated(a, b *domain.AssetCreated) int {
	if a.Slot != b.Slot {
		if a.Slot < b.Slot {
			return -1
		}
		return 1
	}
	if a.Signature != b.Signature {
		if a.Signature < b.Signature {
			return -1
		}
		return 1
	}
	if a.Address != b.Address {
		if a.Address < b.Address {
			return -1
		}
		return 1
	}
	return 0
}
