package ingestion

import (
	"errors"
	"testing"

	"solana-signal-engine/internal/domain"
)

func TestSortAssetCreated(t *testing.T) {
	// Intentionally unordered events
	events := []domain.AssetCreated{
		{Slot: 200, Signature: "tx2", Address: "A"},
		{Slot: 100, Signature: "tx1", Address: "B"},
		{Slot: 100, Signature: "tx1", Address: "A"},
		{Slot: 100, Signature: "tx2", Address: "A"},
		{Slot: 300, Signature: "tx1", Address: "A"},
	}

	SortAssetCreated(events)

	// Verify order: (slot ASC, signature ASC, address ASC)
	expected := []struct {
		slot    int64
		sig     string
		address string
	}{
		{100, "tx1", "A"},
		{100, "tx1", "B"},
		{100, "tx2", "A"},
		{200, "tx2", "A"},
		{300, "tx1", "A"},
	}

	for i, exp := range expected {
		if events[i].Slot != exp.slot || events[i].Signature != exp.sig || events[i].Address != exp.address {
			t.Errorf("Index %d: got (%d, %s, %s), want (%d, %s, %s)",
				i, events[i].Slot, events[i].Signature, events[i].Address,
				exp.slot, exp.sig, exp.address)
		}
	}
}

func TestSortAssetCreated_Empty(t *testing.T) {
	var events []domain.AssetCreated
	SortAssetCreated(events) // Should not panic
}

func TestValidateOrdering(t *testing.T) {
	ordered := []domain.AssetCreated{
		{Slot: 100, Signature: "tx1"},
		{Slot: 100, Signature: "tx2"},
		{Slot: 200, Signature: "tx1"},
	}
	if err := ValidateOrdering(ordered); err != nil {
		t.Errorf("Expected ordered events to validate, got %v", err)
	}

	unordered := []domain.AssetCreated{
		{Slot: 200, Signature: "tx1"},
		{Slot: 100, Signature: "tx1"},
	}
	if err := ValidateOrdering(unordered); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("Expected ErrInvalidOrdering, got %v", err)
	}

	duplicate := []domain.AssetCreated{
		{Slot: 100, Signature: "tx1", Address: "A"},
		{Slot: 100, Signature: "tx1", Address: "A"},
	}
	if err := ValidateOrdering(duplicate); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("Expected duplicates to be rejected, got %v", err)
	}
}
