package memory

import (
	"context"
	"sort"
	"sync"

	"solana-signal-engine/internal/storage"
)

// DecisionLog is an in-memory implementation of storage.DecisionLog.
type DecisionLog struct {
	mu      sync.RWMutex
	records []*storage.DecisionRecord
}

// NewDecisionLog creates a new in-memory decision log.
func NewDecisionLog() *DecisionLog {
	return &DecisionLog{}
}

// Record appends decisions.
func (l *DecisionLog) Record(_ context.Context, records []*storage.DecisionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		recordCopy := *r
		l.records = append(l.records, &recordCopy)
	}
	return nil
}

// ListByAddress returns decisions of an asset ordered by decided_at ASC.
func (l *DecisionLog) ListByAddress(_ context.Context, address string) ([]*storage.DecisionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*storage.DecisionRecord
	for _, r := range l.records {
		if r.Address == address {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].DecidedAt < result[j].DecidedAt
	})
	return result, nil
}

var _ storage.DecisionLog = (*DecisionLog)(nil)
