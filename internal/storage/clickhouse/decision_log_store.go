package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

// DecisionLog implements storage.DecisionLog using the analyzer_decisions table.
type DecisionLog struct {
	conn *Conn
}

// NewDecisionLog creates a new DecisionLog.
func NewDecisionLog(conn *Conn) *DecisionLog {
	return &DecisionLog{conn: conn}
}

// Compile-time interface check.
var _ storage.DecisionLog = (*DecisionLog)(nil)

// Record appends decisions in a single native batch.
func (s *DecisionLog) Record(ctx context.Context, records []*storage.DecisionRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	defer observe("decision_record", time.Now(), &err)

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO analyzer_decisions (id, address, outcome, reason, match_count, score, err, decided_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		if r == nil || r.Address == "" {
			_ = batch.Abort()
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			r.ID,
			r.Address,
			string(r.Outcome),
			string(r.Reason),
			uint32(r.MatchCount),
			uint8(r.Score),
			r.Err,
			r.DecidedAt,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append decision: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListByAddress returns decisions for an address ordered by decided_at ASC.
func (s *DecisionLog) ListByAddress(ctx context.Context, address string) ([]*storage.DecisionRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, address, outcome, reason, match_count, score, err, decided_at
		FROM analyzer_decisions
		WHERE address = ?
		ORDER BY decided_at ASC, id ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var result []*storage.DecisionRecord
	for rows.Next() {
		var r storage.DecisionRecord
		var outcome, reason string
		var matchCount uint32
		var score uint8
		if err := rows.Scan(&r.ID, &r.Address, &outcome, &reason, &matchCount, &score, &r.Err, &r.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		r.Outcome = domain.Outcome(outcome)
		r.Reason = domain.Reason(reason)
		r.MatchCount = int(matchCount)
		r.Score = int(score)
		result = append(result, &r)
	}
	return result, rows.Err()
}
