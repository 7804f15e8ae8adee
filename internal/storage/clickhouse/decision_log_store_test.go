package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/storage"
)

func TestDecisionLog_RecordAndList(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	log := NewDecisionLog(conn)

	records := []*storage.DecisionRecord{
		{ID: "d2", Address: "Mint1", Outcome: domain.OutcomeSignaled, MatchCount: 2, Score: 60, DecidedAt: 2000},
		{ID: "d1", Address: "Mint1", Outcome: domain.OutcomeDiscarded, Reason: domain.ReasonStale, DecidedAt: 1000},
		{ID: "d3", Address: "Mint2", Outcome: domain.OutcomeFailed, Err: "rpc timeout", DecidedAt: 1500},
	}
	require.NoError(t, log.Record(ctx, records))

	got, err := log.ListByAddress(ctx, "Mint1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d1", got[0].ID)
	assert.Equal(t, domain.ReasonStale, got[0].Reason)
	assert.Equal(t, domain.OutcomeSignaled, got[1].Outcome)
	assert.Equal(t, 60, got[1].Score)
	assert.Equal(t, 2, got[1].MatchCount)

	failed, err := log.ListByAddress(ctx, "Mint2")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "rpc timeout", failed[0].Err)
}

func TestDecisionLog_RecordRejectsEmptyAddress(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	err := NewDecisionLog(conn).Record(context.Background(), []*storage.DecisionRecord{{ID: "x"}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestParseDSN(t *testing.T) {
	opts, err := parseDSN("clickhouse://user:pw@localhost:9440/signals")
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9440"}, opts.Addr)
	assert.Equal(t, "user", opts.Auth.Username)
	assert.Equal(t, "pw", opts.Auth.Password)
	assert.Equal(t, "signals", opts.Auth.Database)

	opts, err = parseDSN("clickhouse://localhost")
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9000"}, opts.Addr)

	_, err = parseDSN("not a dsn")
	assert.Error(t, err)
}
