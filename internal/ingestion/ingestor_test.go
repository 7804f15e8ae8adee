package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/ingestion/stub"
)

type recordingSink struct {
	mu       sync.Mutex
	accepted []string
	calls    int
	accept   func(call int, ev domain.AssetCreated) bool
}

func (s *recordingSink) Submit(ev domain.AssetCreated) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.accept != nil && !s.accept(s.calls, ev) {
		return false
	}
	s.accepted = append(s.accepted, ev.Address)
	return true
}

func (s *recordingSink) Accepted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.accepted...)
}

type flagHealth struct{ degraded atomic.Bool }

func (h *flagHealth) Degraded() bool { return h.degraded.Load() }

func asset(addr string) domain.AssetCreated {
	return domain.AssetCreated{Address: addr, Creator: "creator", CreatedAt: time.Now().UnixMilli()}
}

func fastOptions(sub Source, poll Source, sink Sink) IngestorOptions {
	return IngestorOptions{
		Subscription:   sub,
		Polling:        poll,
		Sink:           sink,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		RecoverAfter:   time.Hour,
	}
}

func startIngestor(t *testing.T, ing *Ingestor) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestIngestor_SubscriptionDeduplicates(t *testing.T) {
	sub := stub.NewSubscriber(stub.Session{
		Events: []domain.AssetCreated{asset("A"), asset("B"), asset("A")},
		Block:  true,
	})
	sink := &recordingSink{}
	ing := NewIngestor(fastOptions(NewSubscriptionSource(sub), nil, sink))

	cancel, done := startIngestor(t, ing)
	require.Eventually(t, func() bool { return len(sink.Accepted()) == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{"A", "B"}, sink.Accepted())
	assert.Equal(t, 1, sub.Calls())
}

func TestIngestor_ReconnectsWithoutPolling(t *testing.T) {
	down := errors.New("ws down")
	sub := stub.NewSubscriber(
		stub.Session{Events: []domain.AssetCreated{asset("A")}, Err: down},
		stub.Session{Err: down},
		stub.Session{Events: []domain.AssetCreated{asset("A"), asset("B")}, Block: true},
	)
	sink := &recordingSink{}
	ing := NewIngestor(fastOptions(NewSubscriptionSource(sub), nil, sink))

	startIngestor(t, ing)
	require.Eventually(t, func() bool { return len(sink.Accepted()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"A", "B"}, sink.Accepted())
	assert.Equal(t, 3, sub.Calls())
}

func TestIngestor_FailsOverToPolling(t *testing.T) {
	down := errors.New("ws down")
	var sessions []stub.Session
	for i := 0; i < 5; i++ {
		sessions = append(sessions, stub.Session{Err: down})
	}
	sub := stub.NewSubscriber(sessions...)
	poller := stub.NewPoller(stub.Page{Events: []domain.AssetCreated{asset("P")}, Cursor: "sig-p"})

	sink := &recordingSink{}
	ing := NewIngestor(fastOptions(
		NewSubscriptionSource(sub),
		NewPollingSource(PollingSourceOptions{Poller: poller, Interval: time.Millisecond}),
		sink,
	))

	startIngestor(t, ing)
	require.Eventually(t, func() bool { return len(sink.Accepted()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"P"}, sink.Accepted())
	assert.Equal(t, 5, sub.Calls())
}

func TestIngestor_ProbesSubscriptionAfterRecoverAfter(t *testing.T) {
	down := errors.New("ws down")
	var sessions []stub.Session
	for i := 0; i < 5; i++ {
		sessions = append(sessions, stub.Session{Err: down})
	}
	sessions = append(sessions, stub.Session{Events: []domain.AssetCreated{asset("S")}, Block: true})
	sub := stub.NewSubscriber(sessions...)

	opts := fastOptions(
		NewSubscriptionSource(sub),
		NewPollingSource(PollingSourceOptions{Poller: stub.NewPoller(), Interval: time.Millisecond}),
		&recordingSink{},
	)
	opts.RecoverAfter = 20 * time.Millisecond
	sink := opts.Sink.(*recordingSink)
	ing := NewIngestor(opts)

	startIngestor(t, ing)
	require.Eventually(t, func() bool { return len(sink.Accepted()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"S"}, sink.Accepted())
	assert.Equal(t, 6, sub.Calls())
}

func TestIngestor_HaltsWhenStoreDegraded(t *testing.T) {
	health := &flagHealth{}
	sink := &recordingSink{accept: func(int, domain.AssetCreated) bool {
		health.degraded.Store(true)
		return true
	}}
	sub := stub.NewSubscriber(stub.Session{
		Events: []domain.AssetCreated{asset("A"), asset("B")},
		Block:  true,
	})
	opts := fastOptions(NewSubscriptionSource(sub), nil, sink)
	opts.Health = health
	ing := NewIngestor(opts)

	_, done := startIngestor(t, ing)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("ingestor did not halt")
	}
	assert.Equal(t, []string{"A"}, sink.Accepted())
}

func TestIngestor_DegradedAtStart(t *testing.T) {
	health := &flagHealth{}
	health.degraded.Store(true)
	opts := fastOptions(NewSubscriptionSource(stub.NewSubscriber()), nil, &recordingSink{})
	opts.Health = health

	err := NewIngestor(opts).Run(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestIngestor_DroppedCandidateIsForgotten(t *testing.T) {
	sub := stub.NewSubscriber(
		stub.Session{Events: []domain.AssetCreated{asset("A")}, Err: errors.New("ws down")},
		stub.Session{Events: []domain.AssetCreated{asset("A")}, Block: true},
	)
	// Backlog full on the first delivery.
	sink := &recordingSink{accept: func(call int, _ domain.AssetCreated) bool { return call > 1 }}
	ing := NewIngestor(fastOptions(NewSubscriptionSource(sub), nil, sink))

	startIngestor(t, ing)
	require.Eventually(t, func() bool { return len(sink.Accepted()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"A"}, sink.Accepted())
}

func TestIngestor_Forget(t *testing.T) {
	ctx := context.Background()
	dedup := NewMemoryDeduper(time.Hour)
	opts := fastOptions(NewSubscriptionSource(stub.NewSubscriber()), nil, &recordingSink{})
	opts.Deduper = dedup
	ing := NewIngestor(opts)

	fresh, _ := dedup.MarkSeen(ctx, "A")
	require.True(t, fresh)

	require.NoError(t, ing.Forget(ctx, "A"))
	fresh, _ = dedup.MarkSeen(ctx, "A")
	assert.True(t, fresh)
}
