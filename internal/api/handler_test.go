package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-engine/internal/credibility"
	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/health"
	"solana-signal-engine/internal/pumpfun/pumpfuntest"
	"solana-signal-engine/internal/service"
	"solana-signal-engine/internal/storage"
	"solana-signal-engine/internal/storage/memory"
	"solana-signal-engine/internal/walletdiscovery"
)

var (
	walletA = pumpfuntest.Address(1)
	walletB = pumpfuntest.Address(2)
)

type fakeDiscovery struct {
	mu      sync.Mutex
	running bool
	runs    int
	done    chan struct{}
}

func (f *fakeDiscovery) Run(context.Context) (*walletdiscovery.RunSummary, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return &walletdiscovery.RunSummary{RunID: "run-1"}, nil
}

func (f *fakeDiscovery) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeDiscovery) Status(context.Context) (*walletdiscovery.Status, error) {
	return &walletdiscovery.Status{Winners: 3, EarlyBuyers: 8, Candidates: 2}, nil
}

type fixture struct {
	srv       *httptest.Server
	signals   *memory.SignalStore
	wallets   *credibility.Store
	decisions *memory.DecisionLog
	monitor   *health.Monitor
	discovery *fakeDiscovery
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		signals:   memory.NewSignalStore(),
		wallets:   credibility.NewStore(memory.NewWalletStore(), nil),
		decisions: memory.NewDecisionLog(),
		monitor:   health.NewMonitor(2, nil),
		discovery: &fakeDiscovery{},
	}
	svc := service.New(service.Options{
		Signals:   f.signals,
		Wallets:   f.wallets,
		Decisions: f.decisions,
		Discovery: f.discovery,
		Health:    f.monitor,
	})
	f.srv = httptest.NewServer(NewHandler(svc, nil))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	f.monitor.RecordFailure(errors.New("connection refused"))
	f.monitor.RecordFailure(errors.New("connection refused"))
	resp = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[service.HealthReport](t, resp)
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, 2, report.Store.ConsecutiveFailures)
	assert.Equal(t, "connection refused", report.Store.LastError)
}

func TestListSignals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, addr := range []string{"MintA", "MintB", "MintC"} {
		require.NoError(t, f.signals.InsertSignal(ctx,
			&domain.Asset{Address: addr, Symbol: "S" + addr, Creator: "dev", CreatedAt: int64(i * 1000), Status: domain.AssetBonding},
			&domain.Signal{ID: "id-" + addr, AssetAddress: addr, MatchCount: 2, Score: 60, CreatedAt: int64(i*1000 + 500)},
		))
	}

	resp := f.do(t, http.MethodGet, "/api/signals?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	signals := decode[[]SignalResponse](t, resp)
	require.Len(t, signals, 2)
	assert.Equal(t, "MintC", signals[0].Address)
	assert.Equal(t, 60, signals[0].Score)
	assert.Equal(t, "bonding", signals[0].Status)

	resp = f.do(t, http.MethodGet, "/api/signals?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWalletCuration(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/wallets", `{"address":"`+walletA+`","label":"alpha"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	w := decode[WalletResponse](t, resp)
	assert.Equal(t, "alpha", w.Label)
	assert.Equal(t, "active", w.Status)
	assert.Equal(t, "manual", w.Source)

	resp = f.do(t, http.MethodPost, "/api/wallets", `{"address":"not-base58!","label":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/wallets", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPatch, "/api/wallets/"+walletA, `{"status":"paused"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paused", decode[WalletResponse](t, resp).Status)
	assert.False(t, f.wallets.Snapshot().IsActive(walletA))

	resp = f.do(t, http.MethodPatch, "/api/wallets/"+walletA, `{"status":"sleeping"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodPatch, "/api/wallets/"+walletB, `{"status":"active"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/wallets", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]WalletResponse](t, resp), 1)

	resp = f.do(t, http.MethodDelete, "/api/wallets/"+walletA, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/wallets/"+walletA, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, f.wallets.Snapshot().Len())
}

func TestDiscoveryEndpoints(t *testing.T) {
	f := newFixture(t)
	f.discovery.done = make(chan struct{})

	resp := f.do(t, http.MethodPost, "/api/discovery/run", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	<-f.discovery.done

	f.discovery.mu.Lock()
	f.discovery.running = true
	f.discovery.mu.Unlock()
	resp = f.do(t, http.MethodPost, "/api/discovery/run", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/discovery/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[walletdiscovery.Status](t, resp)
	assert.Equal(t, 3, st.Winners)
	assert.Equal(t, 2, st.Candidates)
}

func TestListDecisions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.decisions.Record(context.Background(), []*storage.DecisionRecord{
		{ID: "d1", Address: "MintA", Outcome: domain.OutcomeDiscarded, Reason: domain.ReasonStale, DecidedAt: 1_000},
		{ID: "d2", Address: "MintB", Outcome: domain.OutcomeSignaled, MatchCount: 2, Score: 60, DecidedAt: 2_000},
	}))

	resp := f.do(t, http.MethodGet, "/api/assets/MintA/decisions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decisions := decode[[]DecisionResponse](t, resp)
	require.Len(t, decisions, 1)
	assert.Equal(t, "discarded", decisions[0].Outcome)
	assert.Equal(t, "stale", decisions[0].Reason)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPut, "/api/signals", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
