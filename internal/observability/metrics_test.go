package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDBQuery_CountsErrors(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "test_op"))

	RecordDBQuery("postgres", "test_op", 0.01, nil)
	RecordDBQuery("postgres", "test_op", 0.02, errors.New("boom"))

	after := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "test_op"))
	assert.Equal(t, before+1, after)
}

func TestRecordGate_Labels(t *testing.T) {
	RecordGate("freshness", true)
	RecordGate("freshness", false)
	RecordGate("freshness", false)

	assert.GreaterOrEqual(t, testutil.ToFloat64(DefaultMetrics.GateResults.WithLabelValues("freshness", "fail")), 2.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(DefaultMetrics.GateResults.WithLabelValues("freshness", "pass")), 1.0)
}

func TestSetIngestMode_Exclusive(t *testing.T) {
	SetIngestMode("polling", "subscription", "polling")
	assert.Equal(t, 1.0, testutil.ToFloat64(DefaultMetrics.IngestMode.WithLabelValues("polling")))
	assert.Equal(t, 0.0, testutil.ToFloat64(DefaultMetrics.IngestMode.WithLabelValues("subscription")))

	SetIngestMode("subscription", "subscription", "polling")
	assert.Equal(t, 0.0, testutil.ToFloat64(DefaultMetrics.IngestMode.WithLabelValues("polling")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DefaultMetrics.IngestMode.WithLabelValues("subscription")))
}

func TestHandler_ExposesNamespace(t *testing.T) {
	SetStoreHealthy(true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "signal_engine_health_store_healthy 1"))
}
