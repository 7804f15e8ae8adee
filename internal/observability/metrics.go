// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	AssetsIngested  *prometheus.CounterVec
	AssetsDropped   prometheus.Counter
	IngestFailovers *prometheus.CounterVec
	IngestMode      *prometheus.GaugeVec

	// Analysis metrics
	Decisions        *prometheus.CounterVec
	GateResults      *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	SignalScores     prometheus.Histogram
	CredibleWallets  prometheus.Gauge
	AnalysisBacklog  prometheus.Gauge
	DecisionsLost    prometheus.Counter

	// Tracker metrics
	StatusTransitions *prometheus.CounterVec
	TrackedAssets     prometheus.Gauge

	// Wallet discovery metrics
	DiscoveryRuns     *prometheus.CounterVec
	DiscoveryDuration prometheus.Histogram
	WinnersFound      prometheus.Counter
	EarlyBuyersStored prometheus.Counter
	WalletsPromoted   prometheus.Counter

	// Outbound metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	Notifications  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	StoreHealthy           prometheus.Gauge
	LastSuccessfulIngest   prometheus.Gauge
	LastSuccessfulAnalysis prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "signal_engine"
	}

	return &Metrics{
		AssetsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "assets_ingested_total",
			Help:      "Total number of asset-created events accepted by source mode",
		}, []string{"mode"}),
		AssetsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "assets_dropped_total",
			Help:      "Total number of events dropped because the analysis queue was full",
		}),
		IngestFailovers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "failovers_total",
			Help:      "Total number of switches between subscription and polling",
		}, []string{"to"}),
		IngestMode: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "mode",
			Help:      "1 for the currently active ingestion mode",
		}, []string{"mode"}),

		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "decisions_total",
			Help:      "Total number of terminal analyzer decisions by outcome and reason",
		}, []string{"outcome", "reason"}),
		GateResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "gate_results_total",
			Help:      "Total number of gate evaluations by gate and result",
		}, []string{"gate", "result"}),
		AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "analysis_duration_seconds",
			Help:      "Time from analysis start to decision",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		AnalysisBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "backlog",
			Help:      "Candidates waiting for an analysis worker",
		}),
		DecisionsLost: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "decision_log_dropped_total",
			Help:      "Decision records not written to the audit log",
		}),
		SignalScores: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "signal_score",
			Help:      "Confidence scores of emitted signals",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		CredibleWallets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "credibility",
			Name:      "active_wallets",
			Help:      "Number of active credible wallets in the current snapshot",
		}),

		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "status_transitions_total",
			Help:      "Total number of asset lifecycle transitions by target status",
		}, []string{"status"}),
		TrackedAssets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "bonding_assets",
			Help:      "Number of bonding assets checked in the last tracker pass",
		}),

		DiscoveryRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Total number of wallet discovery runs by status",
		}, []string{"status"}),
		DiscoveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "duration_seconds",
			Help:      "Wallet discovery run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		WinnersFound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "winners_found_total",
			Help:      "Total number of new winner assets recorded",
		}),
		EarlyBuyersStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "early_buyers_stored_total",
			Help:      "Total number of early buyers persisted",
		}),
		WalletsPromoted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "wallets_promoted_total",
			Help:      "Total number of wallets upserted into the credibility store",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests by host and status class",
		}, []string{"host", "status"}),
		Notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total number of signal notifications by channel and status",
		}, []string{"channel", "status"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		StoreHealthy: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "store_healthy",
			Help:      "1 if the signal store is reachable, 0 if degraded",
		}),
		LastSuccessfulIngest: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingest_timestamp",
			Help:      "Unix timestamp of the last accepted asset event",
		}),
		LastSuccessfulAnalysis: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_analysis_timestamp",
			Help:      "Unix timestamp of the last completed analysis",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordAssetIngested counts an accepted event and stamps the ingest time.
func RecordAssetIngested(mode string, unixSeconds int64) {
	DefaultMetrics.AssetsIngested.WithLabelValues(mode).Inc()
	DefaultMetrics.LastSuccessfulIngest.Set(float64(unixSeconds))
}

// RecordAssetDropped counts an event dropped on a full analysis queue.
func RecordAssetDropped() {
	DefaultMetrics.AssetsDropped.Inc()
}

// SetIngestMode marks mode as the active ingestion mode.
func SetIngestMode(mode string, modes ...string) {
	for _, m := range modes {
		DefaultMetrics.IngestMode.WithLabelValues(m).Set(0)
	}
	DefaultMetrics.IngestMode.WithLabelValues(mode).Set(1)
	DefaultMetrics.IngestFailovers.WithLabelValues(mode).Inc()
}

// RecordDecision records a terminal analyzer decision.
func RecordDecision(outcome, reason string, seconds float64, unixSeconds int64) {
	DefaultMetrics.Decisions.WithLabelValues(outcome, reason).Inc()
	DefaultMetrics.AnalysisDuration.Observe(seconds)
	DefaultMetrics.LastSuccessfulAnalysis.Set(float64(unixSeconds))
}

// RecordGate records one gate evaluation.
func RecordGate(gate string, passed bool) {
	result := "fail"
	if passed {
		result = "pass"
	}
	DefaultMetrics.GateResults.WithLabelValues(gate, result).Inc()
}

// RecordSignalScore records the score of an emitted signal.
func RecordSignalScore(score int) {
	DefaultMetrics.SignalScores.Observe(float64(score))
}

// SetAnalysisBacklog sets the analysis queue depth.
func SetAnalysisBacklog(n int) {
	DefaultMetrics.AnalysisBacklog.Set(float64(n))
}

// RecordDecisionsLost counts decision records dropped before reaching the audit log.
func RecordDecisionsLost(n int) {
	DefaultMetrics.DecisionsLost.Add(float64(n))
}

// SetCredibleWallets sets the active credible wallet gauge.
func SetCredibleWallets(n int) {
	DefaultMetrics.CredibleWallets.Set(float64(n))
}

// RecordStatusTransition counts an asset lifecycle transition.
func RecordStatusTransition(status string) {
	DefaultMetrics.StatusTransitions.WithLabelValues(status).Inc()
}

// SetTrackedAssets sets the number of bonding assets in the last tracker pass.
func SetTrackedAssets(n int) {
	DefaultMetrics.TrackedAssets.Set(float64(n))
}

// RecordDiscoveryRun records a wallet discovery run.
func RecordDiscoveryRun(status string, durationSeconds float64, winners, buyers, promoted int) {
	DefaultMetrics.DiscoveryRuns.WithLabelValues(status).Inc()
	DefaultMetrics.DiscoveryDuration.Observe(durationSeconds)
	DefaultMetrics.WinnersFound.Add(float64(winners))
	DefaultMetrics.EarlyBuyersStored.Add(float64(buyers))
	DefaultMetrics.WalletsPromoted.Add(float64(promoted))
}

// RecordRPCCall records RPC call latency and failures.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordHTTPRequest records an outbound HTTP request.
func RecordHTTPRequest(host, status string) {
	DefaultMetrics.HTTPRequests.WithLabelValues(host, status).Inc()
}

// RecordNotification records a notification attempt.
func RecordNotification(channel string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.Notifications.WithLabelValues(channel, status).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// SetStoreHealthy sets the store health gauge.
func SetStoreHealthy(ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	DefaultMetrics.StoreHealthy.Set(v)
}
