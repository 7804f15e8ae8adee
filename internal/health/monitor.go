// Package health tracks persistent store availability.
package health

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/observability"
)

// DefaultThreshold is the number of consecutive store failures that
// degrades the monitor.
const DefaultThreshold = 5

// State is a point-in-time view of the monitor.
type State struct {
	Degraded            bool   `json:"degraded"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
	LastFailureAt       int64  `json:"last_failure_at,omitempty"` // ms
	LastSuccessAt       int64  `json:"last_success_at,omitempty"` // ms
}

// Monitor counts consecutive store failures. Once Threshold is reached it
// stays degraded until a success is recorded.
type Monitor struct {
	threshold int
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.RWMutex
	state State
}

// NewMonitor creates a Monitor. threshold <= 0 uses DefaultThreshold.
func NewMonitor(threshold int, logger *zap.Logger) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	observability.SetStoreHealthy(true)
	return &Monitor{threshold: threshold, logger: logger.Named("health"), now: time.Now}
}

// RecordSuccess resets the failure count and clears the degraded state.
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Degraded {
		m.logger.Info("store recovered", zap.Int("after_failures", m.state.ConsecutiveFailures))
		observability.SetStoreHealthy(true)
	}
	m.state.Degraded = false
	m.state.ConsecutiveFailures = 0
	m.state.LastSuccessAt = m.now().UnixMilli()
}

// RecordFailure counts a store failure. It reports whether the monitor is
// degraded afterwards.
func (m *Monitor) RecordFailure(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.ConsecutiveFailures++
	m.state.LastFailureAt = m.now().UnixMilli()
	if err != nil {
		m.state.LastError = err.Error()
	}
	if !m.state.Degraded && m.state.ConsecutiveFailures >= m.threshold {
		m.state.Degraded = true
		m.logger.Error("store degraded",
			zap.Int("consecutive_failures", m.state.ConsecutiveFailures),
			zap.Error(err),
		)
		observability.SetStoreHealthy(false)
	}
	return m.state.Degraded
}

// Observe records err as a failure, or a success when err is nil.
func (m *Monitor) Observe(err error) {
	if err != nil {
		m.RecordFailure(err)
		return
	}
	m.RecordSuccess()
}

// Degraded reports whether the store is considered unavailable.
func (m *Monitor) Degraded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Degraded
}

// State returns a copy of the current state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
