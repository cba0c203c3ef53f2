// Package metrics provides lock-free counters for engine observability.
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically. Export (Prometheus, OTel) lives in metrics/export/ and reads
// Snapshot values; this package performs no I/O.
package metrics

import "sync/atomic"

// MetricID identifies one counter slot.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricRefreshRateLimited
	MetricLogout
	MetricRegisterSuccess
	MetricRegisterConflict
	MetricRegisterRateLimited
	MetricEmailVerificationRequest
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	MetricOAuthLoginSuccess
	MetricOAuthLoginLinked
	MetricNotificationFailure
	MetricSessionCreated
	MetricSessionRevoked

	MetricIDCount
)

// Config controls metric collection.
type Config struct {
	Enabled bool
}

type paddedCounter struct {
	value uint64
	_     [56]byte
}

// Metrics holds the engine's counters. A nil or disabled Metrics is a
// no-op on every operation.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]paddedCounter
}

// New creates a Metrics instance.
func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id < 0 || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters [MetricIDCount]uint64
}

// Snapshot returns a deep copy of the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	var snap Snapshot
	if m == nil || !m.enabled {
		return snap
	}
	for i := range m.counters {
		snap.Counters[i] = atomic.LoadUint64(&m.counters[i].value)
	}
	return snap
}
