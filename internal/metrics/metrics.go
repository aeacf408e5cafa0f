// Package metrics provides lock-free in-process counters for the
// authentication service's security events.
//
// Counters live in cache-line-padded uint64 slots and are incremented
// atomically. The write path is allocation-free. Export to an external
// system happens by reading Snapshot values.
package metrics

import "sync/atomic"

// MetricID identifies a single counter.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterConflict
	MetricRegisterRejected
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricSessionCreated
	MetricSessionRevoked
	MetricLogout
	MetricLogoutAll
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld
	MetricPasswordChangeRejected
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricEmailVerifySuccess
	MetricEmailVerifyFailure

	MetricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config controls whether metric recording is active.
type Config struct {
	Enabled bool
}

// Metrics holds one atomic counter per MetricID. A nil or disabled Metrics
// turns every operation into a no-op.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]paddedCounter
}

// Snapshot is a point-in-time deep copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) TakeSnapshot() Snapshot {
	s := Snapshot{Counters: make(map[MetricID]uint64, MetricIDCount)}
	if m == nil {
		return s
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
