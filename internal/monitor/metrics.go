package monitor

import (
	"expvar"
	"sync/atomic"
	"time"
)

// Metrics counts polling activity. It is exposed through expvar, which
// serves /debug/vars when an HTTP server is running.
//
// Thread-safe for concurrent use.
type Metrics struct {
	// Counters
	starts         atomic.Int64
	stops          atomic.Int64
	cycles         atomic.Int64
	resets         atomic.Int64
	retargets      atomic.Int64
	deliveryErrors atomic.Int64
	configReloads  atomic.Int64
	errorsTotal    atomic.Int64

	// Latency tracking (stored as nanoseconds)
	cycleLatencyNs    atomic.Int64
	cycleLatencyCount atomic.Int64

	// Gauges
	running atomic.Int32

	registered atomic.Bool
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RegisterExpvar publishes the metrics under prefix (for example
// "tapwatch"). Subsequent calls are no-ops. expvar names are process
// global, so register at most one Metrics per prefix.
func (m *Metrics) RegisterExpvar(prefix string) {
	if m.registered.Swap(true) {
		return
	}
	expvar.Publish(prefix+"_starts_total", expvar.Func(func() any { return m.starts.Load() }))
	expvar.Publish(prefix+"_stops_total", expvar.Func(func() any { return m.stops.Load() }))
	expvar.Publish(prefix+"_cycles_total", expvar.Func(func() any { return m.cycles.Load() }))
	expvar.Publish(prefix+"_rate_resets_total", expvar.Func(func() any { return m.resets.Load() }))
	expvar.Publish(prefix+"_retargets_total", expvar.Func(func() any { return m.retargets.Load() }))
	expvar.Publish(prefix+"_delivery_errors_total", expvar.Func(func() any { return m.deliveryErrors.Load() }))
	expvar.Publish(prefix+"_config_reloads_total", expvar.Func(func() any { return m.configReloads.Load() }))
	expvar.Publish(prefix+"_errors_total", expvar.Func(func() any { return m.errorsTotal.Load() }))
	expvar.Publish(prefix+"_running", expvar.Func(func() any { return m.running.Load() }))
	expvar.Publish(prefix+"_cycle_latency_avg_ms", expvar.Func(func() any {
		count := m.cycleLatencyCount.Load()
		if count == 0 {
			return float64(0)
		}
		return float64(m.cycleLatencyNs.Load()) / float64(count) / 1e6
	}))
}

// IncrementStarts records a loop start.
func (m *Metrics) IncrementStarts() { m.starts.Add(1) }

// IncrementStops records a loop stop.
func (m *Metrics) IncrementStops() { m.stops.Add(1) }

// IncrementResets records a rate meter reset caused by an existence change.
func (m *Metrics) IncrementResets() { m.resets.Add(1) }

// IncrementRetargets records a change of the watched interface name.
func (m *Metrics) IncrementRetargets() { m.retargets.Add(1) }

// IncrementDeliveryErrors records a failed delivery.
func (m *Metrics) IncrementDeliveryErrors() { m.deliveryErrors.Add(1) }

// IncrementConfigReloads records a successful configuration reload.
func (m *Metrics) IncrementConfigReloads() { m.configReloads.Add(1) }

// IncrementErrors records an operational error outside the poll loop.
func (m *Metrics) IncrementErrors() { m.errorsTotal.Add(1) }

// RecordCycle records one completed cycle and its duration.
func (m *Metrics) RecordCycle(d time.Duration) {
	m.cycles.Add(1)
	m.cycleLatencyNs.Add(d.Nanoseconds())
	m.cycleLatencyCount.Add(1)
}

// SetRunning updates the running gauge.
func (m *Metrics) SetRunning(running bool) {
	if running {
		m.running.Store(1)
	} else {
		m.running.Store(0)
	}
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Starts          int64
	Stops           int64
	Cycles          int64
	Resets          int64
	Retargets       int64
	DeliveryErrors  int64
	ConfigReloads   int64
	Errors          int64
	Running         bool
	CycleLatencyAvg time.Duration
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Starts:          m.starts.Load(),
		Stops:           m.stops.Load(),
		Cycles:          m.cycles.Load(),
		Resets:          m.resets.Load(),
		Retargets:       m.retargets.Load(),
		DeliveryErrors:  m.deliveryErrors.Load(),
		ConfigReloads:   m.configReloads.Load(),
		Errors:          m.errorsTotal.Load(),
		Running:         m.running.Load() > 0,
		CycleLatencyAvg: safeDivide(m.cycleLatencyNs.Load(), m.cycleLatencyCount.Load()),
	}
}

// Reset clears all metrics. Useful for testing.
func (m *Metrics) Reset() {
	m.starts.Store(0)
	m.stops.Store(0)
	m.cycles.Store(0)
	m.resets.Store(0)
	m.retargets.Store(0)
	m.deliveryErrors.Store(0)
	m.configReloads.Store(0)
	m.errorsTotal.Store(0)
	m.cycleLatencyNs.Store(0)
	m.cycleLatencyCount.Store(0)
	m.running.Store(0)
}

func safeDivide(total, count int64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(total / count)
}
