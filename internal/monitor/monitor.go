// Package monitor drives the polling loop: it reads the watched interface,
// derives throughput, hands each result to a Sink and adapts the polling
// interval to the link state.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/tapwatch/internal/logging"
	"github.com/opd-ai/tapwatch/internal/netif"
)

// Default polling intervals.
const (
	DefaultActiveInterval = 1000 * time.Millisecond
	DefaultIdleInterval   = 2500 * time.Millisecond
)

// TargetFunc returns the interface to watch. It is called once per cycle,
// so the target may change while the loop runs.
type TargetFunc func() string

// Static returns a TargetFunc that always yields name.
func Static(name string) TargetFunc {
	return func() string { return name }
}

// Reader produces one snapshot per call. netif.SnapshotReader satisfies it.
type Reader interface {
	Read(iface string) netif.Snapshot
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Monitor) { m.logger = logging.OrNop(l) }
}

// WithClock replaces the wall clock used to timestamp samples.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMetrics records loop activity into metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// Monitor runs at most one polling loop at a time.
type Monitor struct {
	target  TargetFunc
	reader  Reader
	sink    Sink
	logger  logging.Logger
	now     func() time.Time
	metrics *Metrics

	// Owned by the loop goroutine while it runs, by Stop afterwards.
	meter      RateMeter
	wasExists  bool
	lastTarget string

	// lifecycle serialises Start and Stop.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	running   atomic.Bool
}

// New returns a stopped Monitor.
func New(target TargetFunc, reader Reader, sink Sink, opts ...Option) *Monitor {
	m := &Monitor{
		target:  target,
		reader:  reader,
		sink:    sink,
		logger:  logging.Nop(),
		now:     time.Now,
		metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Metrics returns the metrics the monitor records into.
func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Start begins polling with the given intervals. A loop that is already
// running is stopped first, so Start also works as restart.
func (m *Monitor) Start(active, idle time.Duration) error {
	if active <= 0 || idle <= 0 {
		return fmt.Errorf("polling intervals must be positive (active %v, idle %v)", active, idle)
	}
	if m.target == nil || m.reader == nil || m.sink == nil {
		return errors.New("monitor needs a target, a reader and a sink")
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.running.Store(true)
	m.metrics.SetRunning(true)
	m.metrics.IncrementStarts()

	m.logger.Info("polling started", "active", active, "idle", idle)
	go m.loop(ctx, active, idle, done)
	return nil
}

// Stop cancels the loop, waits for it to exit and forgets the rate
// baseline. Calling Stop on a stopped Monitor is a no-op.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil

	m.meter.Reset()
	m.wasExists = false
	m.lastTarget = ""
	m.metrics.SetRunning(false)
	m.metrics.IncrementStops()
	m.logger.Info("polling stopped")
}

// IsRunning reports whether a polling loop is active.
func (m *Monitor) IsRunning() bool {
	return m.running.Load()
}

func (m *Monitor) loop(ctx context.Context, active, idle time.Duration, done chan<- struct{}) {
	defer close(done)
	defer m.running.Store(false)

	for ctx.Err() == nil {
		snap := m.cycle(ctx)

		timer := time.NewTimer(NextInterval(snap, active, idle))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// cycle performs one poll and delivers the resulting View.
func (m *Monitor) cycle(ctx context.Context) netif.Snapshot {
	began := time.Now()
	iface := m.target()

	// Counters of two different interfaces are not comparable.
	if iface != m.lastTarget {
		if m.lastTarget != "" {
			m.logger.Info("watched interface changed", "from", m.lastTarget, "to", iface)
			m.metrics.IncrementRetargets()
		}
		m.meter.Reset()
		m.wasExists = false
		m.lastTarget = iface
	}

	snap := m.reader.Read(iface)
	ts := m.now()

	if snap.Exists != m.wasExists {
		m.logger.Info("interface existence changed", "iface", iface, "exists", snap.Exists)
		m.meter.Reset()
		m.wasExists = snap.Exists
		m.metrics.IncrementResets()
	}

	view := View{Interface: iface, Timestamp: ts, Snapshot: snap}
	if snap.Exists {
		if rx, tx, ok := m.meter.Sample(ts.UnixMilli(), snap.RxBytes, snap.TxBytes); ok {
			view.RxBps = &rx
			view.TxBps = &tx
		}
	} else {
		m.meter.Reset()
	}

	if err := m.sink.Deliver(ctx, view); err != nil && ctx.Err() == nil {
		m.logger.Warn("view delivery failed", "iface", iface, "error", err)
		m.metrics.IncrementDeliveryErrors()
	}
	m.metrics.RecordCycle(time.Since(began))
	return snap
}
