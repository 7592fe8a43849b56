package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opd-ai/tapwatch/internal/monitor"
)

const namespace = "tapwatch"

// Exporter mirrors every View into Prometheus gauges labelled by interface.
// It is a monitor.Sink; series of a previously watched interface are
// dropped when the monitor is retargeted.
type Exporter struct {
	registry *prometheus.Registry

	exists       *prometheus.GaugeVec
	up           *prometheus.GaugeVec
	carrier      *prometheus.GaugeVec
	defaultRoute *prometheus.GaugeVec
	inBridge     *prometheus.GaugeVec
	bridgePorts  *prometheus.GaugeVec
	bytes        *prometheus.GaugeVec
	packets      *prometheus.GaugeVec
	rate         *prometheus.GaugeVec
	lastSample   *prometheus.GaugeVec

	mu    sync.Mutex
	iface string
}

// NewExporter creates an Exporter with its own registry. When metrics is
// non-nil the poll loop counters are exported alongside the gauges.
func NewExporter(metrics *monitor.Metrics) *Exporter {
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "interface",
			Name:      name,
			Help:      help,
		}, append([]string{"interface"}, labels...))
	}

	e := &Exporter{
		registry:     prometheus.NewRegistry(),
		exists:       gauge("exists", "Whether the watched interface exists (1) or not (0)."),
		up:           gauge("up", "Whether the link is up."),
		carrier:      gauge("carrier", "Whether the interface reports carrier."),
		defaultRoute: gauge("default_route", "Whether a default route points at the interface."),
		inBridge:     gauge("in_bridge", "Whether the interface is enslaved to a bridge.", "bridge"),
		bridgePorts:  gauge("bridge_ports", "Number of ports of the bridge the interface belongs to or is."),
		bytes:        gauge("bytes", "Kernel byte counter of the interface.", "direction"),
		packets:      gauge("packets", "Kernel packet counter of the interface.", "direction"),
		rate:         gauge("bits_per_second", "Throughput derived from the last two samples.", "direction"),
		lastSample:   gauge("last_sample_timestamp_seconds", "Unix time of the last sample."),
	}

	e.registry.MustRegister(
		e.exists, e.up, e.carrier, e.defaultRoute, e.inBridge,
		e.bridgePorts, e.bytes, e.packets, e.rate, e.lastSample,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)
	if metrics != nil {
		e.registerLoopCounters(metrics)
	}
	return e
}

func (e *Exporter) registerLoopCounters(m *monitor.Metrics) {
	counter := func(name, help string, value func(monitor.MetricsSnapshot) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(m.Snapshot())) })
	}
	e.registry.MustRegister(
		counter("cycles_total", "Completed polling cycles.", func(s monitor.MetricsSnapshot) int64 { return s.Cycles }),
		counter("rate_resets_total", "Rate meter resets.", func(s monitor.MetricsSnapshot) int64 { return s.Resets }),
		counter("retargets_total", "Changes of the watched interface.", func(s monitor.MetricsSnapshot) int64 { return s.Retargets }),
		counter("delivery_errors_total", "Failed view deliveries.", func(s monitor.MetricsSnapshot) int64 { return s.DeliveryErrors }),
		counter("config_reloads_total", "Successful configuration reloads.", func(s monitor.MetricsSnapshot) int64 { return s.ConfigReloads }),
		counter("errors_total", "Runtime errors.", func(s monitor.MetricsSnapshot) int64 { return s.Errors }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycle_latency_seconds",
			Help:      "Average polling cycle latency.",
		}, func() float64 { return m.Snapshot().CycleLatencyAvg.Seconds() }),
	)
}

// Registry exposes the registry, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Deliver updates the gauges from v.
func (e *Exporter) Deliver(_ context.Context, v monitor.View) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.iface != "" && e.iface != v.Interface {
		e.forget(e.iface)
	}
	e.iface = v.Interface
	name := v.Interface

	e.exists.WithLabelValues(name).Set(boolGauge(v.Exists))
	e.up.WithLabelValues(name).Set(boolGauge(v.Up))
	e.carrier.WithLabelValues(name).Set(boolGauge(v.Carrier))
	e.defaultRoute.WithLabelValues(name).Set(boolGauge(v.IsDefaultRoute))
	e.inBridge.DeletePartialMatch(prometheus.Labels{"interface": name})
	e.inBridge.WithLabelValues(name, v.BridgeName).Set(boolGauge(v.InBridge))
	e.bridgePorts.WithLabelValues(name).Set(float64(len(v.BridgePorts)))
	e.bytes.WithLabelValues(name, "rx").Set(float64(v.RxBytes))
	e.bytes.WithLabelValues(name, "tx").Set(float64(v.TxBytes))
	e.packets.WithLabelValues(name, "rx").Set(float64(v.RxPackets))
	e.packets.WithLabelValues(name, "tx").Set(float64(v.TxPackets))
	e.lastSample.WithLabelValues(name).Set(float64(v.Timestamp.UnixMilli()) / 1000)

	if rx, tx := v.Rates(); v.HasRate() {
		e.rate.WithLabelValues(name, "rx").Set(float64(rx))
		e.rate.WithLabelValues(name, "tx").Set(float64(tx))
	} else {
		// No rate after a reset; an old value would be misleading.
		e.rate.DeletePartialMatch(prometheus.Labels{"interface": name})
	}
	return nil
}

func (e *Exporter) forget(name string) {
	match := prometheus.Labels{"interface": name}
	for _, vec := range []*prometheus.GaugeVec{
		e.exists, e.up, e.carrier, e.defaultRoute, e.inBridge,
		e.bridgePorts, e.bytes, e.packets, e.rate, e.lastSample,
	} {
		vec.DeletePartialMatch(match)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
