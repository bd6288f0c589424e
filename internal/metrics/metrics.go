package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gatekeeper-core/internal/device"
)

const namespace = "gatekeeper"

// Inventory is the read view the device collector scrapes.
// *device.Registry satisfies it.
type Inventory interface {
	View(fn func(device.Inventory))
}

// Metrics owns a private Prometheus registry with the service's
// counters and the device inventory collector.
type Metrics struct {
	registry *prometheus.Registry

	gateActions    *prometheus.CounterVec
	gateActionTime *prometheus.HistogramVec
	probes         *prometheus.CounterVec
	probeLatency   *prometheus.HistogramVec
	wsClients      prometheus.GaugeFunc
}

// New creates the metrics set. inv may be nil, in which case no device
// gauges are exported. wsClients may be nil.
func New(inv Inventory, wsClients func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gateActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_actions_total",
			Help:      "Gate actuation attempts by action and outcome.",
		}, []string{"action", "outcome"}),
		gateActionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_action_duration_seconds",
			Help:      "Time spent dispatching gate commands to controllers.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Connectivity probes by device kind and result.",
		}, []string{"kind", "result"}),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Connectivity probe latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.gateActions,
		m.gateActionTime,
		m.probes,
		m.probeLatency,
	)
	if inv != nil {
		m.registry.MustRegister(&inventoryCollector{inv: inv})
	}
	if wsClients != nil {
		m.wsClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		}, func() float64 { return float64(wsClients()) })
		m.registry.MustRegister(m.wsClients)
	}
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveGateAction counts one actuation attempt. Dispatch time is only
// recorded for attempts that reached a controller.
func (m *Metrics) ObserveGateAction(action, outcome, method string, d time.Duration) {
	if m == nil {
		return
	}
	m.gateActions.WithLabelValues(action, outcome).Inc()
	if method != "" && d > 0 {
		m.gateActionTime.WithLabelValues(method).Observe(d.Seconds())
	}
}

// ObserveProbe counts one probe result.
func (m *Metrics) ObserveProbe(kind string, online bool, latency time.Duration) {
	if m == nil {
		return
	}
	result := "offline"
	if online {
		result = "online"
	}
	m.probes.WithLabelValues(kind, result).Inc()
	m.probeLatency.WithLabelValues(kind).Observe(latency.Seconds())
}
