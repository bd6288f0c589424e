// Package metrics exposes Prometheus metrics for gatekeeper core.
//
// Counters are fed by the telemetry fan-out; device gauges are computed
// from the registry at scrape time. Serve them with:
//
//	m := metrics.New(registry, hub.ClientCount)
//	router.Handle("/metrics", m.Handler())
package metrics
