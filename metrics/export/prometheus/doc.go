// Package prometheus exposes guard counters and the bootstrap latency histogram
// to Prometheus.
//
// [PrometheusExporter] is a client_golang Collector; [PrometheusExporter.Handler]
// serves it from a private registry. Counter names are prefixed
// sessionguard_*_total; the histogram is sessionguard_bootstrap_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers register the
//     collector or mount the Handler.
//   - Mutate guard state.
package prometheus
