// Package metrics provides Prometheus-compatible counters, gauges and
// histograms with a text exposition handler, using only the standard library.
//
// All metrics are safe for concurrent use.
//
// # Default Metrics
//
//   - apimock_gate_requests_total{mode,status}
//   - apimock_gate_duration_seconds{mode}
//   - apimock_gate_fallthrough_total{reason}
//   - apimock_proxy_errors_total{kind}
//   - apimock_calllog_dropped_total
//   - apimock_rules_total, apimock_rules_enabled
//   - apimock_uptime_seconds
//
// # Usage
//
//	registry := metrics.Init()
//	metrics.RecordGateRequest("MOCK", 200, elapsed)
//	mux.Handle("/metrics", metrics.Handler())
//
// Custom registries work the same way:
//
//	r := metrics.NewRegistry()
//	c := r.NewCounter("my_counter", "Description", "label")
//	vec, _ := c.WithLabels("value")
//	_ = vec.Inc()
package metrics
