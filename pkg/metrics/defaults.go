package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Default metrics, created by Init. The Record helpers below are no-ops
// until Init has been called, so packages can use them unconditionally.
//
// Label values:
//   - mode: MOCK, PROXY, AUTO, or "none" when no envelope was produced
//   - status: numeric HTTP status
//   - reason: capture, dispatch, write, panic
//   - kind: timeout, connection, canceled, request, response, internal
var (
	// GateRequestsTotal counts requests handled by the gate.
	GateRequestsTotal *Counter

	// GateDuration tracks dispatch latency in seconds.
	GateDuration *Histogram

	// GateFallthroughTotal counts matched requests handed back to the host
	// application after an internal error.
	GateFallthroughTotal *Counter

	// ProxyErrorsTotal counts failed upstream forwards.
	ProxyErrorsTotal *Counter

	// CallLogDroppedTotal counts call-log records that could not be persisted.
	CallLogDroppedTotal *Counter

	// RulesTotal and RulesEnabled track the routing rule store.
	RulesTotal   *Gauge
	RulesEnabled *Gauge

	// UptimeSeconds is refreshed on every scrape.
	UptimeSeconds *Gauge

	defaultRegistry *Registry
	startTime       time.Time
	initOnce        sync.Once
	mu              sync.RWMutex
)

// Init creates the default metrics and returns their registry.
// It is idempotent.
func Init() *Registry {
	initOnce.Do(func() {
		r := NewRegistry()

		mu.Lock()
		defer mu.Unlock()

		GateRequestsTotal = r.NewCounter(
			"apimock_gate_requests_total",
			"Requests answered by the interception gate",
			"mode", "status",
		)
		GateDuration = r.NewHistogram(
			"apimock_gate_duration_seconds",
			"Time spent dispatching matched requests",
			DefaultBuckets,
			"mode",
		)
		GateFallthroughTotal = r.NewCounter(
			"apimock_gate_fallthrough_total",
			"Matched requests passed to normal handling after an internal error",
			"reason",
		)
		ProxyErrorsTotal = r.NewCounter(
			"apimock_proxy_errors_total",
			"Upstream forwards that produced a 502",
			"kind",
		)
		CallLogDroppedTotal = r.NewCounter(
			"apimock_calllog_dropped_total",
			"Call-log records dropped before persistence",
		)
		RulesTotal = r.NewGauge(
			"apimock_rules_total",
			"Routing rules in the store",
		)
		RulesEnabled = r.NewGauge(
			"apimock_rules_enabled",
			"Enabled routing rules in the store",
		)
		UptimeSeconds = r.NewGauge(
			"apimock_uptime_seconds",
			"Seconds since metrics were initialized",
		)

		startTime = time.Now()
		defaultRegistry = r
	})
	return DefaultRegistry()
}

// DefaultRegistry returns the registry created by Init, or nil.
func DefaultRegistry() *Registry {
	mu.RLock()
	defer mu.RUnlock()
	return defaultRegistry
}

// Reset discards the default metrics so Init can run again. For tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	initOnce = sync.Once{}
	defaultRegistry = nil
	GateRequestsTotal = nil
	GateDuration = nil
	GateFallthroughTotal = nil
	ProxyErrorsTotal = nil
	CallLogDroppedTotal = nil
	RulesTotal = nil
	RulesEnabled = nil
	UptimeSeconds = nil
}

// RecordGateRequest records one answered request.
func RecordGateRequest(mode string, status int, elapsed time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	if GateRequestsTotal != nil {
		if vec, err := GateRequestsTotal.WithLabels(mode, strconv.Itoa(status)); err == nil {
			_ = vec.Inc()
		}
	}
	if GateDuration != nil {
		if vec, err := GateDuration.WithLabels(mode); err == nil {
			vec.Observe(elapsed.Seconds())
		}
	}
}

// RecordFallthrough records a matched request handed back to normal handling.
func RecordFallthrough(reason string) {
	mu.RLock()
	defer mu.RUnlock()
	if GateFallthroughTotal != nil {
		if vec, err := GateFallthroughTotal.WithLabels(reason); err == nil {
			_ = vec.Inc()
		}
	}
}

// RecordProxyError records a failed forward.
func RecordProxyError(kind string) {
	mu.RLock()
	defer mu.RUnlock()
	if ProxyErrorsTotal != nil {
		if vec, err := ProxyErrorsTotal.WithLabels(kind); err == nil {
			_ = vec.Inc()
		}
	}
}

// RecordCallLogDropped records n call-log records that were not persisted.
func RecordCallLogDropped(n int) {
	mu.RLock()
	defer mu.RUnlock()
	if CallLogDroppedTotal != nil && n > 0 {
		_ = CallLogDroppedTotal.Add(float64(n))
	}
}

// SetRuleCounts updates the rule store gauges.
func SetRuleCounts(total, enabled int) {
	mu.RLock()
	defer mu.RUnlock()
	if RulesTotal != nil {
		_ = RulesTotal.Set(float64(total))
	}
	if RulesEnabled != nil {
		_ = RulesEnabled.Set(float64(enabled))
	}
}

// Handler serves the default registry, refreshing the uptime gauge first.
// It serves an empty body when Init has not been called.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		reg := defaultRegistry
		if UptimeSeconds != nil {
			_ = UptimeSeconds.Set(time.Since(startTime).Seconds())
		}
		mu.RUnlock()

		if reg == nil {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
			return
		}
		reg.Handler().ServeHTTP(w, r)
	})
}
