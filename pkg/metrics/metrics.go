package metrics

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't match the defined labels.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrNegativeCounterValue is returned when attempting to add a negative value to a counter.
var ErrNegativeCounterValue = errors.New("counter cannot be decreased")

// ErrDuplicateMetric is returned when registering a metric with a name that is already registered.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// atomicFloat64 stores float64 bits for lock-free updates.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Load() float64 { return math.Float64frombits(a.bits.Load()) }

func (a *atomicFloat64) Store(val float64) { a.bits.Store(math.Float64bits(val)) }

// Add adds delta using a CAS loop.
func (a *atomicFloat64) Add(delta float64) {
	for {
		old := a.bits.Load()
		if a.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+delta)) {
			return
		}
	}
}

// MetricType represents the type of a metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is implemented by Counter, Gauge and Histogram.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	// Collect returns all samples for exposition.
	Collect() []Sample
}

// Sample is a single metric value with labels.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// family holds one value per label combination. V is the per-series state.
type family[V any] struct {
	name       string
	help       string
	labelNames []string

	mu     sync.RWMutex
	series map[string]*series[V]
	newV   func() *V
}

type series[V any] struct {
	labels map[string]string
	v      *V
}

func newFamily[V any](name, help string, labelNames []string, newV func() *V) *family[V] {
	return &family[V]{
		name:       name,
		help:       help,
		labelNames: labelNames,
		series:     make(map[string]*series[V]),
		newV:       newV,
	}
}

func (f *family[V]) Name() string { return f.name }

func (f *family[V]) Help() string { return f.help }

// get returns the series for values, creating it on first use.
func (f *family[V]) get(kind string, values []string) (*V, error) {
	if len(values) != len(f.labelNames) {
		return nil, fmt.Errorf("%w: %s %s expected %d labels, got %d",
			ErrLabelCountMismatch, kind, f.name, len(f.labelNames), len(values))
	}

	key := strings.Join(values, "\x00")
	f.mu.RLock()
	s, ok := f.series[key]
	f.mu.RUnlock()
	if ok {
		return s.v, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok = f.series[key]; ok {
		return s.v, nil
	}
	labels := make(map[string]string, len(f.labelNames))
	for i, name := range f.labelNames {
		labels[name] = values[i]
	}
	s = &series[V]{labels: labels, v: f.newV()}
	f.series[key] = s
	return s.v, nil
}

// snapshot returns the current series. The returned values are live.
func (f *family[V]) snapshot() []*series[V] {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*series[V], 0, len(f.series))
	for _, s := range f.series {
		out = append(out, s)
	}
	return out
}

// Counter is a monotonically increasing metric.
type Counter struct {
	*family[atomicFloat64]
}

// Type returns MetricTypeCounter.
func (c *Counter) Type() MetricType { return MetricTypeCounter }

// WithLabels returns the series for the given label values.
func (c *Counter) WithLabels(values ...string) (*CounterVec, error) {
	v, err := c.get("counter", values)
	if err != nil {
		return nil, err
	}
	return &CounterVec{v: v}, nil
}

// Inc increments an unlabelled counter.
func (c *Counter) Inc() error { return c.Add(1) }

// Add adds delta to an unlabelled counter.
func (c *Counter) Add(delta float64) error {
	vec, err := c.WithLabels()
	if err != nil {
		return err
	}
	return vec.Add(delta)
}

// Collect implements Metric.
func (c *Counter) Collect() []Sample {
	var samples []Sample
	for _, s := range c.snapshot() {
		samples = append(samples, Sample{Name: c.name, Labels: s.labels, Value: s.v.Load()})
	}
	return samples
}

// CounterVec is one labelled counter series.
type CounterVec struct {
	v *atomicFloat64
}

// Inc increments the counter by 1.
func (v *CounterVec) Inc() error { return v.Add(1) }

// Add adds delta. Negative deltas are rejected.
func (v *CounterVec) Add(delta float64) error {
	if delta < 0 {
		return ErrNegativeCounterValue
	}
	v.v.Add(delta)
	return nil
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	*family[atomicFloat64]
}

// Type returns MetricTypeGauge.
func (g *Gauge) Type() MetricType { return MetricTypeGauge }

// WithLabels returns the series for the given label values.
func (g *Gauge) WithLabels(values ...string) (*GaugeVec, error) {
	v, err := g.get("gauge", values)
	if err != nil {
		return nil, err
	}
	return &GaugeVec{v: v}, nil
}

// Set sets an unlabelled gauge.
func (g *Gauge) Set(value float64) error {
	vec, err := g.WithLabels()
	if err != nil {
		return err
	}
	vec.Set(value)
	return nil
}

// Add adds delta to an unlabelled gauge.
func (g *Gauge) Add(delta float64) error {
	vec, err := g.WithLabels()
	if err != nil {
		return err
	}
	vec.Add(delta)
	return nil
}

// Collect implements Metric.
func (g *Gauge) Collect() []Sample {
	var samples []Sample
	for _, s := range g.snapshot() {
		samples = append(samples, Sample{Name: g.name, Labels: s.labels, Value: s.v.Load()})
	}
	return samples
}

// GaugeVec is one labelled gauge series.
type GaugeVec struct {
	v *atomicFloat64
}

// Set sets the gauge.
func (v *GaugeVec) Set(value float64) { v.v.Store(value) }

// Inc increments the gauge by 1.
func (v *GaugeVec) Inc() { v.v.Add(1) }

// Dec decrements the gauge by 1.
func (v *GaugeVec) Dec() { v.v.Add(-1) }

// Add adds delta.
func (v *GaugeVec) Add(delta float64) { v.v.Add(delta) }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	*family[histogramValue]
	buckets []float64
}

type histogramValue struct {
	counts []atomic.Uint64 // per bucket, not cumulative
	sum    atomicFloat64
	count  atomic.Uint64
}

// Type returns MetricTypeHistogram.
func (h *Histogram) Type() MetricType { return MetricTypeHistogram }

// WithLabels returns the series for the given label values.
func (h *Histogram) WithLabels(values ...string) (*HistogramVec, error) {
	v, err := h.get("histogram", values)
	if err != nil {
		return nil, err
	}
	return &HistogramVec{v: v, buckets: h.buckets}, nil
}

// Observe records a value in an unlabelled histogram.
func (h *Histogram) Observe(value float64) error {
	vec, err := h.WithLabels()
	if err != nil {
		return err
	}
	vec.Observe(value)
	return nil
}

// Collect implements Metric. Bucket samples are cumulative.
func (h *Histogram) Collect() []Sample {
	var samples []Sample
	for _, s := range h.snapshot() {
		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += s.v.counts[i].Load()
			labels := make(map[string]string, len(s.labels)+1)
			for k, v := range s.labels {
				labels[k] = v
			}
			labels["le"] = formatFloat(bound)
			samples = append(samples, Sample{Name: h.name + "_bucket", Labels: labels, Value: float64(cumulative)})
		}
		samples = append(samples,
			Sample{Name: h.name + "_sum", Labels: s.labels, Value: s.v.sum.Load()},
			Sample{Name: h.name + "_count", Labels: s.labels, Value: float64(s.v.count.Load())},
		)
	}
	return samples
}

// HistogramVec is one labelled histogram series.
type HistogramVec struct {
	v       *histogramValue
	buckets []float64
}

// Observe records a value.
func (v *HistogramVec) Observe(value float64) {
	for i, bound := range v.buckets {
		if value <= bound {
			v.v.counts[i].Add(1)
			break
		}
	}
	v.v.sum.Add(value)
	v.v.count.Add(1)
}

// Registry holds registered metrics in registration order.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := &Counter{family: newFamily(name, help, labels, func() *atomicFloat64 { return new(atomicFloat64) })}
	r.register(c)
	return c
}

// NewGauge creates and registers a gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := &Gauge{family: newFamily(name, help, labels, func() *atomicFloat64 { return new(atomicFloat64) })}
	r.register(g)
	return g
}

// NewHistogram creates and registers a histogram. A +Inf bucket is added
// when missing.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	sorted := slices.Clone(buckets)
	sort.Float64s(sorted)
	if len(sorted) == 0 || !math.IsInf(sorted[len(sorted)-1], 1) {
		sorted = append(sorted, math.Inf(1))
	}
	h := &Histogram{buckets: sorted}
	h.family = newFamily(name, help, labels, func() *histogramValue {
		return &histogramValue{counts: make([]atomic.Uint64, len(sorted))}
	})
	r.register(h)
	return h
}

// register panics on duplicate names, which would produce invalid exposition output.
func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, m.Name()))
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// WriteText writes every metric in Prometheus text format.
func (r *Registry) WriteText(w io.Writer) {
	r.mu.RLock()
	metrics := slices.Clone(r.metrics)
	r.mu.RUnlock()

	for _, m := range metrics {
		writeMetric(w, m)
	}
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteText(w)
	})
}

func writeMetric(w io.Writer, m Metric) {
	samples := m.Collect()
	if len(samples) == 0 {
		return
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return formatLabels(samples[i].Labels) < formatLabels(samples[j].Labels)
	})

	_, _ = fmt.Fprintf(w, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
	_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", m.Name(), m.Type())
	for _, s := range samples {
		if len(s.Labels) == 0 {
			_, _ = fmt.Fprintf(w, "%s %s\n", s.Name, formatFloat(s.Value))
		} else {
			_, _ = fmt.Fprintf(w, "%s{%s} %s\n", s.Name, formatLabels(s.Labels), formatFloat(s.Value))
		}
	}
}

// formatLabels renders labels as key="value" pairs sorted by key.
func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + `="` + escapeLabelValue(labels[k]) + `"`
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case v == math.Trunc(v) && math.Abs(v) < 1e15:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%g", v)
	}
}

func escapeHelp(s string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(s)
}

func escapeLabelValue(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}

// DefaultBuckets are latency buckets in seconds, from 1ms to 30s.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
