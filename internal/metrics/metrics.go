// Package metrics exposes tokenizer service counters in the Prometheus text
// exposition format.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of a metric
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is anything the registry can render.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Collect() []string
}

// series stores one float per label combination.
type series struct {
	name   string
	help   string
	labels []string
	mu     sync.RWMutex
	values map[string]float64
}

func newSeries(name, help string, labels []string) *series {
	return &series{name: name, help: help, labels: labels, values: make(map[string]float64)}
}

func (s *series) Name() string { return s.name }
func (s *series) Help() string { return s.help }

func (s *series) add(val float64, labelValues []string) {
	s.mu.Lock()
	s.values[labelsToKey(labelValues)] += val
	s.mu.Unlock()
}

func (s *series) set(val float64, labelValues []string) {
	s.mu.Lock()
	s.values[labelsToKey(labelValues)] = val
	s.mu.Unlock()
}

func (s *series) get(labelValues []string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[labelsToKey(labelValues)]
}

func (s *series) collect(typ MetricType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := []string{
		fmt.Sprintf("# HELP %s %s", s.name, s.help),
		fmt.Sprintf("# TYPE %s %s", s.name, typ),
	}
	for _, key := range sortedKeys(s.values) {
		lines = append(lines, sample(s.name, keyToLabels(s.labels, key), s.values[key]))
	}
	return lines
}

// Counter only goes up.
type Counter struct{ *series }

// NewCounter creates a counter with the given label names.
func NewCounter(name, help string, labels ...string) *Counter {
	return &Counter{newSeries(name, help, labels)}
}

func (c *Counter) Type() MetricType  { return MetricTypeCounter }
func (c *Counter) Collect() []string { return c.collect(MetricTypeCounter) }

// Inc increments the counter by 1
func (c *Counter) Inc(labelValues ...string) { c.add(1, labelValues) }

// Add adds val, which must not be negative.
func (c *Counter) Add(val float64, labelValues ...string) {
	if val < 0 {
		return
	}
	c.add(val, labelValues)
}

// Value returns the current count for the label values.
func (c *Counter) Value(labelValues ...string) float64 { return c.get(labelValues) }

// Gauge represents a value that can go up and down
type Gauge struct{ *series }

// NewGauge creates a gauge with the given label names.
func NewGauge(name, help string, labels ...string) *Gauge {
	return &Gauge{newSeries(name, help, labels)}
}

func (g *Gauge) Type() MetricType  { return MetricTypeGauge }
func (g *Gauge) Collect() []string { return g.collect(MetricTypeGauge) }

func (g *Gauge) Set(val float64, labelValues ...string) { g.set(val, labelValues) }
func (g *Gauge) Inc(labelValues ...string)              { g.add(1, labelValues) }
func (g *Gauge) Dec(labelValues ...string)              { g.add(-1, labelValues) }

// Value returns the current value for the label values.
func (g *Gauge) Value(labelValues ...string) float64 { return g.get(labelValues) }

// Histogram tracks observations in buckets
type Histogram struct {
	name    string
	help    string
	labels  []string
	buckets []float64
	mu      sync.RWMutex
	values  map[string]*histogramData
}

type histogramData struct {
	counts []uint64 // counts[i] is observations in (buckets[i-1], buckets[i]]
	sum    float64
	count  uint64
}

// NewHistogram creates a histogram over the given upper bounds.
func NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	return &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: sorted,
		values:  make(map[string]*histogramData),
	}
}

// LatencyBuckets returns buckets suitable for request latency in seconds.
func LatencyBuckets() []float64 {
	return []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
}

// TokenBuckets returns buckets suitable for tokens per request.
func TokenBuckets() []float64 {
	return []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000}
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return MetricTypeHistogram }

// Observe records an observation
func (h *Histogram) Observe(val float64, labelValues ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := labelsToKey(labelValues)
	data, ok := h.values[key]
	if !ok {
		data = &histogramData{counts: make([]uint64, len(h.buckets))}
		h.values[key] = data
	}
	data.sum += val
	data.count++
	if i := sort.SearchFloat64s(h.buckets, val); i < len(h.buckets) {
		data.counts[i]++
	}
}

// Count returns the number of observations for the label values.
func (h *Histogram) Count(labelValues ...string) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if data, ok := h.values[labelsToKey(labelValues)]; ok {
		return data.count
	}
	return 0
}

// Collect returns metric lines for Prometheus
func (h *Histogram) Collect() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	lines := []string{
		fmt.Sprintf("# HELP %s %s", h.name, h.help),
		fmt.Sprintf("# TYPE %s histogram", h.name),
	}

	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		data := h.values[key]
		base := keyToLabels(h.labels, key)
		withLE := func(le string) string {
			if base == "" {
				return fmt.Sprintf("le=%q", le)
			}
			return fmt.Sprintf("%s,le=%q", base, le)
		}

		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += data.counts[i]
			lines = append(lines, fmt.Sprintf("%s_bucket{%s} %d", h.name, withLE(fmt.Sprintf("%g", bound)), cumulative))
		}
		lines = append(lines, fmt.Sprintf("%s_bucket{%s} %d", h.name, withLE("+Inf"), data.count))
		lines = append(lines, sample(h.name+"_sum", base, data.sum))
		lines = append(lines, fmt.Sprintf("%s %d", seriesName(h.name+"_count", base), data.count))
	}
	return lines
}

// Registry holds all registered metrics
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewRegistry creates a new registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds m, replacing any metric of the same name.
func (r *Registry) Register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[m.Name()] = m
}

// Collect renders every metric, ordered by name.
func (r *Registry) Collect() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		lines = append(lines, r.metrics[name].Collect()...)
	}
	return strings.Join(lines, "\n") + "\n"
}

// Handler returns an HTTP handler for the metrics endpoint
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(r.Collect()))
	})
}

// Helper functions

func labelsToKey(labelValues []string) string {
	return strings.Join(labelValues, "\x00")
}

func keyToLabels(labelNames []string, key string) string {
	if key == "" || len(labelNames) == 0 {
		return ""
	}
	values := strings.Split(key, "\x00")
	pairs := make([]string, 0, len(labelNames))
	for i, name := range labelNames {
		if i < len(values) {
			pairs = append(pairs, fmt.Sprintf("%s=\"%s\"", name, escapeLabel(values[i])))
		}
	}
	return strings.Join(pairs, ",")
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func seriesName(name, labels string) string {
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

func sample(name, labels string, val float64) string {
	return fmt.Sprintf("%s %g", seriesName(name, labels), val)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ServiceMetrics are the counters the tokenizer service maintains.
type ServiceMetrics struct {
	Registry *Registry

	RequestsTotal    *Counter
	RequestDuration  *Histogram
	RequestsInFlight *Gauge

	TokensEncodedTotal *Counter
	BytesEncodedTotal  *Counter
	TokensPerRequest   *Histogram
	DecodeErrorsTotal  *Counter

	CacheHitsTotal   *Counter
	CacheMissesTotal *Counter

	VocabSize *Gauge
}

// NewServiceMetrics creates the service metrics in a fresh registry.
func NewServiceMetrics() *ServiceMetrics {
	m := &ServiceMetrics{
		Registry: NewRegistry(),

		RequestsTotal: NewCounter(
			"bpe_requests_total",
			"Total number of requests",
			"method", "endpoint", "status",
		),
		RequestDuration: NewHistogram(
			"bpe_request_duration_seconds",
			"Request duration in seconds",
			LatencyBuckets(),
			"endpoint",
		),
		RequestsInFlight: NewGauge(
			"bpe_requests_in_flight",
			"Number of requests currently being processed",
		),
		TokensEncodedTotal: NewCounter(
			"bpe_tokens_encoded_total",
			"Total number of tokens produced by encode requests",
		),
		BytesEncodedTotal: NewCounter(
			"bpe_bytes_encoded_total",
			"Total number of input bytes encoded",
		),
		TokensPerRequest: NewHistogram(
			"bpe_tokens_per_request",
			"Tokens produced per encode request",
			TokenBuckets(),
		),
		DecodeErrorsTotal: NewCounter(
			"bpe_decode_errors_total",
			"Decode requests rejected for unknown ids or invalid UTF-8",
		),
		CacheHitsTotal: NewCounter(
			"bpe_encode_cache_hits_total",
			"Encode requests answered from the cache",
		),
		CacheMissesTotal: NewCounter(
			"bpe_encode_cache_misses_total",
			"Encode requests that had to be tokenized",
		),
		VocabSize: NewGauge(
			"bpe_vocab_size",
			"Number of symbols in the loaded vocabulary",
		),
	}

	for _, metric := range []Metric{
		m.RequestsTotal, m.RequestDuration, m.RequestsInFlight,
		m.TokensEncodedTotal, m.BytesEncodedTotal, m.TokensPerRequest, m.DecodeErrorsTotal,
		m.CacheHitsTotal, m.CacheMissesTotal, m.VocabSize,
	} {
		m.Registry.Register(metric)
	}

	// Zero values so the series appear before the first request.
	m.RequestsInFlight.Set(0)
	m.DecodeErrorsTotal.Add(0)
	m.CacheHitsTotal.Add(0)
	m.CacheMissesTotal.Add(0)

	return m
}

// Middleware records request counts, latency and in-flight requests.
func (m *ServiceMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.RequestsInFlight.Inc()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RequestsInFlight.Dec()
		m.RequestsTotal.Inc(r.Method, r.URL.Path, fmt.Sprintf("%d", wrapped.statusCode))
		m.RequestDuration.Observe(time.Since(start).Seconds(), r.URL.Path)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
