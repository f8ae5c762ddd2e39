package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("requests_total", "Total requests", "endpoint")
	c.Inc("/v1/encode")
	c.Add(2, "/v1/encode")
	c.Add(-5, "/v1/encode")
	c.Inc("/v1/decode")

	if got := c.Value("/v1/encode"); got != 3 {
		t.Errorf("Expected 3, got %v", got)
	}
	want := []string{
		"# HELP requests_total Total requests",
		"# TYPE requests_total counter",
		`requests_total{endpoint="/v1/decode"} 1`,
		`requests_total{endpoint="/v1/encode"} 3`,
	}
	if got := c.Collect(); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("Collect:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("in_flight", "In flight")
	g.Inc()
	g.Inc()
	g.Dec()
	if got := g.Value(); got != 1 {
		t.Errorf("Expected 1, got %v", got)
	}
	g.Set(42)
	if lines := g.Collect(); lines[len(lines)-1] != "in_flight 42" {
		t.Errorf("Unexpected sample line: %q", lines[len(lines)-1])
	}
}

func TestHistogramBucketsAreCumulative(t *testing.T) {
	h := NewHistogram("tokens", "Tokens", []float64{10, 1, 100})
	for _, v := range []float64{0.5, 5, 5, 50, 500} {
		h.Observe(v)
	}
	if h.Count() != 5 {
		t.Errorf("Expected 5 observations, got %d", h.Count())
	}

	out := strings.Join(h.Collect(), "\n")
	for _, want := range []string{
		`tokens_bucket{le="1"} 1`,
		`tokens_bucket{le="10"} 3`,
		`tokens_bucket{le="100"} 4`,
		`tokens_bucket{le="+Inf"} 5`,
		"tokens_sum 560.5",
		"tokens_count 5",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in:\n%s", want, out)
		}
	}
}

func TestRegistryHandler(t *testing.T) {
	m := NewServiceMetrics()
	m.VocabSize.Set(512)

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/vocab", nil))

	if got := m.RequestsTotal.Value("GET", "/v1/vocab", "418"); got != 1 {
		t.Errorf("Expected request to be counted, got %v", got)
	}
	if got := m.RequestsInFlight.Value(); got != 0 {
		t.Errorf("Expected no requests in flight, got %v", got)
	}

	w := httptest.NewRecorder()
	m.Registry.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Unexpected content type %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "bpe_vocab_size 512") {
		t.Errorf("Expected vocab gauge in output:\n%s", body)
	}
	if strings.Index(body, "bpe_bytes_encoded_total") > strings.Index(body, "bpe_vocab_size") {
		t.Error("Expected metrics ordered by name")
	}
}
