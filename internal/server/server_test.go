package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/takuphilchan/offgrid-bpe/internal/bpe"
	"github.com/takuphilchan/offgrid-bpe/internal/config"
	"github.com/takuphilchan/offgrid-bpe/internal/logging"
	"github.com/takuphilchan/offgrid-bpe/pkg/api"
)

func newTestServer(t *testing.T, cacheSize int) *Server {
	t.Helper()
	table := bpe.NewMergeTable()
	table.Add(bpe.Pair{Left: 'a', Right: 'b'})
	table.Add(bpe.Pair{Left: 256, Right: 256})

	cfg := config.Default()
	cfg.CacheSize = cacheSize
	s, err := New(cfg, bpe.NewTokenizer(table, nil), logging.Discard())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	w := do(t, newTestServer(t, 0), "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if contentType := w.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", contentType)
	}

	var resp api.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.VocabSize != 258 {
		t.Errorf("Unexpected health response: %+v", resp)
	}
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(t, 0)

	w := do(t, s, "GET", "/", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if name, ok := response["name"].(string); !ok || name != "OffGrid BPE" {
		t.Errorf("Expected name 'OffGrid BPE', got %v", response["name"])
	}

	if w := do(t, s, "GET", "/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestHandleEncode(t *testing.T) {
	w := do(t, newTestServer(t, 0), "POST", "/v1/encode", api.EncodeRequest{Text: "abababé"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.EncodeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	want := []int{257, 256, 0xC3, 0xA9}
	if len(resp.IDs) != len(want) {
		t.Fatalf("Expected ids %v, got %v", want, resp.IDs)
	}
	for i := range want {
		if resp.IDs[i] != want[i] {
			t.Errorf("Expected ids %v, got %v", want, resp.IDs)
			break
		}
	}

	if len(resp.Tokens) != 4 {
		t.Fatalf("Expected 4 tokens, got %d", len(resp.Tokens))
	}
	if tok := resp.Tokens[0]; tok.Text != "abab" || tok.Start != 0 || tok.End != 4 {
		t.Errorf("Unexpected first token: %+v", tok)
	}
	// Half of "é" is not text on its own; the bytes still come through.
	if tok := resp.Tokens[2]; tok.Text != "" || !bytes.Equal(tok.Bytes, []byte{0xC3}) || tok.Start != 6 {
		t.Errorf("Unexpected partial token: %+v", tok)
	}
	if resp.Stats.TotalTokens != 4 || resp.Stats.Bytes != 8 || resp.Stats.Characters != 7 {
		t.Errorf("Unexpected stats: %+v", resp.Stats)
	}
}

func TestHandleEncodeCache(t *testing.T) {
	s := newTestServer(t, 4)
	first := do(t, s, "POST", "/v1/encode", api.EncodeRequest{Text: "abab"})
	if s.cache.Len() != 1 {
		t.Fatalf("Expected 1 cached entry, got %d", s.cache.Len())
	}
	second := do(t, s, "POST", "/v1/encode", api.EncodeRequest{Text: "abab"})
	if first.Body.String() != second.Body.String() {
		t.Errorf("Cached response differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}
}

func TestHandleEncodeBadRequests(t *testing.T) {
	s := newTestServer(t, 0)

	if w := do(t, s, "GET", "/v1/encode", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}

	req := httptest.NewRequest("POST", "/v1/encode", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHandleDecode(t *testing.T) {
	s := newTestServer(t, 0)

	w := do(t, s, "POST", "/v1/decode", api.DecodeRequest{IDs: []int{257, 256, 0xC3, 0xA9}})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.DecodeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Text != "abababé" {
		t.Errorf("Expected %q, got %q", "abababé", resp.Text)
	}

	for _, ids := range [][]int{{999}, {0xC3}} {
		w := do(t, s, "POST", "/v1/decode", api.DecodeRequest{IDs: ids})
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("ids %v: expected status 422, got %d", ids, w.Code)
		}
		var errResp api.ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
			t.Fatal(err)
		}
		if errResp.Error.Type != "decode_error" {
			t.Errorf("ids %v: expected decode_error, got %q", ids, errResp.Error.Type)
		}
	}
}

func TestHandleVocab(t *testing.T) {
	w := do(t, newTestServer(t, 0), "GET", "/v1/vocab", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp api.VocabResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.VocabSize != 258 || len(resp.Merges) != 2 {
		t.Fatalf("Unexpected vocab: %+v", resp)
	}
	if m := resp.Merges[1]; m.ID != 257 || m.Left != 256 || m.Right != 256 || string(m.Bytes) != "abab" {
		t.Errorf("Unexpected merge: %+v", m)
	}
}

func TestHandleMetrics(t *testing.T) {
	s := newTestServer(t, 4)
	do(t, s, "POST", "/v1/encode", api.EncodeRequest{Text: "ababab"})
	do(t, s, "POST", "/v1/encode", api.EncodeRequest{Text: "ababab"})
	do(t, s, "POST", "/v1/decode", api.DecodeRequest{IDs: []int{999}})

	if got := s.metrics.TokensEncodedTotal.Value(); got != 4 {
		t.Errorf("Expected 4 encoded tokens, got %v", got)
	}
	if hits := s.metrics.CacheHitsTotal.Value(); hits != 1 {
		t.Errorf("Expected 1 cache hit, got %v", hits)
	}
	if errs := s.metrics.DecodeErrorsTotal.Value(); errs != 1 {
		t.Errorf("Expected 1 decode error, got %v", errs)
	}

	w := do(t, s, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"bpe_vocab_size 258",
		"bpe_tokens_encoded_total 4",
		`bpe_requests_total{method="POST",endpoint="/v1/encode",status="200"} 2`,
		`bpe_requests_total{method="POST",endpoint="/v1/decode",status="422"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics to contain %q:\n%s", want, body)
		}
	}
}
