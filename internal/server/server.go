// Package server exposes a loaded tokenizer over HTTP: encode with token
// spans, decode, vocabulary listing, metrics and health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/takuphilchan/offgrid-bpe/internal/bpe"
	"github.com/takuphilchan/offgrid-bpe/internal/config"
	"github.com/takuphilchan/offgrid-bpe/internal/logging"
	"github.com/takuphilchan/offgrid-bpe/internal/metrics"
	"github.com/takuphilchan/offgrid-bpe/internal/resource"
	"github.com/takuphilchan/offgrid-bpe/pkg/api"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 << 20

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	config     *config.Config
	tokenizer  *bpe.Tokenizer
	pattern    string
	cache      *lru.Cache // text -> *api.EncodeResponse; nil when disabled
	monitor    *resource.Monitor
	metrics    *metrics.ServiceMetrics
	log        *logging.Logger
	started    time.Time
}

// New creates a server around an already constructed tokenizer.
func New(cfg *config.Config, tok *bpe.Tokenizer, log *logging.Logger) (*Server, error) {
	if log == nil {
		log = logging.Default()
	}
	s := &Server{
		config:    cfg,
		tokenizer: tok,
		pattern:   cfg.SegmentationPattern,
		metrics:   metrics.NewServiceMetrics(),
		log:       log,
		started:   time.Now(),
	}
	s.metrics.VocabSize.Set(float64(tok.VocabSize()))
	if cfg.CacheSize > 0 {
		cache, err := lru.New(cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create encode cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/encode", s.handleEncode)
	mux.HandleFunc("/v1/decode", s.handleDecode)
	mux.HandleFunc("/v1/vocab", s.handleVocab)
	mux.Handle("/metrics", s.metrics.Registry.Handler())
	mux.HandleFunc("/", s.handleRoot)

	return s.loggingMiddleware(s.metrics.Middleware(mux))
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	s.monitor = resource.NewMonitor(5 * time.Second)
	s.monitor.Start()
	defer s.monitor.Stop()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.ServerPort),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.handleShutdown()

	s.log.Info("server starting", logging.Fields{
		"addr":       s.httpServer.Addr,
		"vocab_size": s.tokenizer.VocabSize(),
	})

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) handleShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	s.log.Info("shutdown signal received, stopping")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("error during shutdown", logging.Fields{"error": err.Error()})
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", logging.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		})
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, "Not found", "not_found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "OffGrid BPE",
		"status":    "running",
		"endpoints": []string{"GET /health", "POST /v1/encode", "POST /v1/decode", "GET /v1/vocab", "GET /metrics"},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:    "healthy",
		VocabSize: s.tokenizer.VocabSize(),
		Pattern:   s.pattern,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}
	if s.monitor != nil {
		st := s.monitor.GetStats()
		resp.Resources = &api.SystemStats{
			CPUUsagePercent:    st.CPUUsagePercent,
			MemoryUsedMB:       st.MemoryUsedMB,
			MemoryTotalMB:      st.MemoryTotalMB,
			MemoryUsagePercent: st.MemoryUsagePercent,
			HeapAllocMB:        st.HeapAllocMB,
			SampledAt:          st.SampledAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", "invalid_request", http.StatusMethodNotAllowed)
		return
	}

	var req api.EncodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, "Invalid request body", "invalid_request", http.StatusBadRequest)
		return
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(req.Text); ok {
			s.metrics.CacheHitsTotal.Inc()
			s.recordEncode(cached.(*api.EncodeResponse))
			writeJSON(w, http.StatusOK, cached)
			return
		}
		s.metrics.CacheMissesTotal.Inc()
	}

	resp, err := s.encode(req.Text)
	if err != nil {
		writeError(w, err.Error(), "invalid_request", http.StatusUnprocessableEntity)
		return
	}
	if s.cache != nil {
		s.cache.Add(req.Text, resp)
	}
	s.recordEncode(resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recordEncode(resp *api.EncodeResponse) {
	s.metrics.TokensEncodedTotal.Add(float64(resp.Stats.TotalTokens))
	s.metrics.BytesEncodedTotal.Add(float64(resp.Stats.Bytes))
	s.metrics.TokensPerRequest.Observe(float64(resp.Stats.TotalTokens))
}

func (s *Server) encode(text string) (*api.EncodeResponse, error) {
	spans, err := s.tokenizer.Spans(text)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(spans))
	tokens := make([]api.Token, len(spans))
	for i, sp := range spans {
		ids[i] = sp.ID
		tokens[i] = api.Token{ID: sp.ID, Bytes: sp.Bytes, Start: sp.Start, End: sp.End}
		if sp.ValidUTF8() {
			tokens[i].Text = sp.Text()
		}
	}
	st := bpe.Summarize(text, ids)
	return &api.EncodeResponse{
		IDs:    ids,
		Tokens: tokens,
		Stats: api.EncodeStats{
			TotalTokens:      st.TotalTokens,
			UniqueTokens:     st.UniqueTokens,
			Characters:       st.Characters,
			Bytes:            st.Bytes,
			CompressionRatio: st.Compression,
		},
	}, nil
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", "invalid_request", http.StatusMethodNotAllowed)
		return
	}

	var req api.DecodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, "Invalid request body", "invalid_request", http.StatusBadRequest)
		return
	}

	text, err := s.tokenizer.Decode(req.IDs)
	if err != nil {
		if errors.Is(err, bpe.ErrDecode) {
			s.metrics.DecodeErrorsTotal.Inc()
			writeError(w, err.Error(), string(bpe.KindDecode), http.StatusUnprocessableEntity)
			return
		}
		writeError(w, err.Error(), "api_error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, api.DecodeResponse{Text: text})
}

func (s *Server) handleVocab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", "invalid_request", http.StatusMethodNotAllowed)
		return
	}
	rules := s.tokenizer.Table().Rules()
	resp := api.VocabResponse{
		VocabSize: s.tokenizer.VocabSize(),
		Merges:    make([]api.Merge, len(rules)),
	}
	for i, rule := range rules {
		b, _ := s.tokenizer.TokenBytes(rule.ID)
		resp.Merges[i] = api.Merge{Left: rule.Pair.Left, Right: rule.Pair.Right, ID: rule.ID, Bytes: b}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, message, errType string, statusCode int) {
	writeJSON(w, statusCode, api.ErrorResponse{
		Error: api.ErrorDetail{
			Message: message,
			Type:    errType,
		},
	})
}
