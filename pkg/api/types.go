// Package api defines the JSON request and response bodies of the
// tokenizer HTTP service.
package api

import "time"

// EncodeRequest asks the service to tokenize text.
type EncodeRequest struct {
	Text string `json:"text"`
}

// Token is one encoded token and where it sits in the source text.
// Start and End are byte offsets. Text is empty when the token's bytes are
// not valid UTF-8 on their own (part of a multi-byte character); Bytes
// always carries them.
type Token struct {
	ID    int    `json:"id"`
	Text  string `json:"text,omitempty"`
	Bytes []byte `json:"bytes"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// EncodeStats are display statistics for one encoding.
type EncodeStats struct {
	TotalTokens      int     `json:"total_tokens"`
	UniqueTokens     int     `json:"unique_tokens"`
	Characters       int     `json:"characters"`
	Bytes            int     `json:"bytes"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// EncodeResponse is the result of an encode request.
type EncodeResponse struct {
	IDs    []int       `json:"ids"`
	Tokens []Token     `json:"tokens"`
	Stats  EncodeStats `json:"stats"`
}

// DecodeRequest asks the service to turn ids back into text.
type DecodeRequest struct {
	IDs []int `json:"ids"`
}

// DecodeResponse is the result of a decode request.
type DecodeResponse struct {
	Text string `json:"text"`
}

// Merge is one entry of the vocabulary listing.
type Merge struct {
	Left  int    `json:"left"`
	Right int    `json:"right"`
	ID    int    `json:"id"`
	Bytes []byte `json:"bytes"`
}

// VocabResponse lists the learned merges.
type VocabResponse struct {
	VocabSize int     `json:"vocab_size"`
	Merges    []Merge `json:"merges"`
}

// HealthResponse reports service status.
type HealthResponse struct {
	Status    string       `json:"status"`
	VocabSize int          `json:"vocab_size"`
	Pattern   string       `json:"pattern,omitempty"`
	Uptime    string       `json:"uptime"`
	Resources *SystemStats `json:"resources,omitempty"`
}

// SystemStats is a resource sample reported by the health endpoint.
type SystemStats struct {
	CPUUsagePercent    float64   `json:"cpu_usage_percent"`
	MemoryUsedMB       uint64    `json:"memory_used_mb"`
	MemoryTotalMB      uint64    `json:"memory_total_mb"`
	MemoryUsagePercent float64   `json:"memory_usage_percent"`
	HeapAllocMB        uint64    `json:"heap_alloc_mb"`
	SampledAt          time.Time `json:"sampled_at"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
