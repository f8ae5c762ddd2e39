package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONMode controls whether output is JSON or human-readable
var JSONMode = false

// Writer is where JSON results go. Tests may replace it.
var Writer io.Writer = os.Stdout

// TrainSummary is the result of a training run.
type TrainSummary struct {
	VocabSize        int     `json:"vocab_size"`
	RequestedVocab   int     `json:"requested_vocab"`
	Exhausted        bool    `json:"exhausted"`
	InitialTokens    int     `json:"initial_tokens"`
	FinalTokens      int     `json:"final_tokens"`
	CompressionRatio float64 `json:"compression_ratio"`
	OutputPath       string  `json:"output_path"`
	RunID            int64   `json:"run_id,omitempty"`
	DurationMs       int64   `json:"duration_ms"`
}

// TableInfo summarizes a loaded merge table.
type TableInfo struct {
	Path       string `json:"path"`
	VocabSize  int    `json:"vocab_size"`
	Merges     int    `json:"merges"`
	Checksum   string `json:"checksum"`
	LongestID  int    `json:"longest_token_id,omitempty"`
	LongestLen int    `json:"longest_token_bytes,omitempty"`
	Roundtrip  *bool  `json:"roundtrip,omitempty"`
}

// CommandResult represents a generic command result
type CommandResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// PrintJSON outputs data as JSON
func PrintJSON(data interface{}) {
	encoder := json.NewEncoder(Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// Success outputs a success result
func Success(message string, data interface{}) {
	if JSONMode {
		PrintJSON(CommandResult{
			Success: true,
			Message: message,
			Data:    data,
		})
	}
}

// Failure outputs an error result in JSON mode. kind is the error
// classification, if any.
func Failure(message string, err error, kind string) {
	if JSONMode {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		PrintJSON(CommandResult{
			Success: false,
			Message: message,
			Error:   errMsg,
			Kind:    kind,
		})
	}
}
