package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func captureJSON(t *testing.T, fn func()) CommandResult {
	t.Helper()
	var buf bytes.Buffer
	oldWriter, oldMode := Writer, JSONMode
	Writer, JSONMode = &buf, true
	defer func() { Writer, JSONMode = oldWriter, oldMode }()

	fn()

	var result CommandResult
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON output %q: %v", buf.String(), err)
	}
	return result
}

func TestSuccess(t *testing.T) {
	result := captureJSON(t, func() {
		Success("trained", TrainSummary{VocabSize: 300, OutputPath: "tokenizer.json"})
	})
	if !result.Success || result.Message != "trained" {
		t.Errorf("unexpected result: %+v", result)
	}
	data, ok := result.Data.(map[string]interface{})
	if !ok || data["vocab_size"] != float64(300) {
		t.Errorf("unexpected data: %v", result.Data)
	}
}

func TestFailure(t *testing.T) {
	result := captureJSON(t, func() {
		Failure("Training failed", errors.New("no pairs left"), "vocabulary_exhausted")
	})
	if result.Success || result.Error != "no pairs left" || result.Kind != "vocabulary_exhausted" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestTextModeWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	oldWriter, oldMode := Writer, JSONMode
	Writer, JSONMode = &buf, false
	defer func() { Writer, JSONMode = oldWriter, oldMode }()

	Success("ignored", nil)
	Failure("ignored", nil, "")
	if buf.Len() != 0 {
		t.Errorf("text mode wrote JSON: %q", buf.String())
	}
}
