package corpus

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/takuphilchan/offgrid-bpe/internal/bpe"
	"github.com/takuphilchan/offgrid-bpe/internal/logging"
)

func TestRead(t *testing.T) {
	input := "  first line  \nsecond\t\n\n third\r\nfourth"

	testCases := []struct {
		limit int
		want  string
	}{
		{0, "first line\nsecond\n\nthird\nfourth"},
		{1, "first line"},
		{2, "first line\nsecond"},
		{10, "first line\nsecond\n\nthird\nfourth"},
	}
	for _, tc := range testCases {
		got, err := Read(strings.NewReader(input), tc.limit)
		if err != nil {
			t.Fatalf("limit %d: %v", tc.limit, err)
		}
		if got != tc.want {
			t.Errorf("limit %d: got %q, want %q", tc.limit, got, tc.want)
		}
	}
}

func TestReadNegativeLimit(t *testing.T) {
	if _, err := Read(strings.NewReader("x"), -1); !errors.Is(err, bpe.ErrConfig) {
		t.Errorf("got %v, want config error", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	if err := os.WriteFile(path, []byte("नमस्ते दुनिया\nhello\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	text, err := Load(Options{Path: path, PrintSample: true}, logging.New(&logs))
	if err != nil {
		t.Fatal(err)
	}
	if text != "नमस्ते दुनिया\nhello" {
		t.Errorf("got %q", text)
	}
	if !strings.Contains(logs.String(), "sample text") {
		t.Errorf("sample not logged: %s", logs.String())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(Options{}, logging.Discard()); !errors.Is(err, bpe.ErrConfig) {
		t.Errorf("empty path: got %v", err)
	}
	_, err := Load(Options{Path: filepath.Join(t.TempDir(), "missing.txt")}, logging.Discard())
	if !errors.Is(err, bpe.ErrIO) {
		t.Errorf("missing file: got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cause should be kept: %v", err)
	}
}

func TestSample(t *testing.T) {
	if got := Sample("short"); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Sample("abcdefghijklmnop"); got != "abcdefghij" {
		t.Errorf("got %q", got)
	}
	// Counted in characters, never cutting one in half.
	if got := Sample("नमस्तेनमस्तेनमस्ते"); len([]rune(got)) != 10 {
		t.Errorf("got %q (%d runes)", got, len([]rune(got)))
	}
}
