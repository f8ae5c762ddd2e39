// Package corpus loads newline-delimited UTF-8 training text.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/takuphilchan/offgrid-bpe/internal/bpe"
	"github.com/takuphilchan/offgrid-bpe/internal/logging"
)

// maxLineBytes bounds a single corpus line.
const maxLineBytes = 64 * 1024 * 1024

// sampleRunes is how much of the corpus is logged when sampling is on.
const sampleRunes = 10

// Options selects which part of a corpus file is used.
type Options struct {
	Path string
	// LineLimit keeps only the first LineLimit lines. Zero keeps all.
	LineLimit int
	// PrintSample logs the first few characters of the loaded text.
	PrintSample bool
}

// Read trims each line of r and joins the first limit lines with "\n".
func Read(r io.Reader, limit int) (string, error) {
	if limit < 0 {
		return "", bpe.ConfigErrorf("line limit must not be negative, got %d", limit)
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []string
	for scanner.Scan() {
		if limit > 0 && len(lines) >= limit {
			break
		}
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// Load reads the corpus described by opts.
func Load(opts Options, log *logging.Logger) (string, error) {
	if log == nil {
		log = logging.Default()
	}
	if opts.Path == "" {
		return "", bpe.ConfigErrorf("input file path is not set")
	}

	f, err := os.Open(opts.Path)
	if err != nil {
		return "", &bpe.Error{Kind: bpe.KindIO, Message: fmt.Sprintf("failed to open corpus %s", opts.Path), Err: err}
	}
	defer f.Close()

	text, err := Read(f, opts.LineLimit)
	if err != nil {
		if bpe.AsError(err) != nil {
			return "", err
		}
		return "", &bpe.Error{Kind: bpe.KindIO, Message: fmt.Sprintf("failed to read corpus %s", opts.Path), Err: err}
	}

	log.Info("corpus loaded", logging.Fields{"path": opts.Path, "bytes": len(text)})
	if opts.PrintSample {
		log.Info("sample text", logging.Fields{"text": Sample(text)})
	}
	return text, nil
}

// Sample returns the first few characters of text.
func Sample(text string) string {
	n := 0
	for i := range text {
		if n == sampleRunes {
			return text[:i]
		}
		n++
	}
	return text
}
