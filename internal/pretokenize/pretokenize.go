// Package pretokenize segments text into chunks before byte expansion so
// merges cannot cross boundaries such as whitespace or punctuation runs.
package pretokenize

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/unicode/norm"
)

// GPT4Pattern splits contractions, letter runs, 1-3 digit groups,
// punctuation runs and whitespace. regexp2 has no possessive quantifiers,
// so atomic groups stand in for them.
const GPT4Pattern = `'(?i:[sdmt]|ll|ve|re)|(?>[^\r\n\p{L}\p{N}]?)\p{L}+|\p{N}{1,3}| ?(?>[^\s\p{L}\p{N}]+)[\r\n]*|\s*[\r\n]|\s+(?!\S)|\s+`

var (
	// ErrInvalidPattern is returned when a segmentation pattern is blank or
	// does not compile.
	ErrInvalidPattern = errors.New("invalid segmentation pattern")

	// ErrInvalidNormalization is returned for an unknown normalization form.
	ErrInvalidNormalization = errors.New("invalid normalization form")

	// ErrInvalidUTF8 is returned when pattern splitting is asked to segment
	// text that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("text is not valid UTF-8")
)

// Normalization forms accepted by New.
const (
	NormalizeNone = ""
	NormalizeNFC  = "nfc"
	NormalizeNFKC = "nfkc"
)

// PreTokenizer turns text into chunks. The zero pattern keeps the whole
// text as a single chunk, whitespace included.
type PreTokenizer struct {
	pattern string
	re      *regexp2.Regexp
	form    string
}

// New compiles pattern and validates the normalization form. An empty
// pattern disables segmentation; a pattern of only whitespace is rejected.
func New(pattern, normalization string) (*PreTokenizer, error) {
	p := &PreTokenizer{pattern: pattern}

	switch f := strings.ToLower(strings.TrimSpace(normalization)); f {
	case NormalizeNone, NormalizeNFC, NormalizeNFKC:
		p.form = f
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidNormalization, normalization)
	}

	if pattern == "" {
		return p, nil
	}
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("%w: blank pattern", ErrInvalidPattern)
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	p.re = re
	return p, nil
}

// MustNew is New for patterns known to be valid.
func MustNew(pattern, normalization string) *PreTokenizer {
	p, err := New(pattern, normalization)
	if err != nil {
		panic(err)
	}
	return p
}

// Pattern returns the configured pattern, or "" when segmentation is off.
func (p *PreTokenizer) Pattern() string {
	return p.pattern
}

// Normalization returns the configured normalization form.
func (p *PreTokenizer) Normalization() string {
	return p.form
}

// Normalize applies the configured normalization form to text.
func (p *PreTokenizer) Normalize(text string) string {
	switch p.form {
	case NormalizeNFC:
		return norm.NFC.String(text)
	case NormalizeNFKC:
		return norm.NFKC.String(text)
	}
	return text
}

// Split returns the chunks of text in order. Concatenating them gives back
// the normalized input: text between pattern matches is kept as chunks of
// its own.
func (p *PreTokenizer) Split(text string) ([]string, error) {
	text = p.Normalize(text)
	if text == "" {
		return nil, nil
	}
	if p.re == nil {
		return []string{text}, nil
	}
	if !utf8.ValidString(text) {
		return nil, ErrInvalidUTF8
	}

	// regexp2 reports rune offsets; map them back to byte offsets.
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))

	var chunks []string
	last := 0
	m, err := p.re.FindStringMatch(text)
	for m != nil && err == nil {
		if m.Length > 0 {
			start, end := offsets[m.Index], offsets[m.Index+m.Length]
			if start > last {
				chunks = append(chunks, text[last:start])
			}
			chunks = append(chunks, text[start:end])
			last = end
		}
		m, err = p.re.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}
	if last < len(text) {
		chunks = append(chunks, text[last:])
	}
	return chunks, nil
}
