package bpe

import (
	"unicode/utf8"
)

// Tokenizer encodes and decodes text with a fixed merge table. It owns a
// private copy of the table and is safe for concurrent use.
type Tokenizer struct {
	table    *MergeTable
	splitter Splitter
	vocab    [][]byte // vocab[id] is the byte expansion of id
}

// NewTokenizer builds an engine over a copy of table. A nil splitter keeps
// each input as one chunk.
func NewTokenizer(table *MergeTable, splitter Splitter) *Tokenizer {
	if table == nil {
		table = NewMergeTable()
	}
	if splitter == nil {
		splitter = WholeText{}
	}
	table = table.Clone()

	// Both members of a pair precede its id, so one forward pass fills
	// every expansion.
	vocab := make([][]byte, table.VocabSize())
	for i := 0; i < ByteSymbols; i++ {
		vocab[i] = []byte{byte(i)}
	}
	for _, r := range table.rules {
		left, right := vocab[r.Pair.Left], vocab[r.Pair.Right]
		b := make([]byte, 0, len(left)+len(right))
		b = append(b, left...)
		vocab[r.ID] = append(b, right...)
	}

	return &Tokenizer{table: table, splitter: splitter, vocab: vocab}
}

// Table returns the engine's merge table. Callers must not modify it.
func (t *Tokenizer) Table() *MergeTable {
	return t.table
}

// VocabSize returns the number of symbols the engine knows.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab)
}

// Encode converts text to symbol ids.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	chunks, err := t.EncodeChunks(text)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, totalSymbols(chunks))
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

// EncodeChunks converts text to one id sequence per pre-tokenized chunk.
//
// Every rule is applied exactly once, in id order, which reproduces the
// order merges were learned in. It is not a repeat-until-stable loop.
func (t *Tokenizer) EncodeChunks(text string) ([][]int, error) {
	seqs, err := chunkSymbols(t.splitter, text)
	if err != nil {
		return nil, err
	}
	for i := range seqs {
		seqs[i] = t.encodeChunk(seqs[i])
	}
	return seqs, nil
}

func (t *Tokenizer) encodeChunk(ids []int) []int {
	for _, r := range t.table.rules {
		if len(ids) < 2 {
			break
		}
		if !containsPair(ids, r.Pair) {
			continue
		}
		ids = Merge(ids, r.Pair, r.ID)
	}
	return ids
}

func containsPair(ids []int, p Pair) bool {
	for i := 0; i+1 < len(ids); i++ {
		if ids[i] == p.Left && ids[i+1] == p.Right {
			return true
		}
	}
	return false
}

// DecodeBytes expands ids to raw bytes without UTF-8 validation.
func (t *Tokenizer) DecodeBytes(ids []int) ([]byte, error) {
	n := 0
	for _, id := range ids {
		if id < 0 || id >= len(t.vocab) {
			return nil, decodeError("unknown symbol %d", id)
		}
		n += len(t.vocab[id])
	}
	out := make([]byte, 0, n)
	for _, id := range ids {
		out = append(out, t.vocab[id]...)
	}
	return out, nil
}

// Decode converts ids back to text. An unknown id or an expansion that is
// not valid UTF-8 yields a KindDecode error and no text.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	b, err := t.DecodeBytes(ids)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", decodeError("decoded bytes are not valid UTF-8")
	}
	return string(b), nil
}

// TokenBytes returns the raw bytes of a single id.
func (t *Tokenizer) TokenBytes(id int) ([]byte, error) {
	if id < 0 || id >= len(t.vocab) {
		return nil, decodeError("unknown symbol %d", id)
	}
	out := make([]byte, len(t.vocab[id]))
	copy(out, t.vocab[id])
	return out, nil
}

// Span locates one encoded token inside the source text.
// Start and End are byte offsets into the (pre-tokenizer normalized) text.
type Span struct {
	ID    int
	Start int
	End   int
	Bytes []byte
}

// Text returns the span's bytes as a string. A span that ends inside a
// multi-byte character is not valid UTF-8 on its own.
func (s Span) Text() string {
	return string(s.Bytes)
}

// ValidUTF8 reports whether the span decodes on its own.
func (s Span) ValidUTF8() bool {
	return utf8.Valid(s.Bytes)
}

// Spans encodes text and reports where each token came from.
func (t *Tokenizer) Spans(text string) ([]Span, error) {
	chunks, err := t.EncodeChunks(text)
	if err != nil {
		return nil, err
	}
	spans := make([]Span, 0, totalSymbols(chunks))
	pos := 0
	for _, c := range chunks {
		for _, id := range c {
			b := t.vocab[id]
			spans = append(spans, Span{ID: id, Start: pos, End: pos + len(b), Bytes: b})
			pos += len(b)
		}
	}
	return spans, nil
}

// EncodeStats summarizes an encoding for display.
type EncodeStats struct {
	TotalTokens  int     `json:"total_tokens"`
	UniqueTokens int     `json:"unique_tokens"`
	Characters   int     `json:"characters"`
	Bytes        int     `json:"bytes"`
	Compression  float64 `json:"compression_ratio"` // bytes per token
}

// Summarize computes display statistics for text encoded as ids.
func Summarize(text string, ids []int) EncodeStats {
	unique := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	s := EncodeStats{
		TotalTokens:  len(ids),
		UniqueTokens: len(unique),
		Characters:   utf8.RuneCountInString(text),
		Bytes:        len(text),
	}
	if len(ids) > 0 {
		s.Compression = float64(s.Bytes) / float64(len(ids))
	}
	return s
}
