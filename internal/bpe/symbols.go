// Package bpe implements byte-pair encoding over UTF-8 text: pair statistics,
// the merge operator, the training loop, the merge table and its on-disk
// codec, and the encode/decode pipelines built on a learned table.
//
// Symbols are plain ints. Ids 0..255 are raw byte values; ids from 256 up are
// learned merges, assigned in the order they were learned.
package bpe

import "strconv"

// ByteSymbols is the size of the base alphabet. The first merge gets this id.
const ByteSymbols = 256

// Pair is an ordered pair of adjacent symbols: Left immediately followed by Right.
type Pair struct {
	Left  int
	Right int
}

func (p Pair) String() string {
	return strconv.Itoa(p.Left) + "," + strconv.Itoa(p.Right)
}

// BytesToSymbols expands raw bytes into one base symbol per byte.
func BytesToSymbols(b []byte) []int {
	ids := make([]int, len(b))
	for i, c := range b {
		ids[i] = int(c)
	}
	return ids
}

// Splitter segments text into chunks. Merges never cross a chunk boundary.
type Splitter interface {
	Split(text string) ([]string, error)
}

// WholeText is a Splitter that keeps the entire text as one chunk.
type WholeText struct{}

func (WholeText) Split(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	return []string{text}, nil
}

// chunkSymbols splits text and converts every chunk to base symbols.
func chunkSymbols(s Splitter, text string) ([][]int, error) {
	if s == nil {
		s = WholeText{}
	}
	chunks, err := s.Split(text)
	if err != nil {
		return nil, err
	}
	seqs := make([][]int, 0, len(chunks))
	for _, c := range chunks {
		if c == "" {
			continue
		}
		seqs = append(seqs, BytesToSymbols([]byte(c)))
	}
	return seqs, nil
}

func totalSymbols(seqs [][]int) int {
	n := 0
	for _, s := range seqs {
		n += len(s)
	}
	return n
}
