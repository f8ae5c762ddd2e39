package bpe

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func ababTable() *MergeTable {
	table := NewMergeTable()
	table.Add(Pair{97, 98})
	table.Add(Pair{256, 256})
	return table
}

func TestEncodeAppliesRulesInOrder(t *testing.T) {
	first := NewMergeTable()
	first.Add(Pair{97, 98})

	testCases := []struct {
		name  string
		table *MergeTable
		text  string
		want  []int
	}{
		{"no merges", NewMergeTable(), "ab", []int{97, 98}},
		{"single merge", first, "ababab", []int{256, 256, 256}},
		{"merge of merges", ababTable(), "ababab", []int{257, 256}},
		{"unseen bytes pass through", ababTable(), "xyz", []int{120, 121, 122}},
		{"empty", ababTable(), "", []int{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewTokenizer(tc.table, nil).Encode(tc.text)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Encode(%q): got %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestEncodeMatchesTraining(t *testing.T) {
	text := "she sells sea shells by the sea shore"
	res, err := train(t, text, TrainOptions{VocabSize: 280})
	if err != nil {
		t.Fatal(err)
	}
	ids, err := NewTokenizer(res.Table, nil).Encode(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != res.FinalTokens {
		t.Errorf("encoded %d tokens, training ended with %d", len(ids), res.FinalTokens)
	}
}

func TestRoundtrip(t *testing.T) {
	corpus := "नमस्ते दुनिया। नमस्ते भारत। hello world, hello there"
	res, err := train(t, corpus, TrainOptions{VocabSize: 300})
	if err != nil {
		t.Fatal(err)
	}
	tok := NewTokenizer(res.Table, nil)

	for _, text := range []string{
		corpus,
		"नमस्ते",
		"hello",
		"unrelated text with ümlauts and emoji 🙂",
		"   leading and trailing   ",
		"",
	} {
		ids, err := tok.Encode(text)
		if err != nil {
			t.Fatalf("Encode(%q): %v", text, err)
		}
		got, err := tok.Decode(ids)
		if err != nil {
			t.Fatalf("Decode(%v): %v", ids, err)
		}
		if got != text {
			t.Errorf("roundtrip: got %q, want %q", got, text)
		}
	}
}

func TestEncodeNeverCrossesChunks(t *testing.T) {
	split := splitFunc(func(text string) ([]string, error) {
		return strings.SplitAfter(text, " "), nil
	})
	table := NewMergeTable()
	table.Add(Pair{' ', 'a'})

	got, err := NewTokenizer(table, split).Encode("b a")
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{'b', ' ', 'a'}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	tok := NewTokenizer(ababTable(), nil)

	if _, err := tok.Decode([]int{97, 258}); !errors.Is(err, ErrDecode) {
		t.Errorf("unknown id: got %v, want decode error", err)
	}
	if _, err := tok.Decode([]int{-1}); !errors.Is(err, ErrDecode) {
		t.Errorf("negative id: got %v, want decode error", err)
	}

	// 0xE0 starts a three byte sequence.
	if _, err := tok.Decode([]int{0xE0}); !errors.Is(err, ErrDecode) {
		t.Errorf("partial character: got %v, want decode error", err)
	}
	b, err := tok.DecodeBytes([]int{0xE0})
	if err != nil || !reflect.DeepEqual(b, []byte{0xE0}) {
		t.Errorf("DecodeBytes: got %v, %v", b, err)
	}
}

func TestDecodeWithMismatchedTable(t *testing.T) {
	ids, err := NewTokenizer(ababTable(), nil).Encode("ababab")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenizer(NewMergeTable(), nil).Decode(ids); !errors.Is(err, ErrDecode) {
		t.Errorf("got %v, want decode error", err)
	}
}

func TestTokenizerOwnsTable(t *testing.T) {
	table := ababTable()
	tok := NewTokenizer(table, nil)
	table.Add(Pair{257, 256})

	if tok.VocabSize() != 258 {
		t.Errorf("VocabSize: got %d, want 258", tok.VocabSize())
	}
	got, _ := tok.Encode("ababab")
	if !reflect.DeepEqual(got, []int{257, 256}) {
		t.Errorf("encoding changed after caller modified the table: %v", got)
	}
}

func TestTokenBytes(t *testing.T) {
	tok := NewTokenizer(ababTable(), nil)
	b, err := tok.TokenBytes(257)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "abab" {
		t.Errorf("TokenBytes(257): got %q", b)
	}
	b[0] = 'z'
	if again, _ := tok.TokenBytes(257); string(again) != "abab" {
		t.Error("TokenBytes must return a copy")
	}
	if _, err := tok.TokenBytes(258); !errors.Is(err, ErrDecode) {
		t.Errorf("unknown id: got %v", err)
	}
}

func TestSpans(t *testing.T) {
	table := NewMergeTable()
	table.Add(Pair{'a', 'b'})
	tok := NewTokenizer(table, nil)

	text := "ab cd"
	spans, err := tok.Spans(text)
	if err != nil {
		t.Fatal(err)
	}
	want := []Span{
		{ID: 256, Start: 0, End: 2, Bytes: []byte("ab")},
		{ID: ' ', Start: 2, End: 3, Bytes: []byte(" ")},
		{ID: 'c', Start: 3, End: 4, Bytes: []byte("c")},
		{ID: 'd', Start: 4, End: 5, Bytes: []byte("d")},
	}
	if !reflect.DeepEqual(spans, want) {
		t.Errorf("got %+v, want %+v", spans, want)
	}
	for _, s := range spans {
		if text[s.Start:s.End] != s.Text() {
			t.Errorf("span %+v does not match source %q", s, text[s.Start:s.End])
		}
	}
}

func TestSpansSplitCharacter(t *testing.T) {
	// No merges, so "é" is two byte tokens, neither valid on its own.
	spans, err := NewTokenizer(nil, nil).Spans("é")
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	for _, s := range spans {
		if s.ValidUTF8() {
			t.Errorf("span %+v should not be valid UTF-8", s)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize("abab", []int{256, 256})
	want := EncodeStats{TotalTokens: 2, UniqueTokens: 1, Characters: 4, Bytes: 4, Compression: 2}
	if s != want {
		t.Errorf("got %+v, want %+v", s, want)
	}

	s = Summarize("é", []int{0xC3, 0xA9})
	if s.Characters != 1 || s.Bytes != 2 || s.Compression != 1 {
		t.Errorf("multi-byte: got %+v", s)
	}

	if s := Summarize("", nil); s.Compression != 0 {
		t.Errorf("empty: got %+v", s)
	}
}

func TestTokenizerConcurrentUse(t *testing.T) {
	tok := NewTokenizer(ababTable(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ids, err := tok.Encode("ababab xyz")
				if err != nil {
					t.Error(err)
					return
				}
				if text, err := tok.Decode(ids); err != nil || text != "ababab xyz" {
					t.Errorf("roundtrip: %q, %v", text, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
