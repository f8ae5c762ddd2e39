package bpe

import (
	"errors"
	"testing"
)

func TestMergeTableAssignsDenseIDs(t *testing.T) {
	table := NewMergeTable()
	pairs := []Pair{{97, 98}, {256, 99}, {32, 257}}

	for i, p := range pairs {
		id, err := table.Add(p)
		if err != nil {
			t.Fatalf("Add(%v): %v", p, err)
		}
		if id != ByteSymbols+i {
			t.Errorf("Add(%v): got id %d, want %d", p, id, ByteSymbols+i)
		}
	}

	if table.Len() != 3 || table.VocabSize() != 259 || table.NextID() != 259 {
		t.Errorf("sizes: len=%d vocab=%d next=%d", table.Len(), table.VocabSize(), table.NextID())
	}

	for i, r := range table.Rules() {
		if r.ID != ByteSymbols+i || r.Pair != pairs[i] {
			t.Errorf("rule %d: got %+v", i, r)
		}
		if got, ok := table.Lookup(r.Pair); !ok || got != r.ID {
			t.Errorf("Lookup(%v): got %d, %v", r.Pair, got, ok)
		}
		if got, ok := table.Pair(r.ID); !ok || got != r.Pair {
			t.Errorf("Pair(%d): got %v, %v", r.ID, got, ok)
		}
	}

	if _, ok := table.Pair(97); ok {
		t.Error("byte symbols have no pair")
	}
}

func TestMergeTableRejectsInvalid(t *testing.T) {
	table := NewMergeTable()
	if _, err := table.Add(Pair{1, 2}); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name string
		pair Pair
		id   int
	}{
		{"duplicate pair", Pair{1, 2}, 257},
		{"gap", Pair{3, 4}, 258},
		{"repeat id", Pair{3, 4}, 256},
		{"undefined symbol", Pair{3, 300}, 257},
		{"self reference", Pair{257, 1}, 257},
		{"negative symbol", Pair{-1, 1}, 257},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := table.Insert(tc.pair, tc.id)
			if !errors.Is(err, ErrMalformedTable) {
				t.Errorf("Insert(%v, %d): got %v, want malformed table error", tc.pair, tc.id, err)
			}
		})
	}
	if table.Len() != 1 {
		t.Errorf("rejected inserts changed the table: len=%d", table.Len())
	}
}

func TestMergeTableExpand(t *testing.T) {
	table := NewMergeTable()
	table.Add(Pair{'a', 'b'}) // 256 = "ab"
	table.Add(Pair{256, 256}) // 257 = "abab"
	table.Add(Pair{'c', 257}) // 258 = "cabab"

	testCases := []struct {
		id   int
		want string
	}{
		{'x', "x"},
		{256, "ab"},
		{257, "abab"},
		{258, "cabab"},
	}
	for _, tc := range testCases {
		got, err := table.Expand(tc.id)
		if err != nil {
			t.Fatalf("Expand(%d): %v", tc.id, err)
		}
		if string(got) != tc.want {
			t.Errorf("Expand(%d): got %q, want %q", tc.id, got, tc.want)
		}
	}

	if _, err := table.Expand(259); !errors.Is(err, ErrDecode) {
		t.Errorf("Expand(259): got %v, want decode error", err)
	}
}

func TestMergeTableExpandDeepChain(t *testing.T) {
	table := NewMergeTable()
	prev := int('a')
	for i := 0; i < 50000; i++ {
		id, err := table.Add(Pair{prev, 'a'})
		if err != nil {
			t.Fatal(err)
		}
		prev = id
	}
	got, err := table.Expand(prev)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 50001 {
		t.Errorf("length: got %d, want 50001", len(got))
	}
}

func TestMergeTableCloneIsIndependent(t *testing.T) {
	table := NewMergeTable()
	table.Add(Pair{1, 2})

	clone := table.Clone()
	if !clone.Equal(table) {
		t.Fatal("clone should equal original")
	}

	clone.Add(Pair{3, 4})
	if table.Len() != 1 {
		t.Error("adding to the clone changed the original")
	}
	if clone.Equal(table) {
		t.Error("tables with different merges should not be equal")
	}
}
