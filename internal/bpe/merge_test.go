package bpe

import (
	"reflect"
	"testing"
)

func TestMerge(t *testing.T) {
	testCases := []struct {
		name string
		ids  []int
		pair Pair
		want []int
	}{
		{"empty", []int{}, Pair{1, 2}, []int{}},
		{"single", []int{1}, Pair{1, 2}, []int{1}},
		{"no match", []int{1, 3, 2}, Pair{1, 2}, []int{1, 3, 2}},
		{"all", []int{1, 2, 1, 2}, Pair{1, 2}, []int{300, 300}},
		{"middle", []int{5, 1, 2, 6}, Pair{1, 2}, []int{5, 300, 6}},
		{"trailing first half", []int{1, 2, 1}, Pair{1, 2}, []int{300, 1}},
		{"overlap run of three", []int{7, 7, 7}, Pair{7, 7}, []int{300, 7}},
		{"overlap run of four", []int{7, 7, 7, 7}, Pair{7, 7}, []int{300, 300}},
		{"overlap run of five", []int{7, 7, 7, 7, 7}, Pair{7, 7}, []int{300, 300, 7}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Merge(tc.ids, tc.pair, 300)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Merge(%v, %v): got %v, want %v", tc.ids, tc.pair, got, tc.want)
			}
		})
	}
}

func TestMergeDoesNotModifyInput(t *testing.T) {
	ids := []int{1, 2, 3, 1, 2}
	Merge(ids, Pair{1, 2}, 256)
	if !reflect.DeepEqual(ids, []int{1, 2, 3, 1, 2}) {
		t.Errorf("input modified: %v", ids)
	}
}

func TestMergeOutputNotRematched(t *testing.T) {
	// (256,2) must not match against the 256 just produced from (1,2).
	got := Merge([]int{1, 2, 2}, Pair{1, 2}, 256)
	if !reflect.DeepEqual(got, []int{256, 2}) {
		t.Errorf("got %v, want [256 2]", got)
	}
	got = Merge(got, Pair{256, 2}, 257)
	if !reflect.DeepEqual(got, []int{257}) {
		t.Errorf("second merge: got %v, want [257]", got)
	}
}
