package bpe

// PairStats counts adjacent pairs across symbol sequences.
//
// It remembers the order in which each pair was first seen, which is what
// Best uses to break ties. Adding sequences in chunk order therefore ranks
// equal counts by earliest occurrence in the corpus.
type PairStats struct {
	counts map[Pair]int
	order  []Pair
}

// NewPairStats returns an empty statistics mapping.
func NewPairStats() *PairStats {
	return &PairStats{counts: make(map[Pair]int)}
}

// CountPairs builds fresh statistics over seqs, in the given order.
func CountPairs(seqs ...[]int) *PairStats {
	s := NewPairStats()
	for _, ids := range seqs {
		s.Add(ids)
	}
	return s
}

// Add accumulates the adjacent pairs of one sequence. The input is not modified.
func (s *PairStats) Add(ids []int) {
	for i := 0; i+1 < len(ids); i++ {
		s.inc(Pair{ids[i], ids[i+1]}, 1)
	}
}

// Merge folds other into s. Pairs new to s are appended in other's
// first-seen order, so folding chunk-local stats in chunk order gives the
// same result as counting the chunks sequentially.
func (s *PairStats) Merge(other *PairStats) {
	for _, p := range other.order {
		s.inc(p, other.counts[p])
	}
}

func (s *PairStats) inc(p Pair, n int) {
	if _, ok := s.counts[p]; !ok {
		s.order = append(s.order, p)
	}
	s.counts[p] += n
}

// Count returns the occurrences of p.
func (s *PairStats) Count(p Pair) int {
	return s.counts[p]
}

// Len returns the number of distinct pairs.
func (s *PairStats) Len() int {
	return len(s.order)
}

// Pairs returns the distinct pairs in first-seen order.
func (s *PairStats) Pairs() []Pair {
	out := make([]Pair, len(s.order))
	copy(out, s.order)
	return out
}

// Best returns the most frequent pair. Among equal counts the pair seen
// first wins. ok is false when there are no pairs.
func (s *PairStats) Best() (pair Pair, count int, ok bool) {
	for _, p := range s.order {
		if c := s.counts[p]; c > count {
			pair, count, ok = p, c, true
		}
	}
	return pair, count, ok
}
