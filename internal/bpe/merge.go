package bpe

// Merge returns a new sequence with every non-overlapping occurrence of pair
// replaced by idx, scanning left to right. After a replacement the scan
// resumes past both consumed symbols, so [a a a] merged on (a,a) is [idx a].
func Merge(ids []int, pair Pair, idx int) []int {
	out := make([]int, 0, len(ids))
	i := 0
	for i < len(ids) {
		if i+1 < len(ids) && ids[i] == pair.Left && ids[i+1] == pair.Right {
			out = append(out, idx)
			i += 2
			continue
		}
		out = append(out, ids[i])
		i++
	}
	return out
}

// mergeAll applies one rule to every chunk.
func mergeAll(seqs [][]int, pair Pair, idx int) {
	for i, ids := range seqs {
		if len(ids) < 2 {
			continue
		}
		seqs[i] = Merge(ids, pair, idx)
	}
}
