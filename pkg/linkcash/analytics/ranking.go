package analytics

import "sort"

// TopN is the size of every ranking view.
const TopN = 5

// Ranked is one entry of a ranking.
type Ranked struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Rank sorts counts by count descending, then key ascending, and keeps
// the first n entries. n <= 0 keeps everything.
func Rank(counts map[string]int64, n int) []Ranked {
	out := make([]Ranked, 0, len(counts))
	for k, v := range counts {
		out = append(out, Ranked{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
