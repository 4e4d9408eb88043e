package memory

import "sort"

// DefaultRRFK is the standard reciprocal rank fusion constant.
const DefaultRRFK = 60

// RRFMerge fuses two ranked id lists. Each id scores 1/(k+rank+1) per list
// it appears in (zero-based rank, first occurrence only). Ties go to the
// lower best rank, then to the lexicographically smaller id.
func RRFMerge(listA, listB []string, limit, k int) []string {
	if limit <= 0 {
		return nil
	}
	if k <= 0 {
		k = DefaultRRFK
	}

	type fused struct {
		id       string
		score    float64
		bestRank int
	}
	byID := make(map[string]*fused)
	var order []*fused

	add := func(list []string) {
		seen := make(map[string]struct{}, len(list))
		for rank, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			f, ok := byID[id]
			if !ok {
				f = &fused{id: id, bestRank: rank}
				byID[id] = f
				order = append(order, f)
			}
			f.score += 1 / float64(k+rank+1)
			if rank < f.bestRank {
				f.bestRank = rank
			}
		}
	}
	add(listA)
	add(listB)

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.bestRank != b.bestRank {
			return a.bestRank < b.bestRank
		}
		return a.id < b.id
	})

	if limit > len(order) {
		limit = len(order)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = order[i].id
	}
	return out
}
