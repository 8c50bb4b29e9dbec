// Package sampling draws option indices in proportion to integer selection weights.
// Callers always supply the *rand.Rand so runs can be reproduced from a seed.
package sampling

import (
	"math/rand"
	"sort"
)

// Choose draws one index with probability weights[i] / sum(weights).
// Indices with a zero (or negative) weight are never chosen. The second return value is
// false when no index carries positive weight.
func Choose(rng *rand.Rand, weights []int) (int, bool) {
	total := 0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return 0, false
	}

	target := rng.Intn(total)
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if target < w {
			return i, true
		}
		target -= w
	}
	// Unreachable while total matches the positive weights.
	return len(weights) - 1, true
}

// ChooseMany draws a subset for a multi-choice question. The number of draws k is uniform in
// 1..len(weights); each draw is made with replacement through Choose and duplicates collapse,
// so the result holds between 1 and k distinct indices. The result is sorted in document order.
func ChooseMany(rng *rand.Rand, weights []int) ([]int, bool) {
	if len(weights) == 0 {
		return nil, false
	}
	if !HasPositive(weights) {
		return nil, false
	}

	k := 1 + rng.Intn(len(weights))
	seen := make(map[int]struct{}, k)
	for draw := 0; draw < k; draw++ {
		idx, _ := Choose(rng, weights)
		seen[idx] = struct{}{}
	}

	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, true
}

// HasPositive reports whether any weight is above zero.
func HasPositive(weights []int) bool {
	for _, w := range weights {
		if w > 0 {
			return true
		}
	}
	return false
}

// NewRand returns a generator seeded with seed.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
