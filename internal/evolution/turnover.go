// Package evolution measures how a universe's composition changes over time.
package evolution

import (
	"math"
	"sort"
)

// Turnover is the fraction of positions that changed between two symbol sets.
// Duplicates are ignored. A full one-for-one swap yields 1.0; both empty yields 0.
func Turnover(before, after []string) float64 {
	b := toSet(before)
	a := toSet(after)

	removed := 0
	for s := range b {
		if _, ok := a[s]; !ok {
			removed++
		}
	}
	added := 0
	for s := range a {
		if _, ok := b[s]; !ok {
			added++
		}
	}

	maxSize := len(b)
	if len(a) > maxSize {
		maxSize = len(a)
	}
	if maxSize == 0 {
		return 0
	}

	changed := removed
	if added > changed {
		changed = added
	}
	return clamp01(float64(changed) / float64(maxSize))
}

// SymbolDiff returns sorted added and removed symbols going from before to after
func SymbolDiff(before, after []string) (added, removed []string) {
	b := toSet(before)
	a := toSet(after)

	added = make([]string, 0)
	for s := range a {
		if _, ok := b[s]; !ok {
			added = append(added, s)
		}
	}
	removed = make([]string, 0)
	for s := range b {
		if _, ok := a[s]; !ok {
			removed = append(removed, s)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// WeightTurnover is one-way weight turnover: half the sum of absolute weight changes
func WeightTurnover(oldWeights, newWeights map[string]float64) float64 {
	total := 0.0
	for s, w := range oldWeights {
		total += math.Abs(newWeights[s] - w)
	}
	for s, w := range newWeights {
		if _, ok := oldWeights[s]; !ok {
			total += math.Abs(w)
		}
	}
	return total / 2
}

func toSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
