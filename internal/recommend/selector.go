// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package recommend

import (
	"strings"
)

// Selector performs greedy diversity-aware selection in the MMR style:
// each iteration recomputes every remaining candidate's incremental
// diversity against the already-selected set, blends it into an adjusted
// score, and takes the single best.
type Selector struct {
	diversityWeight float64
}

// NewSelector creates a Selector with the given diversity weight.
func NewSelector(diversityWeight float64) *Selector {
	return &Selector{diversityWeight: diversityWeight}
}

// Select ranks the entire pool greedily and marks the first k as
// selected. The returned pool carries contiguous ranks 1..len so that
// unselected candidates record the rank they would have received. The
// input slice is not mutated.
func (s *Selector) Select(pool []ScoredCandidate, k int) SelectionResult {
	if k < 0 {
		k = 0
	}

	remaining := make([]ScoredCandidate, len(pool))
	copy(remaining, pool)

	ranked := make([]RankedCandidate, 0, len(pool))
	var selectedGenres [][]string

	for len(remaining) > 0 {
		bestIdx := 0
		var bestAdjusted, bestDiversity float64
		first := true

		for i := range remaining {
			c := &remaining[i]
			div := incrementalDiversity(c.Genres, selectedGenres)
			adjusted := c.FinalScore + s.diversityWeight*div
			if first || adjusted > bestAdjusted ||
				(adjusted == bestAdjusted && c.ItemID < remaining[bestIdx].ItemID) {
				bestIdx = i
				bestAdjusted = adjusted
				bestDiversity = div
				first = false
			}
		}

		chosen := remaining[bestIdx]
		rank := len(ranked) + 1
		selected := rank <= k

		// The diversity component becomes real at selection time; the
		// final score absorbs it through the same blend weight.
		chosen.Diversity = bestDiversity
		chosen.FinalScore = bestAdjusted

		ranked = append(ranked, RankedCandidate{
			ScoredCandidate: chosen,
			Rank:            rank,
			Selected:        selected,
			AdjustedScore:   bestAdjusted,
		})
		if selected {
			selectedGenres = append(selectedGenres, chosen.Genres)
		}

		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	selected := make([]RankedCandidate, 0, min(k, len(ranked)))
	for _, rc := range ranked {
		if rc.Selected {
			selected = append(selected, rc)
		}
	}

	return SelectionResult{Selected: selected, Pool: ranked}
}

// incrementalDiversity is 1 minus the maximum genre overlap (Jaccard)
// with any already-selected item. With nothing selected yet every
// candidate is maximally diverse.
func incrementalDiversity(genres []string, selected [][]string) float64 {
	if len(selected) == 0 {
		return 1
	}

	var maxOverlap float64
	for _, other := range selected {
		if o := genreJaccard(genres, other); o > maxOverlap {
			maxOverlap = o
		}
	}
	return 1 - maxOverlap
}

// genreJaccard is the case-insensitive Jaccard index of two genre lists.
func genreJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, g := range a {
		setA[strings.ToLower(strings.TrimSpace(g))] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, g := range b {
		setB[strings.ToLower(strings.TrimSpace(g))] = struct{}{}
	}

	intersection := 0
	for g := range setA {
		if _, ok := setB[g]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
