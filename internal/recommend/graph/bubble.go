// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package graph

// BubbleAnalysis is the result of checking a level for franchise
// domination.
type BubbleAnalysis struct {
	// IsBubbled reports whether one collection dominates the non-seed
	// nodes at or above the threshold.
	IsBubbled bool

	// DominantCollection is the most common collection name among
	// non-seed nodes, empty when no node has a collection.
	DominantCollection string

	// DominantFraction is that collection's share of non-seed nodes.
	DominantFraction float64
}

// AnalyzeBubble computes collection domination over the non-seed node
// collections. collections maps node id to its collection name (empty for
// none); the seed must not be included.
func AnalyzeBubble(collections map[string]string, threshold float64) BubbleAnalysis {
	if len(collections) == 0 {
		return BubbleAnalysis{}
	}

	counts := make(map[string]int)
	for _, name := range collections {
		if name == "" {
			continue
		}
		counts[name]++
	}

	var (
		dominant string
		best     int
	)
	for name, n := range counts {
		if n > best || (n == best && name < dominant) {
			dominant = name
			best = n
		}
	}
	if dominant == "" {
		return BubbleAnalysis{}
	}

	fraction := float64(best) / float64(len(collections))
	return BubbleAnalysis{
		IsBubbled:          fraction >= threshold,
		DominantCollection: dominant,
		DominantFraction:   fraction,
	}
}
