// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package recommend

import (
	"strings"

	"github.com/dgruhin-hrizn/aperture/internal/models"
)

// neutralRatingScore is used for unrated items so missing metadata never
// puts a title at the floor of the ranking.
const neutralRatingScore = 0.5

// Scorer computes the four component scores and their weighted blend.
// Scoring is a pure function of (candidate, genre profile, weights); the
// diversity component stays zero until selection.
type Scorer struct {
	weights Weights
}

// NewScorer creates a Scorer with the given blend weights.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// GenreProfile is the share of each (lowercased) genre in the user's
// watched items, used by the novelty score.
type GenreProfile map[string]float64

// BuildGenreProfile computes genre shares over the watched items that
// have metadata. Shares sum to 1 when any genres exist.
func BuildGenreProfile(items map[string]*models.MediaItem) GenreProfile {
	counts := make(map[string]int)
	total := 0
	for _, item := range items {
		if item == nil {
			continue
		}
		for _, g := range item.Genres {
			g = strings.ToLower(strings.TrimSpace(g))
			if g == "" {
				continue
			}
			counts[g]++
			total++
		}
	}

	profile := make(GenreProfile, len(counts))
	if total == 0 {
		return profile
	}
	for g, n := range counts {
		profile[g] = float64(n) / float64(total)
	}
	return profile
}

// Score computes component scores for every candidate. The input order is
// preserved.
func (s *Scorer) Score(candidates []Candidate, genres GenreProfile) []ScoredCandidate {
	scored := make([]ScoredCandidate, len(candidates))
	for i := range candidates {
		c := candidates[i]
		sc := ScoredCandidate{
			Candidate:   c,
			Similarity:  similarityScore(c.RawSimilarity),
			Novelty:     noveltyScore(c.Genres, genres),
			RatingScore: ratingScore(c.CommunityRating),
			Diversity:   0,
		}
		sc.FinalScore = s.Blend(&sc)
		scored[i] = sc
	}
	return scored
}

// Blend computes the weighted final score from the component scores.
func (s *Scorer) Blend(c *ScoredCandidate) float64 {
	return s.weights.Similarity*c.Similarity +
		s.weights.Novelty*c.Novelty +
		s.weights.Rating*c.RatingScore +
		s.weights.Diversity*c.Diversity
}

// Weights returns the blend weights in use.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// similarityScore maps raw cosine similarity from [-1, 1] onto [0, 1].
func similarityScore(raw float64) float64 {
	score := (raw + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// noveltyScore rewards candidates whose genres are underrepresented in
// the user's history. The overlap is the summed share of the candidate's
// genres in the watched-genre distribution; novelty is its complement.
func noveltyScore(candidateGenres []string, profile GenreProfile) float64 {
	if len(candidateGenres) == 0 || len(profile) == 0 {
		return 1
	}

	var overlap float64
	seen := make(map[string]struct{}, len(candidateGenres))
	for _, g := range candidateGenres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		overlap += profile[g]
	}
	if overlap > 1 {
		overlap = 1
	}
	return 1 - overlap
}

// ratingScore maps a 0-10 community rating onto [0, 1]; unrated items
// score neutral.
func ratingScore(communityRating float64) float64 {
	if communityRating <= 0 {
		return neutralRatingScore
	}
	score := communityRating / 10
	if score > 1 {
		return 1
	}
	return score
}
