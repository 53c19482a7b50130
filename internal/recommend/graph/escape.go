// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dgruhin-hrizn/aperture/internal/llm"
	"github.com/dgruhin-hrizn/aperture/internal/metrics"
	"github.com/dgruhin-hrizn/aperture/internal/models"
)

// titleMatchThreshold is the minimum normalized similarity for a fuzzy
// title match against the library.
const titleMatchThreshold = 0.75

// maxEscapeSuggestions bounds how many oracle suggestions are requested
// and matched per escape.
const maxEscapeSuggestions = 5

// escaper breaks franchise bubbles: it asks the oracle for thematically
// similar titles outside the bubble and fuzzy-matches them against the
// library.
type escaper struct {
	library Library
	oracle  llm.Oracle
	logger  zerolog.Logger
}

//nolint:gocritic // logger passed by value is acceptable for zerolog
func newEscaper(library Library, oracle llm.Oracle, logger zerolog.Logger) *escaper {
	return &escaper{
		library: library,
		oracle:  oracle,
		logger:  logger.With().Str("component", "bubble_escape").Logger(),
	}
}

// suggest returns library items matching the oracle's out-of-bubble
// suggestions. All failure modes yield an empty slice, never an error;
// the graph simply stays bubbled.
func (e *escaper) suggest(ctx context.Context, seed *models.MediaItem, seenTitles []string, excludeCollection string) []models.TitleRef {
	if e.oracle == nil {
		return nil
	}

	prompt := escapePrompt(seed, seenTitles, excludeCollection)
	answer, err := e.oracle.Classify(ctx, prompt)
	if err != nil {
		metrics.OracleCalls.WithLabelValues("suggestion", "error").Inc()
		metrics.GraphAIEscapes.WithLabelValues("failed").Inc()
		e.logger.Warn().Err(err).Str("seed", seed.ID).Msg("escape suggestion call failed")
		return nil
	}
	metrics.OracleCalls.WithLabelValues("suggestion", "ok").Inc()

	suggestions := parseSuggestions(answer)
	if len(suggestions) == 0 {
		metrics.GraphAIEscapes.WithLabelValues("no_suggestions").Inc()
		return nil
	}

	titles, err := e.library.ListTitles(ctx)
	if err != nil {
		metrics.GraphAIEscapes.WithLabelValues("failed").Inc()
		e.logger.Warn().Err(err).Msg("library title listing failed")
		return nil
	}

	var matches []models.TitleRef
	for _, suggestion := range suggestions {
		ref, ok := bestTitleMatch(suggestion, titles)
		if !ok {
			continue
		}
		// The point is escaping the bubble; matches back into the
		// dominant collection defeat it.
		if excludeCollection != "" && ref.CollectionName == excludeCollection {
			continue
		}
		matches = append(matches, ref)
	}

	if len(matches) > 0 {
		metrics.GraphAIEscapes.WithLabelValues("matched").Inc()
	} else {
		metrics.GraphAIEscapes.WithLabelValues("no_suggestions").Inc()
	}
	return matches
}

func escapePrompt(seed *models.MediaItem, seenTitles []string, excludeCollection string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Suggest up to %d movies or series thematically similar to %q", maxEscapeSuggestions, seed.Title)
	if len(seed.Genres) > 0 {
		fmt.Fprintf(&sb, " (genres: %s)", strings.Join(seed.Genres, ", "))
	}
	sb.WriteString(" but from entirely different franchises.")
	if excludeCollection != "" {
		fmt.Fprintf(&sb, " Nothing from the %q collection.", excludeCollection)
	}
	if len(seenTitles) > 0 {
		fmt.Fprintf(&sb, " Exclude these titles: %s.", strings.Join(seenTitles, "; "))
	}
	sb.WriteString(" Answer with one title per line, no numbering or commentary.")
	return sb.String()
}

// parseSuggestions extracts title lines from a free-text oracle answer,
// tolerating bullets and numbering it was told not to use.
func parseSuggestions(answer string) []string {
	var out []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. )")
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxEscapeSuggestions {
			break
		}
	}
	return out
}

// bestTitleMatch finds the library title most similar to the suggestion,
// requiring at least titleMatchThreshold.
func bestTitleMatch(suggestion string, titles []models.TitleRef) (models.TitleRef, bool) {
	var (
		best      models.TitleRef
		bestScore float64
	)
	for _, ref := range titles {
		score := titleSimilarity(suggestion, ref.Title)
		if score > bestScore {
			best = ref
			bestScore = score
		}
	}
	return best, bestScore >= titleMatchThreshold
}

// titleSimilarity is a normalized edit-distance similarity over cleaned
// titles, with containment treated as a strong match.
func titleSimilarity(a, b string) float64 {
	ca, cb := cleanTitle(a), cleanTitle(b)
	if ca == "" || cb == "" {
		return 0
	}
	if ca == cb {
		return 1
	}
	if strings.Contains(ca, cb) || strings.Contains(cb, ca) {
		return 0.9
	}

	dist := levenshtein(ca, cb)
	longest := len(ca)
	if len(cb) > longest {
		longest = len(cb)
	}
	return 1 - float64(dist)/float64(longest)
}

func cleanTitle(s string) string {
	s = strings.ToLower(s)
	var sb strings.Builder
	lastSpace := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = prev[j] + 1
			if curr[j-1]+1 < curr[j] {
				curr[j] = curr[j-1] + 1
			}
			if prev[j-1]+cost < curr[j] {
				curr[j] = prev[j-1] + cost
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
