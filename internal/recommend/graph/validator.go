// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dgruhin-hrizn/aperture/internal/llm"
	"github.com/dgruhin-hrizn/aperture/internal/metrics"
	"github.com/dgruhin-hrizn/aperture/internal/models"
)

// Validation cache sources.
const (
	sourceOracle = "oracle"
)

// sequelPatterns match title decorations that commonly produce false
// vector matches between unrelated franchises ("X Returns" vs "Y
// Returns"). Each pattern must strip to the core title.
var sequelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(.*?)\s+(?:returns|reloaded|resurrection|forever)$`),
	regexp.MustCompile(`(?i)^(.*?)\s+(?:ii|iii|iv|v|vi|vii|viii|ix|x)$`),
	regexp.MustCompile(`(?i)^(.*?)\s+\d+$`),
	regexp.MustCompile(`(?i)^(.*?):?\s+part\s+(?:\d+|one|two|three|ii|iii)$`),
	regexp.MustCompile(`(?i)^(?:revenge|rise|return|son|bride|curse)\s+of\s+(?:the\s+)?(.*)$`),
}

// collectionAliasGroups lists collection names that belong to one
// franchise even though their names differ. Comparison is lowercased.
var collectionAliasGroups = [][]string{
	{"marvel cinematic universe", "avengers collection", "iron man collection", "captain america collection", "thor collection"},
	{"dc extended universe", "justice league collection", "batman collection", "superman collection"},
	{"star wars collection", "star wars: skywalker saga"},
	{"middle earth collection", "the lord of the rings collection", "the hobbit collection"},
	{"wizarding world", "harry potter collection", "fantastic beasts collection"},
	{"alien collection", "predator collection", "alien vs. predator collection"},
}

// Validator decides whether two items should be graph-connected. Filters
// run in a fixed order and short-circuit on the first rejection; only
// genuinely ambiguous cross-collection pairs reach the cache and, on a
// miss, the oracle.
type Validator struct {
	cache  CacheStore
	oracle llm.Oracle
	logger zerolog.Logger
}

// NewValidator creates a Validator. A nil oracle rejects every pair that
// would need oracle judgment.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewValidator(cacheStore CacheStore, oracle llm.Oracle, logger zerolog.Logger) *Validator {
	return &Validator{
		cache:  cacheStore,
		oracle: oracle,
		logger: logger.With().Str("component", "validator").Logger(),
	}
}

// Validate reports whether the connection is valid plus a short reason.
// Oracle failures reject the pair; they never propagate as errors.
func (v *Validator) Validate(ctx context.Context, source, target *models.MediaItem) (bool, string) {
	if rejected, reason := sequelPatternConflict(source.Title, target.Title); rejected {
		return false, reason
	}

	if !shareGenre(source.Genres, target.Genres) {
		return false, "no shared genres"
	}

	// No collection conflict: both in the same or no collection, or the
	// collections are recognizably one franchise.
	if source.CollectionName == "" || target.CollectionName == "" ||
		collectionsRelated(source.CollectionName, target.CollectionName) {
		return true, "shared genres"
	}

	// Ambiguous cross-collection pair: cache first, oracle on a miss.
	return v.judgeCrossCollection(ctx, source, target)
}

func (v *Validator) judgeCrossCollection(ctx context.Context, source, target *models.MediaItem) (bool, string) {
	if entry, ok, err := v.cache.GetValidation(ctx, source.ID, target.ID); err != nil {
		v.logger.Warn().Err(err).Msg("validation cache lookup failed")
	} else if ok {
		metrics.ValidationCacheHits.Inc()
		return entry.Related, "cached verdict"
	}
	metrics.ValidationCacheMisses.Inc()

	if v.oracle == nil {
		return false, "cross-collection pair with no oracle available"
	}

	prompt := validationPrompt(source, target)
	answer, err := v.oracle.Classify(ctx, prompt)
	if err != nil {
		metrics.OracleCalls.WithLabelValues("validation", "error").Inc()
		v.logger.Warn().Err(err).
			Str("source", source.ID).
			Str("target", target.ID).
			Msg("oracle validation failed, rejecting connection")
		return false, "oracle unavailable"
	}
	metrics.OracleCalls.WithLabelValues("validation", "ok").Inc()

	related := parseYesNo(answer)
	if err := v.cache.PutValidation(ctx, source.ID, target.ID, related,
		strings.TrimSpace(answer), sourceOracle); err != nil {
		v.logger.Warn().Err(err).Msg("validation cache write failed")
	}

	if related {
		return true, "oracle confirmed relation"
	}
	return false, "oracle rejected relation"
}

func validationPrompt(source, target *models.MediaItem) string {
	var sb strings.Builder
	sb.WriteString("Are these two titles meaningfully related for a viewer exploring similar content? ")
	sb.WriteString("Answer strictly YES or NO followed by one short sentence of justification.\n")
	fmt.Fprintf(&sb, "1. %q (%d), collection %q, genres: %s\n",
		source.Title, source.Year, source.CollectionName, strings.Join(source.Genres, ", "))
	fmt.Fprintf(&sb, "2. %q (%d), collection %q, genres: %s\n",
		target.Title, target.Year, target.CollectionName, strings.Join(target.Genres, ", "))
	return sb.String()
}

// parseYesNo treats anything that does not clearly affirm as "no", so a
// malformed answer can only reject a connection.
func parseYesNo(answer string) bool {
	head := strings.ToUpper(strings.TrimSpace(answer))
	return strings.HasPrefix(head, "YES")
}

// sequelPatternConflict rejects pairs where both titles match the same
// sequel-ish decoration but their stripped cores are unrelated.
func sequelPatternConflict(a, b string) (bool, string) {
	for _, pattern := range sequelPatterns {
		matchA := pattern.FindStringSubmatch(a)
		matchB := pattern.FindStringSubmatch(b)
		if matchA == nil || matchB == nil {
			continue
		}

		coreA := strings.ToLower(strings.TrimSpace(matchA[1]))
		coreB := strings.ToLower(strings.TrimSpace(matchB[1]))
		if coreA == "" || coreB == "" {
			continue
		}
		if !strings.Contains(coreA, coreB) && !strings.Contains(coreB, coreA) {
			return true, "matching sequel pattern with unrelated titles"
		}
	}
	return false, ""
}

// shareGenre reports a case-insensitive genre intersection.
func shareGenre(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, g := range a {
		set[strings.ToLower(strings.TrimSpace(g))] = struct{}{}
	}
	for _, g := range b {
		if _, ok := set[strings.ToLower(strings.TrimSpace(g))]; ok {
			return true
		}
	}
	return false
}

// collectionsRelated reports whether two collection names describe one
// franchise: exact match, substring containment, or a shared alias group.
func collectionsRelated(a, b string) bool {
	la := strings.ToLower(strings.TrimSpace(a))
	lb := strings.ToLower(strings.TrimSpace(b))
	if la == lb {
		return true
	}
	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		return true
	}

	for _, group := range collectionAliasGroups {
		inA, inB := false, false
		for _, name := range group {
			if name == la {
				inA = true
			}
			if name == lb {
				inB = true
			}
		}
		if inA && inB {
			return true
		}
	}
	return false
}
