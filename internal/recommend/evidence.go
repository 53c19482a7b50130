// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package recommend

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dgruhin-hrizn/aperture/internal/models"
	"github.com/dgruhin-hrizn/aperture/internal/vector"
)

// EvidenceBuilder links each selected recommendation to the watched items
// that most resemble it, cited as the "because you watched" rationale.
type EvidenceBuilder struct {
	vectors vector.Store
	logger  zerolog.Logger
}

// NewEvidenceBuilder creates an EvidenceBuilder.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEvidenceBuilder(vectors vector.Store, logger zerolog.Logger) *EvidenceBuilder {
	return &EvidenceBuilder{
		vectors: vectors,
		logger:  logger.With().Str("component", "evidence").Logger(),
	}
}

// Build computes, for every selected candidate, the top-limit watched
// items by embedding similarity. Watched items without embeddings are
// skipped; a selected item without an embedding simply yields no
// evidence. Failures are per-item, never fatal.
func (b *EvidenceBuilder) Build(ctx context.Context, runID string, selected []RankedCandidate, history []models.WatchHistoryEntry, limit int) []models.Evidence {
	if limit <= 0 || len(selected) == 0 || len(history) == 0 {
		return nil
	}

	// Fetch watched embeddings once; they are shared across selections.
	type watchedVec struct {
		itemID string
		vec    []float64
	}
	watched := make([]watchedVec, 0, len(history))
	for i := range history {
		entry := &history[i]
		vec, ok, err := b.vectors.GetVector(ctx, entry.ItemID)
		if err != nil {
			b.logger.Warn().Err(err).Str("item_id", entry.ItemID).Msg("evidence vector lookup failed")
			continue
		}
		if ok {
			watched = append(watched, watchedVec{itemID: entry.ItemID, vec: vec})
		}
	}
	if len(watched) == 0 {
		return nil
	}

	var out []models.Evidence
	for i := range selected {
		sel := &selected[i]
		if err := ctx.Err(); err != nil {
			return out
		}

		selVec, ok, err := b.vectors.GetVector(ctx, sel.ItemID)
		if err != nil {
			b.logger.Warn().Err(err).Str("item_id", sel.ItemID).Msg("evidence vector lookup failed")
			continue
		}
		if !ok {
			continue
		}

		type match struct {
			itemID     string
			similarity float64
		}
		matches := make([]match, 0, len(watched))
		for _, w := range watched {
			matches = append(matches, match{itemID: w.itemID, similarity: vector.Cosine(selVec, w.vec)})
		}
		sort.Slice(matches, func(i, j int) bool {
			if matches[i].similarity != matches[j].similarity {
				return matches[i].similarity > matches[j].similarity
			}
			return matches[i].itemID < matches[j].itemID
		})

		n := limit
		if n > len(matches) {
			n = len(matches)
		}
		for rank := 0; rank < n; rank++ {
			out = append(out, models.Evidence{
				RunID:          runID,
				ItemID:         sel.ItemID,
				EvidenceItemID: matches[rank].itemID,
				Similarity:     matches[rank].similarity,
				Rank:           rank + 1,
			})
		}
	}
	return out
}
