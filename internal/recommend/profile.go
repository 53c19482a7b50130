// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package recommend

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/dgruhin-hrizn/aperture/internal/models"
	"github.com/dgruhin-hrizn/aperture/internal/vector"
)

// Per-item weight tuning for the taste profile. An unrated, unloved,
// once-watched item carries baseWeight; signals only ever raise it.
const (
	baseWeight         = 1.0
	favoriteMultiplier = 1.5
	playCountFactor    = 0.25
)

// ProfileBuilder turns weighted watch history into a single unit-length
// taste vector.
type ProfileBuilder struct {
	vectors vector.Store
	logger  zerolog.Logger
}

// NewProfileBuilder creates a ProfileBuilder backed by a vector store.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewProfileBuilder(vectors vector.Store, logger zerolog.Logger) *ProfileBuilder {
	return &ProfileBuilder{
		vectors: vectors,
		logger:  logger.With().Str("component", "profile_builder").Logger(),
	}
}

// Build computes the weighted average of the embeddings of watched items
// and L2-normalizes it. Items without a stored embedding are skipped and
// logged; when none remain, ErrNoProfile is returned. The result is
// deterministic for identical inputs.
func (b *ProfileBuilder) Build(ctx context.Context, history []models.WatchHistoryEntry) (*TasteProfile, error) {
	var (
		sum         []float64
		totalWeight float64
		sources     int
		missing     int
	)

	for i := range history {
		entry := &history[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vec, ok, err := b.vectors.GetVector(ctx, entry.ItemID)
		if err != nil {
			return nil, fmt.Errorf("get vector for %s: %w", entry.ItemID, err)
		}
		if !ok {
			missing++
			continue
		}

		weight := entryWeight(entry)
		if weight <= 0 {
			continue
		}

		if sum == nil {
			sum = make([]float64, len(vec))
		}
		if len(vec) != len(sum) {
			b.logger.Warn().
				Str("item_id", entry.ItemID).
				Int("dim", len(vec)).
				Int("want_dim", len(sum)).
				Msg("embedding dimension mismatch, skipping item")
			continue
		}

		for d := range vec {
			sum[d] += vec[d] * weight
		}
		totalWeight += weight
		sources++
	}

	if missing > 0 {
		b.logger.Debug().Int("missing_embeddings", missing).Msg("watched items without embeddings skipped")
	}
	if sources == 0 || totalWeight == 0 {
		return nil, ErrNoProfile
	}

	for d := range sum {
		sum[d] /= totalWeight
	}
	unit := vector.Normalize(sum)
	if unit == nil {
		// Opposing vectors can cancel to a zero mean.
		return nil, ErrNoProfile
	}

	return &TasteProfile{Vector: unit, SourceCount: sources}, nil
}

// entryWeight combines explicit and implicit signals into a per-item
// weight. Explicit ratings map onto a multiplier that never drops below
// the unrated default; favorites multiply; repeat plays add
// logarithmically.
func entryWeight(entry *models.WatchHistoryEntry) float64 {
	weight := baseWeight

	if entry.UserRating != nil {
		weight *= math.Max(*entry.UserRating/5.0, 1.0)
	}
	if entry.IsFavorite {
		weight *= favoriteMultiplier
	}
	if entry.PlayCount > 1 {
		weight += math.Log2(float64(entry.PlayCount)) * playCountFactor
	}

	return weight
}
