// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package recommend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dgruhin-hrizn/aperture/internal/metrics"
	"github.com/dgruhin-hrizn/aperture/internal/vector"
)

// Retriever queries the vector store for candidates near a taste vector
// and hydrates them with item metadata from the relational store.
type Retriever struct {
	vectors vector.Store
	store   Store
	logger  zerolog.Logger
}

// NewRetriever creates a Retriever.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRetriever(vectors vector.Store, store Store, logger zerolog.Logger) *Retriever {
	return &Retriever{
		vectors: vectors,
		store:   store,
		logger:  logger.With().Str("component", "retriever").Logger(),
	}
}

// Retrieve returns up to limit candidates nearest the taste vector,
// excluding the given ids and anything above the content-rating ceiling,
// ordered by descending raw similarity. An empty pool is not an error.
// Items whose metadata row has gone missing are dropped and logged.
func (r *Retriever) Retrieve(ctx context.Context, profile *TasteProfile, exclude map[string]struct{}, maxContentRating string, limit int) ([]Candidate, error) {
	neighbors, err := r.vectors.NearestNeighbors(ctx, profile.Vector, vector.Filter{
		Exclude:          exclude,
		MaxContentRating: maxContentRating,
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ItemID
	}
	items, err := r.store.GetMediaItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate candidates: %w", err)
	}

	candidates := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		item, ok := items[n.ItemID]
		if !ok {
			r.logger.Warn().Str("item_id", n.ItemID).Msg("vector without media item, dropping candidate")
			continue
		}
		candidates = append(candidates, Candidate{
			ItemID:          item.ID,
			Title:           item.Title,
			Year:            item.Year,
			Genres:          item.Genres,
			CollectionName:  item.CollectionName,
			CommunityRating: item.CommunityRating,
			RawSimilarity:   n.Similarity,
		})
	}

	metrics.CandidatesRetrieved.Observe(float64(len(candidates)))
	return candidates, nil
}
