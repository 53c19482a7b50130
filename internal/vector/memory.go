// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dgruhin-hrizn/aperture/internal/models"
)

// MemoryStore is an in-memory brute-force implementation of Store.
//
// Personal media libraries run to tens of thousands of items at most, so a
// linear scan with pre-normalized vectors answers queries in well under a
// millisecond. Entries are loaded once from the relational store and
// refreshed by Reload after a library sync.
type MemoryStore struct {
	mu sync.RWMutex

	// entries hold unit-normalized vectors so cosine reduces to a dot
	// product at query time.
	entries map[string]Entry

	logger zerolog.Logger
}

// NewMemoryStore creates an empty in-memory vector store.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewMemoryStore(logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		logger:  logger.With().Str("component", "vector_store").Logger(),
	}
}

// Load replaces the store contents from a Loader.
func (s *MemoryStore) Load(ctx context.Context, loader Loader) error {
	rows, err := loader.LoadVectors(ctx)
	if err != nil {
		return fmt.Errorf("load vectors: %w", err)
	}

	entries := make(map[string]Entry, len(rows))
	skipped := 0
	for _, row := range rows {
		unit := Normalize(row.Vector)
		if unit == nil {
			skipped++
			continue
		}
		entries[row.ItemID] = Entry{
			ItemID:        row.ItemID,
			Vector:        unit,
			ContentRating: row.ContentRating,
		}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.logger.Info().
		Int("vectors", len(entries)).
		Int("skipped_zero_norm", skipped).
		Msg("vector store loaded")
	return nil
}

// Upsert stores or replaces a single embedding. Zero-norm vectors are
// rejected.
func (s *MemoryStore) Upsert(itemID string, vec []float64, contentRating string) error {
	unit := Normalize(vec)
	if unit == nil {
		return fmt.Errorf("item %s: zero-norm vector", itemID)
	}

	s.mu.Lock()
	s.entries[itemID] = Entry{ItemID: itemID, Vector: unit, ContentRating: contentRating}
	s.mu.Unlock()
	return nil
}

// Remove deletes an item's embedding if present.
func (s *MemoryStore) Remove(itemID string) {
	s.mu.Lock()
	delete(s.entries, itemID)
	s.mu.Unlock()
}

// Len returns the number of stored embeddings.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// GetVector returns the unit-normalized embedding for an item.
func (s *MemoryStore) GetVector(_ context.Context, itemID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[itemID]
	if !ok {
		return nil, false, nil
	}

	out := make([]float64, len(e.Vector))
	copy(out, e.Vector)
	return out, true, nil
}

// NearestNeighbors scans all entries and returns the top-limit matches by
// cosine similarity, honoring the exclusion set and content-rating cap.
// Results are ordered by descending similarity with item id as the
// deterministic tiebreaker.
func (s *MemoryStore) NearestNeighbors(ctx context.Context, vec []float64, filter Filter, limit int) ([]Neighbor, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := Normalize(vec)
	if query == nil {
		return nil, fmt.Errorf("zero-norm query vector")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Neighbor, 0, len(s.entries))
	for id, e := range s.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, excluded := filter.Exclude[id]; excluded {
			continue
		}
		if models.RatingExceeds(e.ContentRating, filter.MaxContentRating) {
			continue
		}
		if len(e.Vector) != len(query) {
			continue
		}

		var dot float64
		for i := range query {
			dot += query[i] * e.Vector[i]
		}
		matches = append(matches, Neighbor{ItemID: id, Similarity: dot})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ItemID < matches[j].ItemID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
