// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package vector provides the embedding store used for candidate retrieval
// and similarity graph expansion. Embeddings are produced by the library
// sync and persisted in the relational store; this package serves
// nearest-neighbor queries over an in-memory copy.
package vector

import (
	"context"
)

// Neighbor is a single nearest-neighbor result.
type Neighbor struct {
	// ItemID is the matched item identifier.
	ItemID string

	// Similarity is the raw cosine similarity in [-1, 1].
	Similarity float64
}

// Filter restricts a nearest-neighbor query.
type Filter struct {
	// Exclude lists item ids that must not appear in results.
	Exclude map[string]struct{}

	// MaxContentRating caps results by content rating; empty means no cap
	// (see models.RatingExceeds).
	MaxContentRating string
}

// Store serves vector lookups and nearest-neighbor queries by cosine
// similarity.
type Store interface {
	// NearestNeighbors returns up to limit items nearest to vec by cosine
	// similarity, ordered by descending similarity, after applying the
	// filter. An empty result is not an error.
	NearestNeighbors(ctx context.Context, vec []float64, filter Filter, limit int) ([]Neighbor, error)

	// GetVector returns the stored embedding for an item, with ok=false
	// when the item has no embedding.
	GetVector(ctx context.Context, itemID string) ([]float64, bool, error)
}

// Entry is one stored embedding with the metadata needed for filtering.
type Entry struct {
	// ItemID is the item identifier.
	ItemID string

	// Vector is the dense embedding.
	Vector []float64

	// ContentRating is the item's content rating (may be empty).
	ContentRating string
}

// Loader yields the embedding rows to populate a Store, typically backed
// by the relational store's item_vectors table.
type Loader interface {
	LoadVectors(ctx context.Context) ([]Entry, error)
}

var _ Store = (*MemoryStore)(nil)
