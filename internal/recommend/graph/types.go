// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package graph builds the similarity graph around a seed item:
// multi-depth neighbor expansion under collection quotas, franchise
// bubble detection with an AI-assisted escape, and connection validation
// backed by a symmetric persistent cache.
package graph

import (
	"context"

	"github.com/dgruhin-hrizn/aperture/internal/models"
)

// Edge reason tags.
const (
	ReasonVectorSimilarity = "vector-similarity"
	ReasonSameCollection   = "same-collection"
	ReasonAIDiverse        = "ai-diverse"
)

// aiEscapeSimilarity is the fixed similarity assigned to edges created by
// the bubble escape, where no vector comparison backs the connection.
const aiEscapeSimilarity = 0.5

// Node is one graph vertex.
type Node struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Year     int              `json:"year,omitempty"`
	Type     models.MediaType `json:"type"`
	IsCenter bool             `json:"isCenter"`
}

// Edge is one undirected connection. The unordered (Source, Target) pair
// is unique within a graph.
type Edge struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Similarity float64  `json:"similarity"`
	Reasons    []string `json:"reasons"`
}

// Graph is the builder output.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// Bubbled reports whether franchise-bubble escape was triggered at
	// any level.
	Bubbled bool `json:"bubbled"`

	// DominantCollection is the most common collection among non-seed
	// nodes when Bubbled is true.
	DominantCollection string `json:"dominantCollection,omitempty"`
}

// Options tune one build. Zero values fall back to the configured
// defaults.
type Options struct {
	// Depth is the expansion depth (1..3).
	Depth int

	// Limit is the per-node neighbor limit at level 1.
	Limit int

	// Prefs are the requesting user's preferences; nil means defaults.
	Prefs *models.UserPreferences

	// WatchedIDs is the requesting user's watched set, used by the
	// hide-watched preference. The seed is never hidden.
	WatchedIDs map[string]struct{}
}

// Library is the metadata surface the builder reads. *database.DB
// satisfies it.
type Library interface {
	GetMediaItem(ctx context.Context, itemID string) (*models.MediaItem, bool, error)
	GetMediaItems(ctx context.Context, itemIDs []string) (map[string]*models.MediaItem, error)
	CollectionSize(ctx context.Context, collectionName string) (int, error)
	ListTitles(ctx context.Context) ([]models.TitleRef, error)
}

// CacheStore persists connection-validation verdicts keyed by the
// unordered item pair. *database.DB satisfies it.
type CacheStore interface {
	GetValidation(ctx context.Context, itemA, itemB string) (*models.ValidationEntry, bool, error)
	PutValidation(ctx context.Context, itemA, itemB string, related bool, reason, source string) error
}
