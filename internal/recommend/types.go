// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package recommend implements the recommendation pipeline: taste-profile
// construction from watch history, vector candidate retrieval, four-factor
// scoring and diversity-aware greedy selection, with runs persisted through
// the relational store.
package recommend

import (
	"context"
	"errors"

	"github.com/dgruhin-hrizn/aperture/internal/models"
)

// ErrNoProfile is returned when no watched item has a stored embedding, so
// no taste vector can be built. Callers treat it as "empty result", not as
// a failure.
var ErrNoProfile = errors.New("recommend: no taste profile available")

// Weights are the final-score blend weights. They are user-tunable and are
// deliberately not renormalized when they do not sum to 1.
type Weights struct {
	Similarity float64
	Novelty    float64
	Rating     float64
	Diversity  float64
}

// TasteProfile is a user's unit-length taste vector.
type TasteProfile struct {
	// Vector is L2-normalized; its dimension is fixed by the embedding
	// model and not interpreted here.
	Vector []float64

	// SourceCount is how many watched items contributed to the vector.
	SourceCount int
}

// Candidate is one retrieved item before scoring. Immutable within a run.
type Candidate struct {
	ItemID          string
	Title           string
	Year            int
	Genres          []string
	CollectionName  string
	CommunityRating float64

	// RawSimilarity is the cosine similarity to the taste vector, in
	// [-1, 1].
	RawSimilarity float64
}

// ScoredCandidate carries the four component scores and their weighted
// blend. Diversity is zero at scoring time; the selector populates it.
type ScoredCandidate struct {
	Candidate

	Similarity  float64
	Novelty     float64
	RatingScore float64
	Diversity   float64
	FinalScore  float64
}

// RankedCandidate is a scored candidate with its selection outcome. Rank
// covers the whole pool (1..len), so unselected items record the rank they
// would have received.
type RankedCandidate struct {
	ScoredCandidate

	Rank          int
	Selected      bool
	AdjustedScore float64
}

// SelectionResult is the selector output: the final list in rank order
// plus the full ranked pool for persistence and audit.
type SelectionResult struct {
	Selected []RankedCandidate
	Pool     []RankedCandidate
}

// Store is the persistence surface the pipeline needs. *database.DB
// satisfies it.
type Store interface {
	GetWatchHistory(ctx context.Context, userID string, limit int) ([]models.WatchHistoryEntry, error)
	GetUserPreferences(ctx context.Context, userID string) (*models.UserPreferences, error)
	GetMediaItems(ctx context.Context, itemIDs []string) (map[string]*models.MediaItem, error)
	ListUserIDs(ctx context.Context) ([]string, error)

	CreateRun(ctx context.Context, userID string) (*models.Run, error)
	FinalizeRun(ctx context.Context, runID string, status models.RunStatus, runErr string) error
	SetRunCounts(ctx context.Context, runID string, candidateCount, selectedCount int) error
	InsertRecommendations(ctx context.Context, recs []models.Recommendation) error
	InsertEvidence(ctx context.Context, evidence []models.Evidence) error
	SetExplanation(ctx context.Context, runID, itemID, explanation string) error
	ClearRecommendations(ctx context.Context, userID string) error
	PruneRuns(ctx context.Context, userID string, retain int) (int, error)
}

// BatchResult tallies an all-user generation.
type BatchResult struct {
	Succeeded int
	Failed    int
}
