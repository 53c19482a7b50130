// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package models

import "time"

// RunStatus is the lifecycle state of a recommendation run.
type RunStatus string

// Run lifecycle states. A run moves from running to exactly one of
// completed or failed; the store enforces at-most-once finalization.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recommendation generation attempt for a user.
// CandidateCount and SelectedCount are written once the pool is persisted
// and stay zero for empty or failed runs.
type Run struct {
	ID             string
	UserID         string
	Status         RunStatus
	StartedAt      time.Time
	FinishedAt     *time.Time
	CandidateCount int
	SelectedCount  int
	Error          string
}

// Recommendation is one ranked candidate persisted for a run. Position is
// the 1-based rank over the full scored pool; Selected marks the items
// that made the final list.
type Recommendation struct {
	RunID         string
	ItemID        string
	Position      int
	Selected      bool
	Similarity    float64
	Novelty       float64
	RatingScore   float64
	Diversity     float64
	FinalScore    float64
	AdjustedScore float64
	Explanation   string
}

// Evidence links a recommended item to a watched item that influenced it.
type Evidence struct {
	RunID          string
	ItemID         string
	EvidenceItemID string
	Similarity     float64
	Rank           int
}

// ValidationEntry is one cached connection-validation verdict for an
// unordered item pair. Reason carries the oracle's short justification.
type ValidationEntry struct {
	PairKey   string
	ItemA     string
	ItemB     string
	Related   bool
	Reason    string
	Source    string
	CheckedAt time.Time
}

// TitleRef is the minimal item projection used for fuzzy title matching.
type TitleRef struct {
	ID             string
	Title          string
	Year           int
	CollectionName string
}
