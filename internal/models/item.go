// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package models defines the core domain types shared between the relational
// store, the vector store and the recommendation pipeline.
package models

import (
	"strings"
	"time"
)

// MediaType identifies the kind of content item.
type MediaType string

const (
	// MediaTypeMovie is a feature film.
	MediaTypeMovie MediaType = "movie"
	// MediaTypeSeries is a television series.
	MediaTypeSeries MediaType = "series"
)

// MediaItem is the canonical descriptor of a library item as synced from the
// media server. It is read-only to the recommendation core.
type MediaItem struct {
	// ID is the media-server item identifier.
	ID string `json:"id"`

	// Title is the display title.
	Title string `json:"title"`

	// Year is the release year (0 if unknown).
	Year int `json:"year"`

	// Type is the content type (movie, series).
	Type MediaType `json:"type"`

	// Genres is a slice of genre names.
	Genres []string `json:"genres"`

	// Directors is a slice of director names.
	Directors []string `json:"directors"`

	// Actors is the normalized cast list.
	Actors []Person `json:"actors"`

	// Studios is the normalized studio list.
	Studios []Person `json:"studios"`

	// Keywords is a slice of tag/keyword names.
	Keywords []string `json:"keywords"`

	// CollectionName is the franchise/collection this item belongs to,
	// empty when the item is not part of a collection.
	CollectionName string `json:"collection_name,omitempty"`

	// Network is the broadcast network for series.
	Network string `json:"network,omitempty"`

	// CommunityRating is the community rating (0-10, 0 if unrated).
	CommunityRating float64 `json:"community_rating,omitempty"`

	// ContentRating is the MPAA/TV rating (PG, R, TV-MA, etc.).
	ContentRating string `json:"content_rating,omitempty"`

	// ProviderIDs maps external providers (tmdb, imdb) to their ids.
	ProviderIDs map[string]string `json:"provider_ids,omitempty"`
}

// WatchHistoryEntry is a single user-item watch record. Created and updated
// by the library sync; read-only to the recommendation core.
type WatchHistoryEntry struct {
	// UserID is the media-server user identifier.
	UserID string `json:"user_id"`

	// ItemID is the watched item identifier.
	ItemID string `json:"item_id"`

	// PlayCount is the number of completed plays.
	PlayCount int `json:"play_count"`

	// LastPlayedAt is when the item was last played.
	LastPlayedAt time.Time `json:"last_played_at"`

	// IsFavorite indicates the user flagged the item as a favorite.
	IsFavorite bool `json:"is_favorite"`

	// UserRating is the explicit 1-10 rating, nil when the user has not
	// rated the item.
	UserRating *float64 `json:"user_rating,omitempty"`
}

// UserPreferences holds per-user tuning for recommendation generation and
// similarity graph exploration.
type UserPreferences struct {
	// UserID is the media-server user identifier.
	UserID string `json:"user_id"`

	// SimilarityWeight through DiversityWeight override the run weights
	// when positive; zero means "use the configured default".
	SimilarityWeight float64 `json:"similarity_weight,omitempty"`
	NoveltyWeight    float64 `json:"novelty_weight,omitempty"`
	RatingWeight     float64 `json:"rating_weight,omitempty"`
	DiversityWeight  float64 `json:"diversity_weight,omitempty"`

	// MaxContentRating caps candidate content ratings ("" = no cap).
	MaxContentRating string `json:"max_content_rating,omitempty"`

	// IncludeWatched allows already-watched items back into the
	// candidate pool.
	IncludeWatched bool `json:"include_watched,omitempty"`

	// DislikedItemIDs are always excluded from candidates.
	DislikedItemIDs []string `json:"disliked_item_ids,omitempty"`

	// FullFranchiseMode disables collection quotas in the similarity
	// graph, letting a franchise dominate if the user wants that.
	FullFranchiseMode bool `json:"full_franchise_mode,omitempty"`

	// HideWatched removes watched items from the similarity graph
	// (never the seed).
	HideWatched bool `json:"hide_watched,omitempty"`
}

// contentRatingOrder maps normalized content ratings onto a severity scale.
// Movie and TV scales are interleaved so a single ceiling works for both.
var contentRatingOrder = map[string]int{
	"G":     10,
	"TV-Y":  10,
	"TV-G":  10,
	"TV-Y7": 20,
	"PG":    30,
	"TV-PG": 30,
	"PG-13": 40,
	"TV-14": 40,
	"R":     50,
	"TV-MA": 50,
	"NC-17": 60,
	"XXX":   70,
}

// ContentRatingRank returns the severity rank for a content rating and
// whether the rating is known. Unknown ratings compare as unranked.
func ContentRatingRank(rating string) (int, bool) {
	r, ok := contentRatingOrder[strings.ToUpper(strings.TrimSpace(rating))]
	return r, ok
}

// RatingExceeds reports whether rating is stricter content than ceiling.
// An empty ceiling never excludes. Once a ceiling is set, unrated and
// unrecognized ratings are excluded; only items ranked at or under the
// ceiling pass.
func RatingExceeds(rating, ceiling string) bool {
	if ceiling == "" {
		return false
	}
	if rating == "" {
		return true
	}
	cr, ok := ContentRatingRank(ceiling)
	if !ok {
		return false
	}
	rr, ok := ContentRatingRank(rating)
	if !ok {
		return true
	}
	return rr > cr
}
