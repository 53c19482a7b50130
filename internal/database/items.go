// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dgruhin-hrizn/aperture/internal/models"
	"github.com/dgruhin-hrizn/aperture/internal/vector"
)

// UpsertMediaItem inserts or replaces one media item. Person-shaped
// columns accept the raw variants media servers produce; they are
// normalized before storage.
func (db *DB) UpsertMediaItem(ctx context.Context, item *models.MediaItem) error {
	genres, err := json.Marshal(item.Genres)
	if err != nil {
		return fmt.Errorf("marshal genres: %w", err)
	}
	directors, err := json.Marshal(item.Directors)
	if err != nil {
		return fmt.Errorf("marshal directors: %w", err)
	}
	actors, err := json.Marshal(item.Actors)
	if err != nil {
		return fmt.Errorf("marshal actors: %w", err)
	}
	studios, err := json.Marshal(item.Studios)
	if err != nil {
		return fmt.Errorf("marshal studios: %w", err)
	}
	keywords, err := json.Marshal(item.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	providerIDs, err := json.Marshal(item.ProviderIDs)
	if err != nil {
		return fmt.Errorf("marshal provider ids: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO media_items (
			id, title, year, media_type, genres, directors, actors, studios,
			keywords, collection_name, network, community_rating, content_rating,
			provider_ids, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			year = EXCLUDED.year,
			media_type = EXCLUDED.media_type,
			genres = EXCLUDED.genres,
			directors = EXCLUDED.directors,
			actors = EXCLUDED.actors,
			studios = EXCLUDED.studios,
			keywords = EXCLUDED.keywords,
			collection_name = EXCLUDED.collection_name,
			network = EXCLUDED.network,
			community_rating = EXCLUDED.community_rating,
			content_rating = EXCLUDED.content_rating,
			provider_ids = EXCLUDED.provider_ids,
			updated_at = EXCLUDED.updated_at`,
		item.ID, item.Title, item.Year, string(item.Type),
		string(genres), string(directors), string(actors), string(studios),
		string(keywords), item.CollectionName, item.Network,
		item.CommunityRating, item.ContentRating, string(providerIDs), time.Now())
	if err != nil {
		return fmt.Errorf("upsert media item %s: %w", item.ID, err)
	}
	return nil
}

const mediaItemColumns = `id, title, year, media_type, genres, directors,
	actors, studios, keywords, collection_name, network, community_rating,
	content_rating, provider_ids`

// GetMediaItem fetches one item by id; ok=false when absent.
func (db *DB) GetMediaItem(ctx context.Context, itemID string) (*models.MediaItem, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+mediaItemColumns+` FROM media_items WHERE id = ?`, itemID)

	item, err := scanMediaItem(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get media item %s: %w", itemID, err)
	}
	return item, true, nil
}

// GetMediaItems fetches a batch of items by id. Missing ids are silently
// absent from the result map.
func (db *DB) GetMediaItems(ctx context.Context, itemIDs []string) (map[string]*models.MediaItem, error) {
	out := make(map[string]*models.MediaItem, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(itemIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+mediaItemColumns+` FROM media_items WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get media items: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		out[item.ID] = item
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaItem(row rowScanner) (*models.MediaItem, error) {
	var (
		item                                                models.MediaItem
		mediaType                                           string
		genres, directors, actors, studios, keywords, provs string
	)

	err := row.Scan(&item.ID, &item.Title, &item.Year, &mediaType,
		&genres, &directors, &actors, &studios, &keywords,
		&item.CollectionName, &item.Network, &item.CommunityRating,
		&item.ContentRating, &provs)
	if err != nil {
		return nil, err
	}

	item.Type = models.MediaType(mediaType)
	if err := json.Unmarshal([]byte(genres), &item.Genres); err != nil {
		return nil, fmt.Errorf("unmarshal genres for %s: %w", item.ID, err)
	}
	if err := json.Unmarshal([]byte(keywords), &item.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords for %s: %w", item.ID, err)
	}
	if err := json.Unmarshal([]byte(provs), &item.ProviderIDs); err != nil {
		return nil, fmt.Errorf("unmarshal provider ids for %s: %w", item.ID, err)
	}

	// People columns tolerate the messy shapes media servers emit.
	item.Directors = models.PersonNames(models.NormalizePersons([]byte(directors)))
	item.Actors = models.NormalizePersons([]byte(actors))
	item.Studios = models.NormalizePersons([]byte(studios))
	return &item, nil
}

// ListUserIDs returns the distinct user ids present in watch history.
func (db *DB) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM watch_history ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer closeQuietly(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertWatchHistory inserts or replaces one watch-history entry.
func (db *DB) UpsertWatchHistory(ctx context.Context, entry *models.WatchHistoryEntry) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO watch_history (user_id, item_id, play_count, last_played_at, is_favorite, user_rating)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, item_id) DO UPDATE SET
			play_count = EXCLUDED.play_count,
			last_played_at = EXCLUDED.last_played_at,
			is_favorite = EXCLUDED.is_favorite,
			user_rating = EXCLUDED.user_rating`,
		entry.UserID, entry.ItemID, entry.PlayCount, entry.LastPlayedAt,
		entry.IsFavorite, entry.UserRating)
	if err != nil {
		return fmt.Errorf("upsert watch history %s/%s: %w", entry.UserID, entry.ItemID, err)
	}
	return nil
}

// GetWatchHistory returns a user's history, most recently played first,
// capped at limit entries.
func (db *DB) GetWatchHistory(ctx context.Context, userID string, limit int) ([]models.WatchHistoryEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, item_id, play_count, last_played_at, is_favorite, user_rating
		FROM watch_history
		WHERE user_id = ?
		ORDER BY last_played_at DESC NULLS LAST
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get watch history for %s: %w", userID, err)
	}
	defer closeQuietly(rows)

	var entries []models.WatchHistoryEntry
	for rows.Next() {
		var (
			e          models.WatchHistoryEntry
			lastPlayed sql.NullTime
			rating     sql.NullFloat64
		)
		if err := rows.Scan(&e.UserID, &e.ItemID, &e.PlayCount, &lastPlayed, &e.IsFavorite, &rating); err != nil {
			return nil, err
		}
		if lastPlayed.Valid {
			e.LastPlayedAt = lastPlayed.Time
		}
		if rating.Valid {
			r := rating.Float64
			e.UserRating = &r
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetUserPreferences returns stored preferences, or defaults when the
// user has none.
func (db *DB) GetUserPreferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT user_id, similarity_weight, novelty_weight, rating_weight, diversity_weight,
			max_content_rating, include_watched, disliked_item_ids, full_franchise_mode, hide_watched
		FROM user_preferences WHERE user_id = ?`, userID)

	var (
		prefs          models.UserPreferences
		sw, nw, rw, dw sql.NullFloat64
		disliked       string
	)
	err := row.Scan(&prefs.UserID, &sw, &nw, &rw, &dw,
		&prefs.MaxContentRating, &prefs.IncludeWatched, &disliked,
		&prefs.FullFranchiseMode, &prefs.HideWatched)
	if err == sql.ErrNoRows {
		return &models.UserPreferences{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences for %s: %w", userID, err)
	}

	// NULL weight columns mean "use the configured default", which the
	// zero value already expresses.
	prefs.SimilarityWeight = sw.Float64
	prefs.NoveltyWeight = nw.Float64
	prefs.RatingWeight = rw.Float64
	prefs.DiversityWeight = dw.Float64
	if err := json.Unmarshal([]byte(disliked), &prefs.DislikedItemIDs); err != nil {
		return nil, fmt.Errorf("unmarshal disliked items for %s: %w", userID, err)
	}
	return &prefs, nil
}

// UpsertUserPreferences inserts or replaces a user's preferences.
func (db *DB) UpsertUserPreferences(ctx context.Context, prefs *models.UserPreferences) error {
	disliked, err := json.Marshal(prefs.DislikedItemIDs)
	if err != nil {
		return fmt.Errorf("marshal disliked items: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO user_preferences (
			user_id, similarity_weight, novelty_weight, rating_weight, diversity_weight,
			max_content_rating, include_watched, disliked_item_ids, full_franchise_mode, hide_watched
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			similarity_weight = EXCLUDED.similarity_weight,
			novelty_weight = EXCLUDED.novelty_weight,
			rating_weight = EXCLUDED.rating_weight,
			diversity_weight = EXCLUDED.diversity_weight,
			max_content_rating = EXCLUDED.max_content_rating,
			include_watched = EXCLUDED.include_watched,
			disliked_item_ids = EXCLUDED.disliked_item_ids,
			full_franchise_mode = EXCLUDED.full_franchise_mode,
			hide_watched = EXCLUDED.hide_watched`,
		prefs.UserID, prefs.SimilarityWeight, prefs.NoveltyWeight,
		prefs.RatingWeight, prefs.DiversityWeight, prefs.MaxContentRating,
		prefs.IncludeWatched, string(disliked), prefs.FullFranchiseMode, prefs.HideWatched)
	if err != nil {
		return fmt.Errorf("upsert preferences for %s: %w", prefs.UserID, err)
	}
	return nil
}

// UpsertVector stores an item embedding.
func (db *DB) UpsertVector(ctx context.Context, itemID string, embedding []float64, contentRating string) error {
	payload, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO item_vectors (item_id, embedding, content_rating, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (item_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content_rating = EXCLUDED.content_rating,
			updated_at = EXCLUDED.updated_at`,
		itemID, string(payload), contentRating, time.Now())
	if err != nil {
		return fmt.Errorf("upsert vector for %s: %w", itemID, err)
	}
	return nil
}

// LoadVectors returns all stored embeddings. It implements vector.Loader
// so the in-memory store can be populated at startup.
func (db *DB) LoadVectors(ctx context.Context) ([]vector.Entry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT item_id, embedding, content_rating FROM item_vectors`)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	defer closeQuietly(rows)

	var entries []vector.Entry
	for rows.Next() {
		var (
			e       vector.Entry
			payload string
		)
		if err := rows.Scan(&e.ItemID, &payload, &e.ContentRating); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Vector); err != nil {
			return nil, fmt.Errorf("unmarshal embedding for %s: %w", e.ItemID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CollectionSize counts library items in a named collection. Empty names
// count as zero without touching the store.
func (db *DB) CollectionSize(ctx context.Context, collectionName string) (int, error) {
	if collectionName == "" {
		return 0, nil
	}

	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_items WHERE collection_name = ?`, collectionName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("collection size for %q: %w", collectionName, err)
	}
	return n, nil
}

// ListTitles returns the minimal title projection of the whole library,
// used to match oracle title suggestions back to item ids.
func (db *DB) ListTitles(ctx context.Context) ([]models.TitleRef, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, title, year, collection_name FROM media_items`)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	defer closeQuietly(rows)

	var refs []models.TitleRef
	for rows.Next() {
		var ref models.TitleRef
		if err := rows.Scan(&ref.ID, &ref.Title, &ref.Year, &ref.CollectionName); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
