// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dgruhin-hrizn/aperture/internal/models"
)

// PairKey returns the canonical cache key for an unordered item pair, so
// (a, b) and (b, a) share one entry.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// GetValidation looks up a cached verdict for an unordered pair; ok=false
// on a miss.
func (db *DB) GetValidation(ctx context.Context, itemA, itemB string) (*models.ValidationEntry, bool, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT pair_key, item_a, item_b, related, reason, source, checked_at
		FROM validation_cache WHERE pair_key = ?`, PairKey(itemA, itemB))

	var entry models.ValidationEntry
	err := row.Scan(&entry.PairKey, &entry.ItemA, &entry.ItemB,
		&entry.Related, &entry.Reason, &entry.Source, &entry.CheckedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get validation %s: %w", PairKey(itemA, itemB), err)
	}
	return &entry, true, nil
}

// PutValidation stores a verdict with its justification under the
// canonical pair key, replacing any previous one.
func (db *DB) PutValidation(ctx context.Context, itemA, itemB string, related bool, reason, source string) error {
	key := PairKey(itemA, itemB)
	a, b := itemA, itemB
	if a > b {
		a, b = b, a
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO validation_cache (pair_key, item_a, item_b, related, reason, source, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pair_key) DO UPDATE SET
			related = EXCLUDED.related,
			reason = EXCLUDED.reason,
			source = EXCLUDED.source,
			checked_at = EXCLUDED.checked_at`,
		key, a, b, related, reason, source, time.Now())
	if err != nil {
		return fmt.Errorf("put validation %s: %w", key, err)
	}
	return nil
}
