// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dgruhin-hrizn/aperture/internal/models"
)

// ErrRunFinalized is returned when finalizing a run that already left the
// running state.
var ErrRunFinalized = errors.New("database: run already finalized")

// CreateRun inserts a new run in the running state and returns it.
func (db *DB) CreateRun(ctx context.Context, userID string) (*models.Run, error) {
	run := &models.Run{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now(),
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO recommendation_runs (id, user_id, status, started_at)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.UserID, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create run for %s: %w", userID, err)
	}
	return run, nil
}

// FinalizeRun moves a run from running to completed or failed. The status
// guard makes finalization at-most-once: a second call, or a call for an
// unknown run, returns ErrRunFinalized.
func (db *DB) FinalizeRun(ctx context.Context, runID string, status models.RunStatus, runErr string) error {
	if status != models.RunStatusCompleted && status != models.RunStatusFailed {
		return fmt.Errorf("finalize run %s: invalid target status %q", runID, status)
	}

	res, err := db.conn.ExecContext(ctx, `
		UPDATE recommendation_runs
		SET status = ?, finished_at = ?, error = ?
		WHERE id = ? AND status = ?`,
		string(status), time.Now(), runErr, runID, string(models.RunStatusRunning))
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize run %s: rows affected: %w", runID, err)
	}
	if affected == 0 {
		return ErrRunFinalized
	}
	return nil
}

// SetRunCounts records the persisted pool and selection sizes on the run
// row.
func (db *DB) SetRunCounts(ctx context.Context, runID string, candidateCount, selectedCount int) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE recommendation_runs
		SET candidate_count = ?, selected_count = ?
		WHERE id = ?`, candidateCount, selectedCount, runID)
	if err != nil {
		return fmt.Errorf("set run counts %s: %w", runID, err)
	}
	return nil
}

// GetRun fetches one run by id; ok=false when absent.
func (db *DB) GetRun(ctx context.Context, runID string) (*models.Run, bool, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, status, started_at, finished_at, candidate_count, selected_count, error
		FROM recommendation_runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, true, nil
}

// LatestCompletedRun returns the newest completed run for a user, ok=false
// when the user has none.
func (db *DB) LatestCompletedRun(ctx context.Context, userID string) (*models.Run, bool, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, status, started_at, finished_at, candidate_count, selected_count, error
		FROM recommendation_runs
		WHERE user_id = ? AND status = ?
		ORDER BY started_at DESC
		LIMIT 1`, userID, string(models.RunStatusCompleted))

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("latest completed run for %s: %w", userID, err)
	}
	return run, true, nil
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run      models.Run
		status   string
		finished sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.UserID, &status, &run.StartedAt, &finished,
		&run.CandidateCount, &run.SelectedCount, &run.Error); err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

// InsertRecommendations persists the full ranked pool for a run.
func (db *DB) InsertRecommendations(ctx context.Context, recs []models.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recommendations tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recommendation_candidates (
			run_id, item_id, pool_rank, selected, similarity, novelty,
			rating_score, diversity, final_score, adjusted_score, explanation
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare recommendations insert: %w", err)
	}
	defer closeQuietly(stmt)

	for i := range recs {
		r := &recs[i]
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.ItemID, r.Position, r.Selected, r.Similarity, r.Novelty,
			r.RatingScore, r.Diversity, r.FinalScore, r.AdjustedScore, r.Explanation); err != nil {
			return fmt.Errorf("insert recommendation %s/%s: %w", r.RunID, r.ItemID, err)
		}
	}
	return tx.Commit()
}

// InsertEvidence persists evidence rows for a run.
func (db *DB) InsertEvidence(ctx context.Context, evidence []models.Evidence) error {
	if len(evidence) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin evidence tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recommendation_evidence (run_id, item_id, evidence_item_id, similarity, evidence_rank)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare evidence insert: %w", err)
	}
	defer closeQuietly(stmt)

	for i := range evidence {
		e := &evidence[i]
		if _, err := stmt.ExecContext(ctx,
			e.RunID, e.ItemID, e.EvidenceItemID, e.Similarity, e.Rank); err != nil {
			return fmt.Errorf("insert evidence %s/%s: %w", e.RunID, e.ItemID, err)
		}
	}
	return tx.Commit()
}

// SetExplanation attaches a natural-language explanation to one
// recommendation row.
func (db *DB) SetExplanation(ctx context.Context, runID, itemID, explanation string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE recommendation_candidates SET explanation = ?
		WHERE run_id = ? AND item_id = ?`,
		explanation, runID, itemID)
	if err != nil {
		return fmt.Errorf("set explanation %s/%s: %w", runID, itemID, err)
	}
	return nil
}

// GetRecommendations returns the ranked rows of a run in position order.
// With selectedOnly, only items on the final list are returned.
func (db *DB) GetRecommendations(ctx context.Context, runID string, selectedOnly bool) ([]models.Recommendation, error) {
	query := `
		SELECT run_id, item_id, pool_rank, selected, similarity, novelty,
			rating_score, diversity, final_score, adjusted_score, explanation
		FROM recommendation_candidates
		WHERE run_id = ?`
	if selectedOnly {
		query += ` AND selected`
	}
	query += ` ORDER BY pool_rank`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get recommendations for %s: %w", runID, err)
	}
	defer closeQuietly(rows)

	var recs []models.Recommendation
	for rows.Next() {
		var r models.Recommendation
		if err := rows.Scan(&r.RunID, &r.ItemID, &r.Position, &r.Selected,
			&r.Similarity, &r.Novelty, &r.RatingScore, &r.Diversity,
			&r.FinalScore, &r.AdjustedScore, &r.Explanation); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// GetEvidence returns evidence rows for one recommended item in rank order.
func (db *DB) GetEvidence(ctx context.Context, runID, itemID string) ([]models.Evidence, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT run_id, item_id, evidence_item_id, similarity, evidence_rank
		FROM recommendation_evidence
		WHERE run_id = ? AND item_id = ?
		ORDER BY evidence_rank`, runID, itemID)
	if err != nil {
		return nil, fmt.Errorf("get evidence for %s/%s: %w", runID, itemID, err)
	}
	defer closeQuietly(rows)

	var out []models.Evidence
	for rows.Next() {
		var e models.Evidence
		if err := rows.Scan(&e.RunID, &e.ItemID, &e.EvidenceItemID, &e.Similarity, &e.Rank); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearRecommendations removes all runs and derived rows for a user.
func (db *DB) ClearRecommendations(ctx context.Context, userID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM recommendation_evidence WHERE run_id IN
			(SELECT id FROM recommendation_runs WHERE user_id = ?)`,
		`DELETE FROM recommendation_candidates WHERE run_id IN
			(SELECT id FROM recommendation_runs WHERE user_id = ?)`,
		`DELETE FROM recommendation_runs WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, userID); err != nil {
			return fmt.Errorf("clear recommendations for %s: %w", userID, err)
		}
	}
	return tx.Commit()
}

// PruneRuns keeps the newest retain finished runs per user and deletes the
// rest with their derived rows. Running runs are never pruned.
func (db *DB) PruneRuns(ctx context.Context, userID string, retain int) (int, error) {
	if retain < 1 {
		return 0, fmt.Errorf("prune runs: retain must be positive, got %d", retain)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id FROM recommendation_runs
		WHERE user_id = ? AND status <> ?
		ORDER BY started_at DESC
		OFFSET ?`, userID, string(models.RunStatusRunning), retain)
	if err != nil {
		return 0, fmt.Errorf("list prunable runs for %s: %w", userID, err)
	}

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			closeQuietly(rows)
			return 0, err
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		closeQuietly(rows)
		return 0, err
	}
	closeQuietly(rows)

	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, runID := range stale {
		for _, stmt := range []string{
			`DELETE FROM recommendation_evidence WHERE run_id = ?`,
			`DELETE FROM recommendation_candidates WHERE run_id = ?`,
			`DELETE FROM recommendation_runs WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, runID); err != nil {
				return 0, fmt.Errorf("prune run %s: %w", runID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stale), nil
}
