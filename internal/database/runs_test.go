// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package database

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/dgruhin-hrizn/aperture/internal/config"
	"github.com/dgruhin-hrizn/aperture/internal/logging"
	"github.com/dgruhin-hrizn/aperture/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(&config.DatabaseConfig{Path: ":memory:", Threads: 2}, logging.NewTestLogger(io.Discard))
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close database: %v", err)
		}
	})
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != models.RunStatusRunning {
		t.Errorf("new run status = %q, want running", run.Status)
	}

	if err := db.FinalizeRun(ctx, run.ID, models.RunStatusCompleted, ""); err != nil {
		t.Fatalf("first finalize: %v", err)
	}

	// A second finalize must hit the status guard.
	err = db.FinalizeRun(ctx, run.ID, models.RunStatusFailed, "late failure")
	if !errors.Is(err, ErrRunFinalized) {
		t.Errorf("second finalize error = %v, want ErrRunFinalized", err)
	}

	got, ok, err := db.GetRun(ctx, run.ID)
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if got.Status != models.RunStatusCompleted {
		t.Errorf("status after double finalize = %q, want completed", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at not set")
	}
	if got.Error != "" {
		t.Errorf("error = %q, want empty", got.Error)
	}
}

func TestFinalizeRun_UnknownRun(t *testing.T) {
	db := newTestDB(t)

	err := db.FinalizeRun(context.Background(), "no-such-run", models.RunStatusFailed, "x")
	if !errors.Is(err, ErrRunFinalized) {
		t.Errorf("error = %v, want ErrRunFinalized", err)
	}
}

func TestLatestCompletedRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.LatestCompletedRun(ctx, "alice"); err != nil || ok {
		t.Fatalf("expected no completed run, ok=%v err=%v", ok, err)
	}

	first, err := db.CreateRun(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.FinalizeRun(ctx, first.ID, models.RunStatusCompleted, ""); err != nil {
		t.Fatal(err)
	}

	failed, err := db.CreateRun(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.FinalizeRun(ctx, failed.ID, models.RunStatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	latest, ok, err := db.LatestCompletedRun(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("latest completed run: ok=%v err=%v", ok, err)
	}
	if latest.ID != first.ID {
		t.Errorf("latest completed = %s, want %s (failed runs excluded)", latest.ID, first.ID)
	}
}

func TestRecommendationsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run, err := db.CreateRun(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}

	recs := []models.Recommendation{
		{RunID: run.ID, ItemID: "a", Position: 1, Selected: true, FinalScore: 0.9},
		{RunID: run.ID, ItemID: "b", Position: 2, Selected: true, FinalScore: 0.8},
		{RunID: run.ID, ItemID: "c", Position: 3, Selected: false, FinalScore: 0.7},
	}
	if err := db.InsertRecommendations(ctx, recs); err != nil {
		t.Fatal(err)
	}
	if err := db.SetExplanation(ctx, run.ID, "a", "because you watched X"); err != nil {
		t.Fatal(err)
	}

	selected, err := db.GetRecommendations(ctx, run.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != 2 {
		t.Fatalf("selected rows = %d, want 2", len(selected))
	}
	if selected[0].ItemID != "a" || selected[1].ItemID != "b" {
		t.Errorf("selected order = %s, %s; want a, b", selected[0].ItemID, selected[1].ItemID)
	}
	if selected[0].Explanation != "because you watched X" {
		t.Errorf("explanation = %q", selected[0].Explanation)
	}

	all, err := db.GetRecommendations(ctx, run.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("pool rows = %d, want 3", len(all))
	}

	if err := db.SetRunCounts(ctx, run.ID, 3, 2); err != nil {
		t.Fatal(err)
	}
	got, _, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CandidateCount != 3 || got.SelectedCount != 2 {
		t.Errorf("run counts = %d/%d, want 3/2", got.CandidateCount, got.SelectedCount)
	}
}

func TestPruneRuns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		run, err := db.CreateRun(ctx, "alice")
		if err != nil {
			t.Fatal(err)
		}
		if err := db.FinalizeRun(ctx, run.ID, models.RunStatusCompleted, ""); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, run.ID)
	}

	// One still-running run must survive pruning regardless of age.
	running, err := db.CreateRun(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}

	pruned, err := db.PruneRuns(ctx, "alice", 2)
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}

	if _, ok, _ := db.GetRun(ctx, running.ID); !ok {
		t.Error("running run was pruned")
	}
	if _, ok, _ := db.GetRun(ctx, ids[0]); ok {
		t.Error("oldest finished run should have been pruned")
	}
	if _, ok, _ := db.GetRun(ctx, ids[3]); !ok {
		t.Error("newest finished run should have been retained")
	}
}

func TestValidationCache_Symmetric(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.GetValidation(ctx, "x", "y"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}

	if err := db.PutValidation(ctx, "y", "x", true, "YES - shared universe.", "oracle"); err != nil {
		t.Fatal(err)
	}

	// Lookup in either order resolves to the same canonical entry.
	for _, pair := range [][2]string{{"x", "y"}, {"y", "x"}} {
		entry, ok, err := db.GetValidation(ctx, pair[0], pair[1])
		if err != nil || !ok {
			t.Fatalf("lookup %v: ok=%v err=%v", pair, ok, err)
		}
		if !entry.Related || entry.Source != "oracle" || entry.Reason == "" {
			t.Errorf("entry = %+v", entry)
		}
		if entry.PairKey != PairKey(pair[0], pair[1]) {
			t.Errorf("pair key = %q, want %q", entry.PairKey, PairKey(pair[0], pair[1]))
		}
	}

	// Re-judging the pair overwrites, not duplicates.
	if err := db.PutValidation(ctx, "x", "y", false, "NO - unrelated.", "oracle"); err != nil {
		t.Fatal(err)
	}
	entry, _, err := db.GetValidation(ctx, "x", "y")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Related {
		t.Error("upsert did not replace the verdict")
	}
}

func TestGetUserPreferences_Defaults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	prefs, err := db.GetUserPreferences(ctx, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if prefs == nil {
		t.Fatal("expected default preferences for unknown user")
	}
	if prefs.SimilarityWeight != 0 || prefs.HideWatched || prefs.FullFranchiseMode {
		t.Errorf("defaults = %+v, want zero values", prefs)
	}

	stored := &models.UserPreferences{
		UserID:           "alice",
		SimilarityWeight: 0.7,
		HideWatched:      true,
		DislikedItemIDs:  []string{"bad-movie"},
	}
	if err := db.UpsertUserPreferences(ctx, stored); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetUserPreferences(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.SimilarityWeight != 0.7 || !got.HideWatched {
		t.Errorf("stored preferences = %+v", got)
	}
	if len(got.DislikedItemIDs) != 1 || got.DislikedItemIDs[0] != "bad-movie" {
		t.Errorf("disliked ids = %v", got.DislikedItemIDs)
	}
}

func TestPairKey(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"a", "b", "a|b"},
		{"b", "a", "a|b"},
		{"same", "same", "same|same"},
	}
	for _, tt := range tests {
		if got := PairKey(tt.a, tt.b); got != tt.want {
			t.Errorf("PairKey(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
