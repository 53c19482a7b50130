// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package recommend

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/dgruhin-hrizn/aperture/internal/logging"
	"github.com/dgruhin-hrizn/aperture/internal/models"
	"github.com/dgruhin-hrizn/aperture/internal/vector"
)

func testVectorStore(t *testing.T) *vector.MemoryStore {
	t.Helper()
	return vector.NewMemoryStore(logging.NewTestLogger(io.Discard))
}

func floatPtr(f float64) *float64 { return &f }

func TestProfileBuilder_UnitNorm(t *testing.T) {
	vs := testVectorStore(t)
	if err := vs.Upsert("a", []float64{1, 0, 0}, ""); err != nil {
		t.Fatal(err)
	}
	if err := vs.Upsert("b", []float64{0, 1, 0}, ""); err != nil {
		t.Fatal(err)
	}

	b := NewProfileBuilder(vs, logging.NewTestLogger(io.Discard))
	profile, err := b.Build(context.Background(), []models.WatchHistoryEntry{
		{ItemID: "a", PlayCount: 1},
		{ItemID: "b", PlayCount: 3, IsFavorite: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	if profile.SourceCount != 2 {
		t.Errorf("SourceCount = %d, want 2", profile.SourceCount)
	}
	if norm := vector.Norm(profile.Vector); math.Abs(norm-1.0) > 1e-9 {
		t.Errorf("profile norm = %f, want 1.0", norm)
	}
	// The favorite with repeat plays should dominate the blend.
	if profile.Vector[1] <= profile.Vector[0] {
		t.Errorf("expected favorite item to dominate: %v", profile.Vector)
	}
}

func TestProfileBuilder_Deterministic(t *testing.T) {
	vs := testVectorStore(t)
	if err := vs.Upsert("a", []float64{0.3, 0.7, 0.1}, ""); err != nil {
		t.Fatal(err)
	}
	if err := vs.Upsert("b", []float64{0.5, 0.2, 0.9}, ""); err != nil {
		t.Fatal(err)
	}

	history := []models.WatchHistoryEntry{
		{ItemID: "a", PlayCount: 2, UserRating: floatPtr(8)},
		{ItemID: "b", PlayCount: 1},
	}
	b := NewProfileBuilder(vs, logging.NewTestLogger(io.Discard))

	first, err := b.Build(context.Background(), history)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Build(context.Background(), history)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first.Vector {
		if first.Vector[i] != second.Vector[i] {
			t.Fatalf("non-deterministic profile at dim %d", i)
		}
	}
}

func TestProfileBuilder_NoEmbeddings(t *testing.T) {
	b := NewProfileBuilder(testVectorStore(t), logging.NewTestLogger(io.Discard))

	history := []models.WatchHistoryEntry{
		{ItemID: "x", PlayCount: 1},
		{ItemID: "y", PlayCount: 5, IsFavorite: true},
	}
	if _, err := b.Build(context.Background(), history); !errors.Is(err, ErrNoProfile) {
		t.Errorf("Build() error = %v, want ErrNoProfile", err)
	}

	if _, err := b.Build(context.Background(), nil); !errors.Is(err, ErrNoProfile) {
		t.Errorf("Build() with empty history error = %v, want ErrNoProfile", err)
	}
}

func TestEntryWeight(t *testing.T) {
	tests := []struct {
		name  string
		entry models.WatchHistoryEntry
		want  float64
	}{
		{"plain single play", models.WatchHistoryEntry{PlayCount: 1}, 1.0},
		{"low rating never drops below default", models.WatchHistoryEntry{PlayCount: 1, UserRating: floatPtr(2)}, 1.0},
		{"high rating raises", models.WatchHistoryEntry{PlayCount: 1, UserRating: floatPtr(10)}, 2.0},
		{"favorite multiplies", models.WatchHistoryEntry{PlayCount: 1, IsFavorite: true}, 1.5},
		{"repeat plays add log bonus", models.WatchHistoryEntry{PlayCount: 4}, 1.0 + math.Log2(4)*playCountFactor},
		{
			"all signals combine",
			models.WatchHistoryEntry{PlayCount: 2, IsFavorite: true, UserRating: floatPtr(10)},
			2.0*favoriteMultiplier + math.Log2(2)*playCountFactor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entryWeight(&tt.entry); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("entryWeight() = %f, want %f", got, tt.want)
			}
		})
	}
}
