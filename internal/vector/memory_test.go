// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package vector

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/dgruhin-hrizn/aperture/internal/logging"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	return NewMemoryStore(logging.NewTestLogger(io.Discard))
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 0}, []float64{1, 0}, 1.0},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0.0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1.0},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0.0},
		{"dimension mismatch", []float64{1, 0}, []float64{1, 0, 0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float64{3, 4})
	if v == nil {
		t.Fatal("Normalize() returned nil for non-zero vector")
	}
	if math.Abs(Norm(v)-1.0) > 1e-9 {
		t.Errorf("norm after Normalize() = %f, want 1.0", Norm(v))
	}

	if Normalize([]float64{0, 0}) != nil {
		t.Error("Normalize() of zero vector should be nil")
	}
}

func TestMemoryStore_NearestNeighbors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Axis-aligned items with known similarities to the query [1, 0].
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.Upsert("exact", []float64{1, 0}, ""))
	must(s.Upsert("close", []float64{0.9, 0.1}, ""))
	must(s.Upsert("orthogonal", []float64{0, 1}, ""))
	must(s.Upsert("opposite", []float64{-1, 0}, ""))
	must(s.Upsert("adult", []float64{0.95, 0.05}, "NC-17"))
	must(s.Upsert("unrated", []float64{0.8, 0.2}, ""))

	t.Run("ordered by descending similarity", func(t *testing.T) {
		got, err := s.NearestNeighbors(ctx, []float64{1, 0}, Filter{}, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 6 {
			t.Fatalf("got %d neighbors, want 6", len(got))
		}
		if got[0].ItemID != "exact" {
			t.Errorf("first neighbor = %s, want exact", got[0].ItemID)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Similarity > got[i-1].Similarity {
				t.Errorf("neighbors not ordered at index %d", i)
			}
		}
	})

	t.Run("exclusion set honored", func(t *testing.T) {
		filter := Filter{Exclude: map[string]struct{}{"exact": {}, "adult": {}}}
		got, err := s.NearestNeighbors(ctx, []float64{1, 0}, filter, 10)
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range got {
			if n.ItemID == "exact" || n.ItemID == "adult" {
				t.Errorf("excluded item %s returned", n.ItemID)
			}
		}
	})

	t.Run("content rating ceiling", func(t *testing.T) {
		got, err := s.NearestNeighbors(ctx, []float64{1, 0}, Filter{MaxContentRating: "R"}, 10)
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range got {
			if n.ItemID == "adult" {
				t.Error("NC-17 item returned under R ceiling")
			}
			if n.ItemID == "unrated" {
				t.Error("unrated item returned under a set ceiling")
			}
		}
	})

	t.Run("unrated passes without ceiling", func(t *testing.T) {
		got, err := s.NearestNeighbors(ctx, []float64{1, 0}, Filter{}, 10)
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, n := range got {
			found = found || n.ItemID == "unrated"
		}
		if !found {
			t.Error("unrated item missing when no ceiling is set")
		}
	})

	t.Run("limit respected", func(t *testing.T) {
		got, err := s.NearestNeighbors(ctx, []float64{1, 0}, Filter{}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Errorf("got %d neighbors, want 2", len(got))
		}
	})

	t.Run("empty store yields empty result", func(t *testing.T) {
		empty := newTestStore(t)
		got, err := empty.NearestNeighbors(ctx, []float64{1, 0}, Filter{}, 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("got %d neighbors from empty store, want 0", len(got))
		}
	})

	t.Run("zero-norm query rejected", func(t *testing.T) {
		if _, err := s.NearestNeighbors(ctx, []float64{0, 0}, Filter{}, 5); err == nil {
			t.Error("expected error for zero-norm query")
		}
	})
}

func TestMemoryStore_GetVector(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert("a", []float64{3, 4}, ""); err != nil {
		t.Fatal(err)
	}

	vec, ok, err := s.GetVector(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("GetVector(a) = ok=%v err=%v", ok, err)
	}
	if math.Abs(Norm(vec)-1.0) > 1e-9 {
		t.Errorf("stored vector not unit length: %f", Norm(vec))
	}

	if _, ok, _ := s.GetVector(ctx, "missing"); ok {
		t.Error("GetVector(missing) reported ok")
	}
}
