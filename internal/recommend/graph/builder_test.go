// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package graph

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/dgruhin-hrizn/aperture/internal/config"
	"github.com/dgruhin-hrizn/aperture/internal/database"
	"github.com/dgruhin-hrizn/aperture/internal/logging"
	"github.com/dgruhin-hrizn/aperture/internal/models"
	"github.com/dgruhin-hrizn/aperture/internal/vector"
)

// fakeLibrary is an in-memory Library for builder tests.
type fakeLibrary struct {
	items map[string]*models.MediaItem
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{items: make(map[string]*models.MediaItem)}
}

func (f *fakeLibrary) add(item *models.MediaItem) {
	f.items[item.ID] = item
}

func (f *fakeLibrary) GetMediaItem(_ context.Context, itemID string) (*models.MediaItem, bool, error) {
	item, ok := f.items[itemID]
	return item, ok, nil
}

func (f *fakeLibrary) GetMediaItems(_ context.Context, itemIDs []string) (map[string]*models.MediaItem, error) {
	out := make(map[string]*models.MediaItem)
	for _, id := range itemIDs {
		if item, ok := f.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (f *fakeLibrary) CollectionSize(_ context.Context, collectionName string) (int, error) {
	n := 0
	for _, item := range f.items {
		if item.CollectionName == collectionName {
			n++
		}
	}
	return n, nil
}

func (f *fakeLibrary) ListTitles(_ context.Context) ([]models.TitleRef, error) {
	refs := make([]models.TitleRef, 0, len(f.items))
	for _, item := range f.items {
		refs = append(refs, models.TitleRef{
			ID: item.ID, Title: item.Title, Year: item.Year, CollectionName: item.CollectionName,
		})
	}
	return refs, nil
}

func testGraphConfig() config.GraphConfig {
	return config.GraphConfig{
		DefaultDepth:       2,
		DefaultLimit:       6,
		BubbleThreshold:    0.5,
		CollectionCacheTTL: time.Minute,
	}
}

// seedFranchiseLibrary builds a library with a 26-title collection plus
// unaffiliated items, all embedded near the seed so retrieval alone would
// flood the graph with franchise members.
func seedFranchiseLibrary(t *testing.T) (*fakeLibrary, *vector.MemoryStore) {
	t.Helper()
	lib := newFakeLibrary()
	vs := vector.NewMemoryStore(logging.NewTestLogger(io.Discard))

	upsert := func(id string, vec []float64) {
		t.Helper()
		if err := vs.Upsert(id, vec, ""); err != nil {
			t.Fatal(err)
		}
	}

	lib.add(&models.MediaItem{
		ID: "seed", Title: "Galaxy Saga Episode 1", Type: models.MediaTypeMovie,
		CollectionName: "Galaxy Saga", Genres: []string{"Sci-Fi", "Adventure"},
	})
	upsert("seed", []float64{1, 0, 0})

	// 25 more franchise titles, closest to the seed.
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("saga-%02d", i)
		lib.add(&models.MediaItem{
			ID: id, Title: fmt.Sprintf("Galaxy Saga Episode %d", i+2), Type: models.MediaTypeMovie,
			CollectionName: "Galaxy Saga", Genres: []string{"Sci-Fi", "Adventure"},
		})
		upsert(id, []float64{1, 0.001 * float64(i+1), 0})
	}

	// Unaffiliated items slightly farther out.
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("other-%02d", i)
		lib.add(&models.MediaItem{
			ID: id, Title: fmt.Sprintf("Standalone %d", i), Type: models.MediaTypeMovie,
			Genres: []string{"Sci-Fi"},
		})
		upsert(id, []float64{1, 0.2 + 0.01*float64(i), 0.1})
	}

	return lib, vs
}

func TestBuilder_FranchiseQuota(t *testing.T) {
	lib, vs := seedFranchiseLibrary(t)
	b := NewBuilder(lib, vs, newFakeCache(), nil, testGraphConfig(), logging.NewTestLogger(io.Discard))

	g, err := b.Build(context.Background(), "seed", Options{Depth: 2, Limit: 6})
	if err != nil {
		t.Fatal(err)
	}

	if g.Nodes[0].ID != "seed" || !g.Nodes[0].IsCenter {
		t.Error("seed must be the first node and marked isCenter")
	}
	centers := 0
	franchise := 0
	for _, node := range g.Nodes {
		if node.IsCenter {
			centers++
		}
		if node.ID != "seed" {
			item := lib.items[node.ID]
			if item.CollectionName == "Galaxy Saga" {
				franchise++
			}
		}
	}
	if centers != 1 {
		t.Errorf("center nodes = %d, want 1", centers)
	}

	// 26 known members, 30% clamped to [5,8] gives a quota of 7; the
	// property bound is 8.
	if franchise > 8 {
		t.Errorf("franchise members in graph = %d, want at most 8", franchise)
	}
	if len(g.Nodes) > depth2NodeCap {
		t.Errorf("nodes = %d, exceeds depth-2 cap %d", len(g.Nodes), depth2NodeCap)
	}
}

func TestBuilder_EdgeUniqueness(t *testing.T) {
	lib, vs := seedFranchiseLibrary(t)
	b := NewBuilder(lib, vs, newFakeCache(), nil, testGraphConfig(), logging.NewTestLogger(io.Discard))

	g, err := b.Build(context.Background(), "seed", Options{Depth: 2, Limit: 6})
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]struct{})
	for _, e := range g.Edges {
		key := database.PairKey(e.Source, e.Target)
		if _, dup := seen[key]; dup {
			t.Errorf("duplicate edge for unordered pair %s", key)
		}
		seen[key] = struct{}{}
	}
}

func TestBuilder_FullFranchiseModeDisablesQuota(t *testing.T) {
	lib, vs := seedFranchiseLibrary(t)
	b := NewBuilder(lib, vs, newFakeCache(), nil, testGraphConfig(), logging.NewTestLogger(io.Discard))

	prefs := &models.UserPreferences{FullFranchiseMode: true}
	g, err := b.Build(context.Background(), "seed", Options{Depth: 2, Limit: 6, Prefs: prefs})
	if err != nil {
		t.Fatal(err)
	}

	franchise := 0
	for _, node := range g.Nodes {
		if node.ID == "seed" {
			continue
		}
		if lib.items[node.ID].CollectionName == "Galaxy Saga" {
			franchise++
		}
	}
	if franchise <= 8 {
		t.Errorf("full franchise mode should exceed the quota, got %d members", franchise)
	}
}

func TestBuilder_HideWatched(t *testing.T) {
	lib, vs := seedFranchiseLibrary(t)
	b := NewBuilder(lib, vs, newFakeCache(), nil, testGraphConfig(), logging.NewTestLogger(io.Discard))

	watched := map[string]struct{}{
		"saga-00": {}, "saga-01": {}, "seed": {},
	}
	prefs := &models.UserPreferences{HideWatched: true}
	g, err := b.Build(context.Background(), "seed", Options{Depth: 2, Limit: 6, Prefs: prefs, WatchedIDs: watched})
	if err != nil {
		t.Fatal(err)
	}

	foundSeed := false
	for _, node := range g.Nodes {
		switch node.ID {
		case "seed":
			foundSeed = true
		case "saga-00", "saga-01":
			t.Errorf("watched item %s should be hidden", node.ID)
		}
	}
	if !foundSeed {
		t.Error("the seed must never be hidden, even when watched")
	}
}

func TestBuilder_SeedWithoutEmbedding(t *testing.T) {
	lib := newFakeLibrary()
	lib.add(&models.MediaItem{ID: "lonely", Title: "Lonely", Type: models.MediaTypeMovie})
	vs := vector.NewMemoryStore(logging.NewTestLogger(io.Discard))

	b := NewBuilder(lib, vs, newFakeCache(), nil, testGraphConfig(), logging.NewTestLogger(io.Discard))
	g, err := b.Build(context.Background(), "lonely", Options{Depth: 2, Limit: 6})
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 1 || !g.Nodes[0].IsCenter {
		t.Errorf("expected single-center graph, got %d nodes", len(g.Nodes))
	}
	if len(g.Edges) != 0 {
		t.Errorf("expected no edges, got %d", len(g.Edges))
	}
}

func TestBuilder_BubbleEscapeAddsOutOfFranchiseNodes(t *testing.T) {
	// A library where level 2 stalls: the only remaining franchise title
	// is quota-blocked and the westerns fail the genre gate, so the
	// dominated graph gains fewer than 2 nodes and the escape fires.
	lib := newFakeLibrary()
	vs := vector.NewMemoryStore(logging.NewTestLogger(io.Discard))
	upsert := func(id string, vec []float64) {
		t.Helper()
		if err := vs.Upsert(id, vec, ""); err != nil {
			t.Fatal(err)
		}
	}

	lib.add(&models.MediaItem{
		ID: "seed", Title: "Galaxy Saga Episode 1", Type: models.MediaTypeMovie,
		CollectionName: "Galaxy Saga", Genres: []string{"Sci-Fi"},
	})
	upsert("seed", []float64{1, 0, 0})
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("saga-%02d", i)
		lib.add(&models.MediaItem{
			ID: id, Title: fmt.Sprintf("Galaxy Saga Episode %d", i+2), Type: models.MediaTypeMovie,
			CollectionName: "Galaxy Saga", Genres: []string{"Sci-Fi"},
		})
		upsert(id, []float64{1, 0.001 * float64(i+1), 0})
	}
	lib.add(&models.MediaItem{ID: "west-1", Title: "Dusty Trails", Type: models.MediaTypeMovie, Genres: []string{"Western"}})
	upsert("west-1", []float64{0.5, 0.5, 0.5})
	lib.add(&models.MediaItem{ID: "west-2", Title: "High Noon Rides", Type: models.MediaTypeMovie, Genres: []string{"Western"}})
	upsert("west-2", []float64{0.4, 0.6, 0.5})

	oracle := &fakeOracle{answers: []string{"Dusty Trails\nHigh Noon Rides\nNot In Library"}}
	b := NewBuilder(lib, vs, newFakeCache(), oracle, testGraphConfig(), logging.NewTestLogger(io.Discard))

	g, err := b.Build(context.Background(), "seed", Options{Depth: 2, Limit: 6})
	if err != nil {
		t.Fatal(err)
	}

	if !g.Bubbled {
		t.Fatal("expected a detected bubble")
	}
	if g.DominantCollection != "Galaxy Saga" {
		t.Errorf("dominant collection = %q, want Galaxy Saga", g.DominantCollection)
	}

	escaped := 0
	for _, e := range g.Edges {
		for _, r := range e.Reasons {
			if r == ReasonAIDiverse {
				escaped++
				if e.Source != "seed" && e.Target != "seed" {
					t.Error("escape edges must connect directly to the seed")
				}
				if e.Similarity != aiEscapeSimilarity {
					t.Errorf("escape edge similarity = %f, want %f", e.Similarity, aiEscapeSimilarity)
				}
			}
		}
	}
	if escaped != 2 {
		t.Errorf("escape edges = %d, want 2 matched suggestions", escaped)
	}
}
