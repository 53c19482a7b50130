// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package graph

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/dgruhin-hrizn/aperture/internal/database"
	"github.com/dgruhin-hrizn/aperture/internal/logging"
	"github.com/dgruhin-hrizn/aperture/internal/models"
)

// fakeCache keys entries canonically, matching the persistent store.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*models.ValidationEntry
	puts    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*models.ValidationEntry)}
}

func (f *fakeCache) GetValidation(_ context.Context, a, b string) (*models.ValidationEntry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[database.PairKey(a, b)]
	return e, ok, nil
}

func (f *fakeCache) PutValidation(_ context.Context, a, b string, related bool, reason, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.entries[database.PairKey(a, b)] = &models.ValidationEntry{
		PairKey: database.PairKey(a, b), ItemA: a, ItemB: b,
		Related: related, Reason: reason, Source: source,
	}
	return nil
}

// fakeOracle returns canned answers in order, then repeats the last one.
type fakeOracle struct {
	mu      sync.Mutex
	answers []string
	err     error
	calls   int
}

func (f *fakeOracle) Classify(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.answers) {
		idx = len(f.answers) - 1
	}
	return f.answers[idx], nil
}

func item(id, title, collection string, genres ...string) *models.MediaItem {
	return &models.MediaItem{
		ID: id, Title: title, CollectionName: collection, Genres: genres, Type: models.MediaTypeMovie,
	}
}

func newTestValidator(cache CacheStore, oracle *fakeOracle) *Validator {
	logger := logging.NewTestLogger(io.Discard)
	if oracle == nil {
		return NewValidator(cache, nil, logger)
	}
	return NewValidator(cache, oracle, logger)
}

func TestValidator_GenreGate(t *testing.T) {
	v := newTestValidator(newFakeCache(), nil)

	valid, reason := v.Validate(context.Background(),
		item("a", "Heat", "", "Crime", "Thriller"),
		item("b", "Toy Story", "", "Animation", "Family"))
	if valid {
		t.Errorf("pair with zero shared genres should be rejected, got reason %q", reason)
	}

	valid, _ = v.Validate(context.Background(),
		item("a", "Heat", "", "Crime", "Thriller"),
		item("b", "Se7en", "", "thriller"))
	if !valid {
		t.Error("case-insensitive shared genre should pass")
	}
}

func TestValidator_SequelPatternFilter(t *testing.T) {
	v := newTestValidator(newFakeCache(), nil)

	// Same "Returns" decoration, unrelated cores, shared genre: still
	// rejected by the title filter before anything else runs.
	valid, _ := v.Validate(context.Background(),
		item("a", "Batman Returns", "", "Action"),
		item("b", "The Mummy Returns", "", "Action"))
	if valid {
		t.Error("unrelated titles with matching sequel pattern should be rejected")
	}

	// Related cores survive the filter.
	valid, _ = v.Validate(context.Background(),
		item("a", "Rocky II", "", "Drama"),
		item("b", "Rocky III", "", "Drama"))
	if !valid {
		t.Error("same-core sequels should pass")
	}
}

func TestValidator_CollectionChain(t *testing.T) {
	t.Run("same collection passes without oracle", func(t *testing.T) {
		v := newTestValidator(newFakeCache(), nil)
		valid, _ := v.Validate(context.Background(),
			item("a", "Iron Man", "Iron Man Collection", "Action"),
			item("b", "Iron Man 2", "Iron Man Collection", "Action"))
		if !valid {
			t.Error("same-collection pair should not need the oracle")
		}
	})

	t.Run("alias group collections pass", func(t *testing.T) {
		v := newTestValidator(newFakeCache(), nil)
		valid, _ := v.Validate(context.Background(),
			item("a", "Iron Man", "Iron Man Collection", "Action"),
			item("b", "Thor", "Thor Collection", "Action"))
		if !valid {
			t.Error("franchise alias collections should be related")
		}
	})

	t.Run("cross-collection without oracle rejects", func(t *testing.T) {
		v := newTestValidator(newFakeCache(), nil)
		valid, _ := v.Validate(context.Background(),
			item("a", "Alien", "Alien Saga", "Sci-Fi"),
			item("b", "Star Trek", "Star Trek Films", "Sci-Fi"))
		if valid {
			t.Error("ambiguous cross-collection pair must reject without an oracle")
		}
	})
}

func TestValidator_OracleAndCache(t *testing.T) {
	cache := newFakeCache()
	oracle := &fakeOracle{answers: []string{"YES - both are classic space operas."}}
	v := newTestValidator(cache, oracle)

	src := item("a", "Alien", "Alien Saga", "Sci-Fi")
	dst := item("b", "Star Trek", "Star Trek Films", "Sci-Fi")

	valid, _ := v.Validate(context.Background(), src, dst)
	if !valid {
		t.Fatal("affirmative oracle answer should validate the pair")
	}
	if oracle.calls != 1 {
		t.Fatalf("oracle calls = %d, want 1", oracle.calls)
	}
	if cache.puts != 1 {
		t.Fatalf("cache puts = %d, want 1", cache.puts)
	}
	if e := cache.entries[database.PairKey("a", "b")]; e.Reason == "" {
		t.Error("cached entry should carry the oracle's justification")
	}

	// Reversed order must hit the cache, not the oracle.
	valid, reason := v.Validate(context.Background(), dst, src)
	if !valid {
		t.Error("cached verdict should validate the reversed pair")
	}
	if reason != "cached verdict" {
		t.Errorf("reason = %q, want cached verdict", reason)
	}
	if oracle.calls != 1 {
		t.Errorf("oracle calls = %d after cache hit, want still 1", oracle.calls)
	}
}

func TestValidator_OracleFailureRejects(t *testing.T) {
	v := newTestValidator(newFakeCache(), &fakeOracle{err: errors.New("timeout")})

	valid, _ := v.Validate(context.Background(),
		item("a", "Alien", "Alien Saga", "Sci-Fi"),
		item("b", "Star Trek", "Star Trek Films", "Sci-Fi"))
	if valid {
		t.Error("oracle failure must reject, never crash or accept")
	}
}

func TestParseYesNo(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"YES - related.", true},
		{"yes, they share a director", true},
		{"NO - unrelated.", false},
		{"Maybe?", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := parseYesNo(tt.answer); got != tt.want {
			t.Errorf("parseYesNo(%q) = %v, want %v", tt.answer, got, tt.want)
		}
	}
}
