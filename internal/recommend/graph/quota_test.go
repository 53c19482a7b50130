// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package graph

import "testing"

func TestCollectionQuota(t *testing.T) {
	tests := []struct {
		name          string
		members       int
		wantMax       int
		wantUnlimited bool
	}{
		{"tiny collection unlimited", 3, 0, true},
		{"boundary five unlimited", 5, 0, true},
		{"six members", 6, 3, false},
		{"ten members takes half", 10, 5, false},
		{"fifteen members", 15, 7, false},
		{"sixteen members hits floor", 16, 5, false},
		{"twenty members", 20, 6, false},
		{"twenty-six members", 26, 7, false},
		{"huge collection hits ceiling", 100, 8, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMax, gotUnlimited := CollectionQuota(tt.members)
			if gotMax != tt.wantMax || gotUnlimited != tt.wantUnlimited {
				t.Errorf("CollectionQuota(%d) = (%d, %v), want (%d, %v)",
					tt.members, gotMax, gotUnlimited, tt.wantMax, tt.wantUnlimited)
			}
		})
	}
}

func TestAnalyzeBubble(t *testing.T) {
	t.Run("seven of ten dominate", func(t *testing.T) {
		collections := make(map[string]string)
		for i := 0; i < 7; i++ {
			collections[nodeID(i)] = "Big Franchise"
		}
		collections[nodeID(7)] = "Other"
		collections[nodeID(8)] = ""
		collections[nodeID(9)] = ""

		a := AnalyzeBubble(collections, 0.5)
		if !a.IsBubbled {
			t.Error("expected bubble at 7/10 with threshold 0.5")
		}
		if a.DominantCollection != "Big Franchise" {
			t.Errorf("dominant = %q, want Big Franchise", a.DominantCollection)
		}
	})

	t.Run("below threshold", func(t *testing.T) {
		collections := map[string]string{
			"a": "One", "b": "One", "c": "Two", "d": "Three", "e": "",
		}
		if a := AnalyzeBubble(collections, 0.5); a.IsBubbled {
			t.Errorf("unexpected bubble: %+v", a)
		}
	})

	t.Run("no collections at all", func(t *testing.T) {
		collections := map[string]string{"a": "", "b": ""}
		a := AnalyzeBubble(collections, 0.5)
		if a.IsBubbled || a.DominantCollection != "" {
			t.Errorf("unexpected analysis: %+v", a)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if a := AnalyzeBubble(nil, 0.5); a.IsBubbled {
			t.Errorf("unexpected bubble on empty input: %+v", a)
		}
	})
}

func nodeID(i int) string {
	return string(rune('a' + i))
}
