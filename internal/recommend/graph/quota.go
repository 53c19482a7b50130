// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package graph

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/dgruhin-hrizn/aperture/internal/cache"
)

// CollectionQuota returns how many members of a collection may enter the
// graph, given the collection's total known size. Small collections are
// unlimited (reported as max=0, unlimited=true).
//
// Tiers: up to 5 members unlimited; 6-15 allows max(3, 50%); above 15
// allows 30% clamped to [5, 8].
func CollectionQuota(totalMembers int) (maxNodes int, unlimited bool) {
	switch {
	case totalMembers <= 5:
		return 0, true
	case totalMembers <= 15:
		half := int(math.Floor(float64(totalMembers) * 0.5))
		if half < 3 {
			half = 3
		}
		return half, false
	default:
		thirty := int(math.Floor(float64(totalMembers) * 0.3))
		if thirty < 5 {
			thirty = 5
		}
		if thirty > 8 {
			thirty = 8
		}
		return thirty, false
	}
}

// collectionSizes caches collection member counts for the duration of a
// few builds; counting a 1000-item collection per candidate would hammer
// the store.
type collectionSizes struct {
	library Library
	lru     *cache.LRU
	logger  zerolog.Logger
}

//nolint:gocritic // logger passed by value is acceptable for zerolog
func newCollectionSizes(library Library, ttl time.Duration, logger zerolog.Logger) *collectionSizes {
	return &collectionSizes{
		library: library,
		lru:     cache.NewLRU(256, ttl),
		logger:  logger.With().Str("component", "collection_sizes").Logger(),
	}
}

// size returns the cached member count for a collection, querying the
// library on a miss. Lookup failures are logged and reported as zero,
// which makes the quota unlimited; a degraded graph beats a failed one.
func (c *collectionSizes) size(ctx context.Context, collectionName string) int {
	if collectionName == "" {
		return 0
	}
	if v, ok := c.lru.Get(collectionName); ok {
		return v.(int)
	}

	n, err := c.library.CollectionSize(ctx, collectionName)
	if err != nil {
		c.logger.Warn().Err(err).Str("collection", collectionName).Msg("collection size lookup failed")
		return 0
	}
	c.lru.Set(collectionName, n)
	return n
}
