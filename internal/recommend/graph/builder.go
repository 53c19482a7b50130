// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package graph

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dgruhin-hrizn/aperture/internal/config"
	"github.com/dgruhin-hrizn/aperture/internal/database"
	"github.com/dgruhin-hrizn/aperture/internal/llm"
	"github.com/dgruhin-hrizn/aperture/internal/metrics"
	"github.com/dgruhin-hrizn/aperture/internal/models"
	"github.com/dgruhin-hrizn/aperture/internal/vector"
)

// Node caps by requested depth, and the over-fetch factor applied to
// per-node neighbor queries at level 2 and deeper (quotas and validation
// discard many candidates).
const (
	depth2NodeCap   = 25
	depth3NodeCap   = 45
	overFetchFactor = 3
)

// Builder expands the similarity graph around a seed item.
type Builder struct {
	library   Library
	vectors   vector.Store
	validator *Validator
	escape    *escaper
	collSizes *collectionSizes
	cfg       config.GraphConfig
	logger    zerolog.Logger
}

// NewBuilder wires a graph builder. oracle may be nil, which disables
// oracle-backed validation and bubble escape.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBuilder(library Library, vectors vector.Store, cacheStore CacheStore, oracle llm.Oracle, cfg config.GraphConfig, logger zerolog.Logger) *Builder {
	return &Builder{
		library:   library,
		vectors:   vectors,
		validator: NewValidator(cacheStore, oracle, logger),
		escape:    newEscaper(library, oracle, logger),
		collSizes: newCollectionSizes(library, cfg.CollectionCacheTTL, logger),
		cfg:       cfg,
		logger:    logger.With().Str("component", "graph_builder").Logger(),
	}
}

// build carries the mutable state of one expansion.
type build struct {
	opts  Options
	seed  *models.MediaItem
	nodes []Node
	edges []Edge

	items       map[string]*models.MediaItem // all node metadata, seed included
	edgeKeys    map[string]struct{}          // unordered pair dedupe
	nodeIDs     map[string]struct{}
	collCounts  map[string]int // graph members per collection, seed excluded
	bubbled     bool
	dominant    string
	hideWatched bool
	noQuotas    bool
}

// Build expands the graph for a seed item. The seed is always present,
// marked IsCenter, exempt from quotas and the hide-watched preference.
func (b *Builder) Build(ctx context.Context, seedID string, opts Options) (*Graph, error) {
	if opts.Depth <= 0 {
		opts.Depth = b.cfg.DefaultDepth
	}
	if opts.Depth > 3 {
		opts.Depth = 3
	}
	if opts.Limit <= 0 {
		opts.Limit = b.cfg.DefaultLimit
	}

	seed, ok, err := b.library.GetMediaItem(ctx, seedID)
	if err != nil {
		return nil, fmt.Errorf("load seed item: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("seed item %s not found", seedID)
	}

	st := &build{
		opts:       opts,
		seed:       seed,
		items:      map[string]*models.MediaItem{seed.ID: seed},
		edgeKeys:   make(map[string]struct{}),
		nodeIDs:    map[string]struct{}{seed.ID: {}},
		collCounts: make(map[string]int),
	}
	if opts.Prefs != nil {
		st.hideWatched = opts.Prefs.HideWatched
		st.noQuotas = opts.Prefs.FullFranchiseMode
	}
	st.nodes = append(st.nodes, Node{
		ID: seed.ID, Title: seed.Title, Year: seed.Year, Type: seed.Type, IsCenter: true,
	})

	frontier, err := b.expandSeed(ctx, st)
	if err != nil {
		return nil, err
	}
	b.detectBubble(ctx, st, len(frontier))

	for level := 2; level <= opts.Depth; level++ {
		budget := nodeCap(opts.Depth, opts.Limit)
		if len(st.nodes) >= budget {
			break
		}
		next, err := b.expandLevel(ctx, st, frontier, level, budget)
		if err != nil {
			return nil, err
		}
		b.detectBubble(ctx, st, len(next))
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	metrics.GraphNodes.Observe(float64(len(st.nodes)))
	metrics.GraphEdges.Observe(float64(len(st.edges)))
	b.logger.Debug().
		Str("seed", seedID).
		Int("nodes", len(st.nodes)).
		Int("edges", len(st.edges)).
		Bool("bubbled", st.bubbled).
		Msg("similarity graph built")

	return &Graph{
		Nodes:              st.nodes,
		Edges:              st.edges,
		Bubbled:            st.bubbled,
		DominantCollection: st.dominant,
	}, nil
}

// expandSeed runs level 1: the seed's top-limit neighbors all become
// nodes with a direct edge, subject only to the hide-watched preference,
// while per-collection counts start tracking.
func (b *Builder) expandSeed(ctx context.Context, st *build) ([]string, error) {
	seedVec, ok, err := b.vectors.GetVector(ctx, st.seed.ID)
	if err != nil {
		return nil, fmt.Errorf("seed vector: %w", err)
	}
	if !ok {
		// A seed without an embedding yields a single-node graph.
		b.logger.Warn().Str("seed", st.seed.ID).Msg("seed has no embedding")
		return nil, nil
	}

	neighbors, err := b.vectors.NearestNeighbors(ctx, seedVec, vector.Filter{
		Exclude: map[string]struct{}{st.seed.ID: {}},
	}, st.opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("seed neighbors: %w", err)
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ItemID
	}
	items, err := b.library.GetMediaItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate level 1: %w", err)
	}

	var frontier []string
	for _, n := range neighbors {
		item, ok := items[n.ItemID]
		if !ok {
			continue
		}
		if st.skipWatched(item.ID) {
			continue
		}
		st.addNode(item)
		st.addEdge(st.seed.ID, item.ID, n.Similarity, edgeReasons(st.seed, item))
		frontier = append(frontier, item.ID)
	}
	return frontier, nil
}

// expandLevel runs one level >= 2: each frontier node gets an over-fetched
// neighbor set, and every candidate passes dedupe, the collection quota
// and connection validation before joining the graph.
func (b *Builder) expandLevel(ctx context.Context, st *build, frontier []string, level, budget int) ([]string, error) {
	perNode := st.opts.Limit * overFetchFactor
	var next []string

	for _, nodeID := range frontier {
		if len(st.nodes) >= budget {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		source := st.items[nodeID]
		vec, ok, err := b.vectors.GetVector(ctx, nodeID)
		if err != nil || !ok {
			if err != nil {
				b.logger.Warn().Err(err).Str("item_id", nodeID).Msg("frontier vector lookup failed")
			}
			continue
		}

		neighbors, err := b.vectors.NearestNeighbors(ctx, vec, vector.Filter{
			Exclude: st.nodeIDs,
		}, perNode)
		if err != nil {
			b.logger.Warn().Err(err).Str("item_id", nodeID).Msg("neighbor query failed")
			continue
		}

		ids := make([]string, len(neighbors))
		for i, n := range neighbors {
			ids[i] = n.ItemID
		}
		items, err := b.library.GetMediaItems(ctx, ids)
		if err != nil {
			b.logger.Warn().Err(err).Str("item_id", nodeID).Msg("neighbor hydration failed")
			continue
		}

		for _, n := range neighbors {
			if len(st.nodes) >= budget {
				break
			}
			candidate, ok := items[n.ItemID]
			if !ok {
				continue
			}
			if _, exists := st.nodeIDs[candidate.ID]; exists {
				continue
			}
			if st.skipWatched(candidate.ID) {
				continue
			}
			if !st.noQuotas && b.quotaExceeded(ctx, st, candidate) {
				continue
			}

			valid, reason := b.validator.Validate(ctx, source, candidate)
			if !valid {
				b.logger.Debug().
					Str("source", source.ID).
					Str("target", candidate.ID).
					Str("reason", reason).
					Int("level", level).
					Msg("connection rejected")
				continue
			}

			st.addNode(candidate)
			st.addEdge(source.ID, candidate.ID, n.Similarity, edgeReasons(source, candidate))
			next = append(next, candidate.ID)
		}
	}
	return next, nil
}

// quotaExceeded checks the candidate's collection against its quota.
func (b *Builder) quotaExceeded(ctx context.Context, st *build, candidate *models.MediaItem) bool {
	if candidate.CollectionName == "" {
		return false
	}
	maxNodes, unlimited := CollectionQuota(b.collSizes.size(ctx, candidate.CollectionName))
	if unlimited {
		return false
	}
	return st.collCounts[candidate.CollectionName] >= maxNodes
}

// detectBubble analyzes collection domination after a level and, when the
// graph is bubbled and the level stalled, pulls in oracle-suggested
// out-of-bubble titles connected directly to the seed.
func (b *Builder) detectBubble(ctx context.Context, st *build, newNodes int) {
	collections := make(map[string]string, len(st.nodes)-1)
	for _, node := range st.nodes {
		if node.IsCenter {
			continue
		}
		if item, ok := st.items[node.ID]; ok {
			collections[node.ID] = item.CollectionName
		}
	}

	analysis := AnalyzeBubble(collections, b.cfg.BubbleThreshold)
	if !analysis.IsBubbled {
		return
	}
	st.bubbled = true
	st.dominant = analysis.DominantCollection
	if newNodes >= 2 {
		return
	}

	seen := make([]string, 0, len(st.nodes))
	for _, node := range st.nodes {
		seen = append(seen, node.Title)
	}
	for _, ref := range b.escape.suggest(ctx, st.seed, seen, analysis.DominantCollection) {
		if _, exists := st.nodeIDs[ref.ID]; exists {
			continue
		}
		if st.skipWatched(ref.ID) {
			continue
		}
		item, ok, err := b.library.GetMediaItem(ctx, ref.ID)
		if err != nil || !ok {
			continue
		}
		st.addNode(item)
		st.addEdge(st.seed.ID, item.ID, aiEscapeSimilarity, []string{ReasonAIDiverse})
	}
}

func (st *build) skipWatched(itemID string) bool {
	if !st.hideWatched || itemID == st.seed.ID {
		return false
	}
	_, watched := st.opts.WatchedIDs[itemID]
	return watched
}

func (st *build) addNode(item *models.MediaItem) {
	st.nodes = append(st.nodes, Node{
		ID: item.ID, Title: item.Title, Year: item.Year, Type: item.Type,
	})
	st.nodeIDs[item.ID] = struct{}{}
	st.items[item.ID] = item
	if item.CollectionName != "" {
		st.collCounts[item.CollectionName]++
	}
}

func (st *build) addEdge(source, target string, similarity float64, reasons []string) {
	key := database.PairKey(source, target)
	if _, exists := st.edgeKeys[key]; exists {
		return
	}
	st.edgeKeys[key] = struct{}{}
	st.edges = append(st.edges, Edge{
		Source: source, Target: target, Similarity: similarity, Reasons: reasons,
	})
}

func edgeReasons(a, b *models.MediaItem) []string {
	reasons := []string{ReasonVectorSimilarity}
	if a.CollectionName != "" && a.CollectionName == b.CollectionName {
		reasons = append(reasons, ReasonSameCollection)
	}
	return reasons
}

// nodeCap is the total node budget for a requested depth.
func nodeCap(depth, limit int) int {
	switch {
	case depth <= 1:
		return limit + 1
	case depth == 2:
		return depth2NodeCap
	default:
		return depth3NodeCap
	}
}
