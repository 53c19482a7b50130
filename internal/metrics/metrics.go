// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package metrics provides Prometheus instrumentation for the
// recommendation pipeline, the similarity graph builder and the
// language-model oracle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts recommendation runs by terminal status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aperture_recommendation_runs_total",
			Help: "Total recommendation runs by terminal status",
		},
		[]string{"status"}, // "completed", "failed"
	)

	// RunDuration observes end-to-end pipeline duration per user.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aperture_recommendation_run_duration_seconds",
			Help:    "Duration of a single user's recommendation run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// StageDuration observes per-stage pipeline latency.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aperture_pipeline_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // "profile", "retrieve", "score", "select", "persist"
	)

	// CandidatesRetrieved observes candidate pool sizes after retrieval.
	CandidatesRetrieved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aperture_candidates_retrieved",
			Help:    "Number of candidates retrieved per run",
			Buckets: []float64{0, 10, 25, 50, 100, 200, 500, 1000},
		},
	)

	// OracleCalls counts language-model oracle calls by purpose and outcome.
	OracleCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aperture_oracle_calls_total",
			Help: "Language-model oracle calls by purpose and outcome",
		},
		[]string{"purpose", "outcome"}, // purpose: "validation", "suggestion", "explanation"
	)

	// OracleBreakerState tracks the oracle circuit breaker state
	// (0 = closed, 1 = half-open, 2 = open).
	OracleBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aperture_oracle_breaker_state",
			Help: "Oracle circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// ValidationCacheHits counts connection validation cache hits.
	ValidationCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aperture_validation_cache_hits_total",
			Help: "Connection validation verdicts served from cache",
		},
	)

	// ValidationCacheMisses counts connection validation cache misses.
	ValidationCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aperture_validation_cache_misses_total",
			Help: "Connection validation lookups that missed the cache",
		},
	)

	// GraphNodes observes node counts of completed similarity graphs.
	GraphNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aperture_similarity_graph_nodes",
			Help:    "Node count per built similarity graph",
			Buckets: []float64{2, 5, 10, 15, 25, 35, 45},
		},
	)

	// GraphEdges observes edge counts of completed similarity graphs.
	GraphEdges = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aperture_similarity_graph_edges",
			Help:    "Edge count per built similarity graph",
			Buckets: []float64{2, 5, 10, 20, 35, 50, 75},
		},
	)

	// GraphAIEscapes counts bubble-escape attempts via the oracle.
	GraphAIEscapes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aperture_graph_ai_escapes_total",
			Help: "Franchise-bubble escape attempts by outcome",
		},
		[]string{"outcome"}, // "matched", "no_suggestions", "failed"
	)

	// BatchUsersProcessed counts users processed in batch regeneration.
	BatchUsersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aperture_batch_users_total",
			Help: "Users processed by batch regeneration, by outcome",
		},
		[]string{"outcome"}, // "succeeded", "failed"
	)
)
