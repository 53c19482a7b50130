// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package config defines Aperture's configuration surface and loads it
// from defaults, an optional YAML file and APERTURE_-prefixed environment
// variables, in that order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Aperture server.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Database  DatabaseConfig  `koanf:"database"`
	Gemini    GeminiConfig    `koanf:"gemini"`
	Recommend RecommendConfig `koanf:"recommend"`
	Graph     GraphConfig     `koanf:"graph"`
	Service   ServiceConfig   `koanf:"service"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`

	// Format is json or console.
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// DatabaseConfig controls the DuckDB store.
type DatabaseConfig struct {
	// Path is the database file path; ":memory:" for an ephemeral store.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory is the DuckDB memory limit (e.g. "1GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count; 0 uses all CPUs.
	Threads int `koanf:"threads" validate:"gte=0"`
}

// GeminiConfig controls the language-model oracle.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API. When empty the oracle
	// is disabled: connection validation rejects ambiguous pairs and
	// bubble escape yields no suggestions.
	APIKey string `koanf:"api_key"`

	// Model is the generative model used for validation, suggestions and
	// explanations.
	Model string `koanf:"model"`

	// RequestsPerMinute rate-limits oracle calls.
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"gte=1"`

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int `koanf:"max_retries" validate:"gte=0,lte=10"`

	// Timeout bounds a single oracle call.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// RecommendConfig controls the recommendation pipeline.
type RecommendConfig struct {
	// SimilarityWeight..DiversityWeight are the final-score weights.
	// They are intentionally not renormalized; users may tune them
	// without the sum constraint.
	SimilarityWeight float64 `koanf:"similarity_weight" validate:"gte=0"`
	NoveltyWeight    float64 `koanf:"novelty_weight" validate:"gte=0"`
	RatingWeight     float64 `koanf:"rating_weight" validate:"gte=0"`
	DiversityWeight  float64 `koanf:"diversity_weight" validate:"gte=0"`

	// HistoryLimit caps the watch-history window used for the taste
	// profile.
	HistoryLimit int `koanf:"history_limit" validate:"gte=1"`

	// CandidateLimit caps the retrieved candidate pool.
	CandidateLimit int `koanf:"candidate_limit" validate:"gte=1"`

	// SelectCount is the target size of the final recommendation list.
	SelectCount int `koanf:"select_count" validate:"gte=1"`

	// EvidenceLimit is how many watched items are cited per selection.
	EvidenceLimit int `koanf:"evidence_limit" validate:"gte=1,lte=10"`

	// RetainRuns is how many finished runs to keep per user.
	RetainRuns int `koanf:"retain_runs" validate:"gte=1"`

	// BatchConcurrency bounds concurrent per-user generations during
	// all-user regeneration.
	BatchConcurrency int `koanf:"batch_concurrency" validate:"gte=1,lte=32"`

	// Explanations enables best-effort natural-language explanations for
	// selected items.
	Explanations bool `koanf:"explanations"`
}

// GraphConfig controls the similarity graph builder.
type GraphConfig struct {
	// DefaultDepth is the expansion depth when the caller does not
	// specify one.
	DefaultDepth int `koanf:"default_depth" validate:"gte=1,lte=3"`

	// DefaultLimit is the per-node neighbor limit at level 1.
	DefaultLimit int `koanf:"default_limit" validate:"gte=1,lte=20"`

	// BubbleThreshold is the dominant-collection fraction that marks a
	// franchise bubble.
	BubbleThreshold float64 `koanf:"bubble_threshold" validate:"gt=0,lte=1"`

	// CollectionCacheTTL bounds staleness of cached collection sizes.
	CollectionCacheTTL time.Duration `koanf:"collection_cache_ttl" validate:"gt=0"`
}

// ServiceConfig controls the supervised regeneration service.
type ServiceConfig struct {
	// RegenerateOnStartup runs an all-user generation when the service
	// starts.
	RegenerateOnStartup bool `koanf:"regenerate_on_startup"`

	// RegenerateInterval is the period between scheduled all-user
	// generations; 0 disables scheduling.
	RegenerateInterval time.Duration `koanf:"regenerate_interval" validate:"gte=0"`

	// MetricsAddr is the listen address for the Prometheus scrape
	// endpoint; empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`
}

// Default returns a Config with production defaults. Defaults are applied
// first, then overridden by the config file and environment.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:      "/data/aperture.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Gemini: GeminiConfig{
			Model:             "gemini-2.0-flash",
			RequestsPerMinute: 30,
			MaxRetries:        3,
			Timeout:           30 * time.Second,
		},
		Recommend: RecommendConfig{
			SimilarityWeight: 0.4,
			NoveltyWeight:    0.2,
			RatingWeight:     0.2,
			DiversityWeight:  0.2,
			HistoryLimit:     200,
			CandidateLimit:   100,
			SelectCount:      20,
			EvidenceLimit:    3,
			RetainRuns:       5,
			BatchConcurrency: 4,
			Explanations:     true,
		},
		Graph: GraphConfig{
			DefaultDepth:       2,
			DefaultLimit:       6,
			BubbleThreshold:    0.5,
			CollectionCacheTTL: 15 * time.Minute,
		},
		Service: ServiceConfig{
			RegenerateOnStartup: false,
			RegenerateInterval:  24 * time.Hour,
			MetricsAddr:         "",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Cross-field checks the tag language cannot express.
	if c.Recommend.SelectCount > c.Recommend.CandidateLimit {
		return fmt.Errorf("recommend.select_count (%d) must not exceed recommend.candidate_limit (%d)",
			c.Recommend.SelectCount, c.Recommend.CandidateLimit)
	}

	weightSum := c.Recommend.SimilarityWeight + c.Recommend.NoveltyWeight +
		c.Recommend.RatingWeight + c.Recommend.DiversityWeight
	if weightSum == 0 {
		return fmt.Errorf("recommend weights must not all be zero")
	}

	return nil
}
