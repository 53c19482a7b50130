// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package main is the entry point for the Aperture server.
//
// Aperture generates personalized media recommendations for users of a
// self-hosted media server. It builds a vector-space taste profile from
// each user's watch history, retrieves and scores similar titles, and
// persists explainable recommendation runs. A Gemini-backed oracle
// validates ambiguous title relationships and breaks out of franchise
// bubbles in the similarity graph.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional YAML file, APERTURE_ environment
//     overrides (Koanf v2)
//  2. Database: DuckDB store for items, history, runs and caches
//  3. Vector index: in-memory embedding index hydrated from the database
//  4. Oracle: Gemini client with rate limiting and a circuit breaker
//     (optional; disabled when no API key is configured)
//  5. Progress bus: Watermill pub/sub for generation progress events
//  6. Generator: the recommendation pipeline
//  7. Supervision tree: scheduled regeneration and the metrics endpoint
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (APERTURE_ prefix, double underscore nesting:
//     APERTURE_DATABASE__PATH=/data/aperture.duckdb)
//   - Config file (config.yaml, or APERTURE_CONFIG)
//   - Built-in defaults
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the supervision
// tree stops its services, in-flight generation runs are finalized as
// failed by their context, and the database is checkpointed on close.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgruhin-hrizn/aperture/internal/config"
	"github.com/dgruhin-hrizn/aperture/internal/database"
	"github.com/dgruhin-hrizn/aperture/internal/llm"
	"github.com/dgruhin-hrizn/aperture/internal/logging"
	"github.com/dgruhin-hrizn/aperture/internal/progress"
	"github.com/dgruhin-hrizn/aperture/internal/recommend"
	"github.com/dgruhin-hrizn/aperture/internal/supervisor"
	"github.com/dgruhin-hrizn/aperture/internal/supervisor/services"
	"github.com/dgruhin-hrizn/aperture/internal/vector"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("oracle_enabled", cfg.Gemini.APIKey != "").
		Msg("Starting Aperture")

	db, err := database.New(&cfg.Database, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hydrate the in-memory vector index from the persisted embeddings.
	vectors := vector.NewMemoryStore(logging.Logger())
	if err := vectors.Load(ctx, db); err != nil {
		logging.Fatal().Err(err).Msg("Failed to load vector index")
	}
	logging.Info().Int("vectors", vectors.Len()).Msg("Vector index loaded")

	// The oracle is optional. Without it, ambiguous cross-collection
	// pairs are rejected, bubble escape is inert and explanations are
	// skipped.
	var oracle llm.Oracle
	if cfg.Gemini.APIKey != "" {
		client, err := llm.New(ctx, llm.Config{
			APIKey:            cfg.Gemini.APIKey,
			Model:             cfg.Gemini.Model,
			RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
			MaxRetries:        cfg.Gemini.MaxRetries,
			Timeout:           cfg.Gemini.Timeout,
		}, logging.Logger())
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize Gemini client")
		}
		defer func() {
			if err := client.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing Gemini client")
			}
		}()
		oracle = client
		logging.Info().Str("model", cfg.Gemini.Model).Msg("Oracle enabled")
	} else {
		logging.Info().Msg("Oracle disabled (no API key configured)")
	}

	// Progress events fan out to the log and the in-process bus.
	bus := progress.NewBus(logging.Logger())
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing progress bus")
		}
	}()
	reporter := progress.Multi{progress.NewLogReporter(logging.Logger()), bus}

	generator := recommend.NewGenerator(db, vectors, oracle, reporter, cfg.Recommend, logging.Logger())

	// Bridge zerolog to slog for the supervisor's event hook.
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddJobService(services.NewRegenerateService(generator, services.RegenerateServiceConfig{
		RunOnStartup: cfg.Service.RegenerateOnStartup,
		Interval:     cfg.Service.RegenerateInterval,
	}, logging.Logger()))

	if cfg.Service.MetricsAddr != "" {
		tree.AddTelemetryService(services.NewMetricsService(cfg.Service.MetricsAddr, logging.Logger()))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the error channel until the supervisor finishes.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Aperture stopped gracefully")
}
