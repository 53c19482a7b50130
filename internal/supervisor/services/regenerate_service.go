// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package services provides suture service wrappers for long-running
// application components.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dgruhin-hrizn/aperture/internal/recommend"
)

// Regenerator is the batch-generation surface the service drives.
// *recommend.Generator satisfies it.
type Regenerator interface {
	GenerateForAll(ctx context.Context) (recommend.BatchResult, error)
}

// RegenerateServiceConfig holds scheduling configuration.
type RegenerateServiceConfig struct {
	// RunOnStartup triggers an all-user generation when the service
	// starts.
	RunOnStartup bool

	// Interval is the period between scheduled generations; values <= 0
	// fall back to daily.
	Interval time.Duration

	// BatchTimeout bounds a single all-user generation.
	BatchTimeout time.Duration
}

// RegenerateService runs batch recommendation regeneration on a schedule
// under suture supervision.
type RegenerateService struct {
	generator Regenerator
	config    RegenerateServiceConfig
	logger    zerolog.Logger
	name      string
}

// NewRegenerateService creates the scheduled regeneration service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRegenerateService(generator Regenerator, cfg RegenerateServiceConfig, logger zerolog.Logger) *RegenerateService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 30 * time.Minute
	}
	return &RegenerateService{
		generator: generator,
		config:    cfg,
		logger:    logger.With().Str("service", "regenerate").Logger(),
		name:      "regenerate-service",
	}
}

// Serve implements suture.Service. Per-cycle failures are logged and the
// schedule keeps running; only context cancellation ends the service.
func (s *RegenerateService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("run_on_startup", s.config.RunOnStartup).
		Dur("interval", s.config.Interval).
		Msg("regeneration service starting")

	if s.config.RunOnStartup {
		if err := s.runBatch(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("startup regeneration failed, next attempt on schedule")
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("regeneration service shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runBatch(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("scheduled regeneration failed")
			}
		}
	}
}

func (s *RegenerateService) runBatch(ctx context.Context) error {
	batchCtx, cancel := context.WithTimeout(ctx, s.config.BatchTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.generator.GenerateForAll(batchCtx)
	if err != nil {
		return err
	}

	s.logger.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Dur("duration", time.Since(start)).
		Msg("batch regeneration cycle complete")
	return nil
}

// String returns the service name for supervisor logging.
func (s *RegenerateService) String() string {
	return s.name
}
