// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MetricsService serves the Prometheus scrape endpoint under suture
// supervision.
type MetricsService struct {
	addr   string
	logger zerolog.Logger
	name   string
}

// NewMetricsService creates the metrics endpoint service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewMetricsService(addr string, logger zerolog.Logger) *MetricsService {
	return &MetricsService{
		addr:   addr,
		logger: logger.With().Str("service", "metrics").Logger(),
		name:   "metrics-service",
	}
}

// Serve implements suture.Service.
func (s *MetricsService) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("metrics endpoint listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("metrics endpoint shutdown failed")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// String returns the service name for supervisor logging.
func (s *MetricsService) String() string {
	return s.name
}
