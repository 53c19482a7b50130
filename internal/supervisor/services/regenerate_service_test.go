// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package services

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/dgruhin-hrizn/aperture/internal/logging"
	"github.com/dgruhin-hrizn/aperture/internal/recommend"
)

// mockRegenerator counts batch invocations.
type mockRegenerator struct {
	err      error
	runCount atomic.Int32
	started  chan struct{}
}

func newMockRegenerator() *mockRegenerator {
	return &mockRegenerator{started: make(chan struct{}, 1)}
}

func (m *mockRegenerator) GenerateForAll(_ context.Context) (recommend.BatchResult, error) {
	m.runCount.Add(1)
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.err != nil {
		return recommend.BatchResult{}, m.err
	}
	return recommend.BatchResult{Succeeded: 2}, nil
}

func TestRegenerateService_Interface(t *testing.T) {
	t.Parallel()

	var _ suture.Service = (*RegenerateService)(nil)
	var _ suture.Service = (*MetricsService)(nil)
}

func TestNewRegenerateService_Defaults(t *testing.T) {
	t.Parallel()

	svc := NewRegenerateService(newMockRegenerator(), RegenerateServiceConfig{}, logging.NewTestLogger(io.Discard))

	if svc.config.Interval != 24*time.Hour {
		t.Errorf("default interval = %v, want 24h", svc.config.Interval)
	}
	if svc.config.BatchTimeout != 30*time.Minute {
		t.Errorf("default batch timeout = %v, want 30m", svc.config.BatchTimeout)
	}
	if got := svc.String(); got != "regenerate-service" {
		t.Errorf("String() = %q, want regenerate-service", got)
	}
}

func TestRegenerateService_Serve(t *testing.T) {
	t.Parallel()

	t.Run("runs on startup when configured", func(t *testing.T) {
		t.Parallel()

		gen := newMockRegenerator()
		svc := NewRegenerateService(gen, RegenerateServiceConfig{
			RunOnStartup: true,
			Interval:     time.Hour,
		}, logging.NewTestLogger(io.Discard))

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- svc.Serve(ctx)
		}()

		select {
		case <-gen.started:
		case <-time.After(time.Second):
			t.Fatal("startup generation did not run")
		}

		cancel()
		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() error = %v, want context.Canceled", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Serve() did not return after cancellation")
		}

		if got := gen.runCount.Load(); got != 1 {
			t.Errorf("GenerateForAll called %d times, want 1", got)
		}
	})

	t.Run("runs on schedule", func(t *testing.T) {
		t.Parallel()

		gen := newMockRegenerator()
		svc := NewRegenerateService(gen, RegenerateServiceConfig{
			Interval: 10 * time.Millisecond,
		}, logging.NewTestLogger(io.Discard))

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		_ = svc.Serve(ctx)

		if got := gen.runCount.Load(); got < 2 {
			t.Errorf("GenerateForAll called %d times, want at least 2 scheduled runs", got)
		}
	})

	t.Run("batch failure does not stop the schedule", func(t *testing.T) {
		t.Parallel()

		gen := newMockRegenerator()
		gen.err = errors.New("library offline")
		svc := NewRegenerateService(gen, RegenerateServiceConfig{
			RunOnStartup: true,
			Interval:     10 * time.Millisecond,
		}, logging.NewTestLogger(io.Discard))

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := svc.Serve(ctx)

		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve() error = %v, want context.DeadlineExceeded", err)
		}
		if got := gen.runCount.Load(); got < 2 {
			t.Errorf("GenerateForAll called %d times, want retries despite failures", got)
		}
	})
}

func TestRegenerateService_WithSupervisor(t *testing.T) {
	t.Parallel()

	gen := newMockRegenerator()
	svc := NewRegenerateService(gen, RegenerateServiceConfig{
		RunOnStartup: true,
		Interval:     time.Hour,
	}, logging.NewTestLogger(io.Discard))

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 3,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	select {
	case <-gen.started:
	case <-time.After(time.Second):
		t.Fatal("service did not run under supervisor")
	}

	cancel()
	<-errCh
}
