// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package progress reports pipeline and graph-build progress. Reporting is
// best effort: a failed or absent reporter never fails the work being
// reported on.
package progress

import (
	"time"

	"github.com/rs/zerolog"
)

// Event is one progress update from a long-running operation.
type Event struct {
	// RunID identifies the run the event belongs to, when applicable.
	RunID string `json:"run_id,omitempty"`

	// UserID identifies the user the run is for, when applicable.
	UserID string `json:"user_id,omitempty"`

	// Stage names the pipeline stage, e.g. "profile" or "scoring".
	Stage string `json:"stage"`

	// Message is a short human-readable description.
	Message string `json:"message"`

	// Current and Total describe stage completion when known.
	Current int `json:"current,omitempty"`
	Total   int `json:"total,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}

// Reporter receives progress events.
type Reporter interface {
	// Report delivers one event. Implementations must not block the
	// caller for long and must swallow their own delivery failures.
	Report(event Event)
}

// Nop is a Reporter that discards all events.
type Nop struct{}

// Report discards the event.
func (Nop) Report(Event) {}

// LogReporter writes progress events to the structured log.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a Reporter backed by a zerolog logger.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With().Str("component", "progress").Logger()}
}

// Report logs the event at debug level.
func (r *LogReporter) Report(event Event) {
	ev := r.logger.Debug().
		Str("stage", event.Stage).
		Str("message", event.Message)
	if event.RunID != "" {
		ev = ev.Str("run_id", event.RunID)
	}
	if event.UserID != "" {
		ev = ev.Str("user_id", event.UserID)
	}
	if event.Total > 0 {
		ev = ev.Int("current", event.Current).Int("total", event.Total)
	}
	ev.Msg("progress")
}

// Multi fans one event out to several reporters.
type Multi []Reporter

// Report delivers the event to every reporter in order.
func (m Multi) Report(event Event) {
	for _, r := range m {
		r.Report(event)
	}
}
