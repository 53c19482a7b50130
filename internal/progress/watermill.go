// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package progress

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Topic is the pub/sub topic progress events are published to.
const Topic = "aperture.progress"

// Bus is an in-process pub/sub channel for progress events. Subscribers
// (a future API surface, tests) attach via Subscribe; publishers use the
// Reporter interface.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger
}

// NewBus creates an in-process progress bus.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBus(logger zerolog.Logger) *Bus {
	lg := logger.With().Str("component", "progress_bus").Logger()
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		newWatermillAdapter(lg),
	)
	return &Bus{pubsub: pubsub, logger: lg}
}

// Report publishes the event on the bus. Marshal or publish failures are
// logged and dropped.
func (b *Bus) Report(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error().Err(err).Msg("marshal progress event")
		return
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		b.logger.Warn().Err(err).Msg("publish progress event")
	}
}

// Subscribe returns a channel of raw progress messages. The subscription
// lives until the bus closes.
func (b *Bus) Subscribe() (<-chan *message.Message, error) {
	// gochannel subscriptions are scoped to the bus lifetime, not to a
	// single request.
	return b.pubsub.Subscribe(context.Background(), Topic)
}

// Close shuts the bus down and releases subscribers.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

var _ Reporter = (*Bus)(nil)

// watermillAdapter routes watermill's internal logging into zerolog.
type watermillAdapter struct {
	logger zerolog.Logger
}

//nolint:gocritic // logger passed by value is acceptable for zerolog
func newWatermillAdapter(logger zerolog.Logger) watermill.LoggerAdapter {
	return &watermillAdapter{logger: logger}
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.logger.Error().Err(err), fields).Msg(msg)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.logger.Debug(), fields).Msg(msg)
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.logger.Debug(), fields).Msg(msg)
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.logger.Trace(), fields).Msg(msg)
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := a.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &watermillAdapter{logger: ctx.Logger()}
}

func (a *watermillAdapter) event(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return ev
}
