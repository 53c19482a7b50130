// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package llm provides the language-model oracle used for connection
// validation, franchise-bubble escape suggestions and recommendation
// explanations.
//
// The Gemini-backed client wraps every call in a rate limiter, a circuit
// breaker and bounded retries. Callers must treat empty or malformed
// answers as a negative result, never as a crash; the pipeline and the
// graph builder both do.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/dgruhin-hrizn/aperture/internal/metrics"
)

// Oracle answers short free-form prompts. Implementations must be safe
// for concurrent use.
type Oracle interface {
	// Classify sends a prompt and returns the model's short text answer.
	Classify(ctx context.Context, prompt string) (string, error)
}

// ErrQuotaExceeded marks a quota exhaustion that retries cannot fix.
// It is fatal for the current batch but not for previously completed work.
var ErrQuotaExceeded = errors.New("llm: quota exceeded")

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("llm: oracle unavailable")

// Config holds Gemini client settings.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string

	// Model is the generative model name.
	Model string

	// RequestsPerMinute rate-limits calls.
	RequestsPerMinute int

	// MaxRetries bounds retries of transient failures.
	MaxRetries int

	// Timeout bounds a single call including retries' individual attempts.
	Timeout time.Duration
}

// Client is the Gemini-backed Oracle.
type Client struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[string]
	cfg     Config
	logger  zerolog.Logger
}

var _ Oracle = (*Client)(nil)

// New creates a Gemini client.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	gc, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := gc.GenerativeModel(cfg.Model)
	// Low temperature: validation and suggestions need consistency, not
	// creativity.
	model.SetTemperature(0.2)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "gemini-oracle",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			metrics.OracleBreakerState.Set(breakerStateValue(to))
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("oracle circuit breaker state change")
		},
	})

	return &Client{
		client:  gc,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1),
		cb:      cb,
		cfg:     cfg,
		logger:  logger.With().Str("component", "llm").Logger(),
	}, nil
}

// Classify sends a prompt through the limiter, circuit breaker and retry
// loop and returns the model's trimmed text answer.
func (c *Client) Classify(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	answer, err := c.cb.Execute(func() (string, error) {
		return c.generateWithRetry(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrUnavailable
		}
		return "", err
	}
	return answer, nil
}

// generateWithRetry retries transient failures with exponential backoff.
// Rate-limit responses back off as well; once attempts are exhausted on a
// rate-limit error the failure is reported as ErrQuotaExceeded.
func (c *Client) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
		if err == nil {
			return extractText(resp)
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("generate content: %w", err)
		}

		c.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("transient oracle failure, backing off")
	}

	if isRateLimited(lastErr) {
		return "", fmt.Errorf("%w: %v", ErrQuotaExceeded, lastErr)
	}
	return "", fmt.Errorf("generate content after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	return c.client.Close()
}

// extractText flattens the first candidate's text parts. Responses with
// no usable text return an error so callers can apply their negative
// fallback.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("response without content")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", fmt.Errorf("response without text parts")
	}
	return answer, nil
}

// isRetryable reports whether an API error is worth retrying.
func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return isRateLimited(err) ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "deadline") ||
		strings.Contains(msg, "internal") ||
		strings.Contains(msg, "connection")
}

// isRateLimited reports whether an error indicates quota/rate exhaustion.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "rate limit")
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
