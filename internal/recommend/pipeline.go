// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dgruhin-hrizn/aperture/internal/config"
	"github.com/dgruhin-hrizn/aperture/internal/llm"
	"github.com/dgruhin-hrizn/aperture/internal/metrics"
	"github.com/dgruhin-hrizn/aperture/internal/models"
	"github.com/dgruhin-hrizn/aperture/internal/progress"
	"github.com/dgruhin-hrizn/aperture/internal/vector"
)

// finalizeTimeout bounds the terminal-status write for a run whose own
// context is already dead.
const finalizeTimeout = 10 * time.Second

// Generator orchestrates the full pipeline for one user: profile,
// retrieval, scoring, selection, persistence and best-effort
// explanations. A per-user mutex keeps generation and clearing for the
// same user from interleaving; different users run independently.
type Generator struct {
	store    Store
	vectors  vector.Store
	profiles *ProfileBuilder
	retrieve *Retriever
	evidence *EvidenceBuilder
	explain  *Explainer
	reporter progress.Reporter
	cfg      config.RecommendConfig
	logger   zerolog.Logger

	userLocks sync.Map // userID -> *sync.Mutex
}

// NewGenerator wires the pipeline components. oracle may be nil, which
// disables explanations.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewGenerator(store Store, vectors vector.Store, oracle llm.Oracle, reporter progress.Reporter, cfg config.RecommendConfig, logger zerolog.Logger) *Generator {
	if reporter == nil {
		reporter = progress.Nop{}
	}
	return &Generator{
		store:    store,
		vectors:  vectors,
		profiles: NewProfileBuilder(vectors, logger),
		retrieve: NewRetriever(vectors, store, logger),
		evidence: NewEvidenceBuilder(vectors, logger),
		explain:  NewExplainer(oracle, store, logger),
		reporter: reporter,
		cfg:      cfg,
		logger:   logger.With().Str("component", "generator").Logger(),
	}
}

func (g *Generator) userLock(userID string) *sync.Mutex {
	mu, _ := g.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// GenerateForUser runs the pipeline for one user. The returned run is in
// a terminal state: completed (possibly with an empty list) or failed.
// Empty history and a missing taste profile are empty completed runs, not
// failures.
func (g *Generator) GenerateForUser(ctx context.Context, userID string) (*models.Run, error) {
	mu := g.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	started := time.Now()
	run, err := g.store.CreateRun(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	logger := g.logger.With().Str("user_id", userID).Str("run_id", run.ID).Logger()
	selectedCount, runErr := g.generate(ctx, run, logger)

	status := models.RunStatusCompleted
	errMsg := ""
	if runErr != nil {
		status = models.RunStatusFailed
		errMsg = runErr.Error()
	}
	// Finalize on a detached context: a canceled run must still reach a
	// terminal status instead of leaving the row 'running'.
	finCtx, finCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finCancel()
	if finErr := g.store.FinalizeRun(finCtx, run.ID, status, errMsg); finErr != nil {
		logger.Error().Err(finErr).Msg("run finalization failed")
		if runErr == nil {
			runErr = finErr
		}
	}
	run.Status = status
	run.Error = errMsg

	metrics.RunsTotal.WithLabelValues(string(status)).Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())

	if runErr != nil {
		logger.Error().Err(runErr).Msg("recommendation run failed")
		return run, runErr
	}
	logger.Info().
		Int("selected", selectedCount).
		Dur("duration", time.Since(started)).
		Msg("recommendation run completed")
	return run, nil
}

// generate is the run body. It returns the number of selected items and
// the fatal error, if any; the caller finalizes the run either way.
func (g *Generator) generate(ctx context.Context, run *models.Run, logger zerolog.Logger) (int, error) {
	report := func(stage, msg string) {
		g.reporter.Report(progress.Event{
			RunID: run.ID, UserID: run.UserID, Stage: stage, Message: msg,
		})
	}

	report("history", "loading watch history")
	history, err := g.store.GetWatchHistory(ctx, run.UserID, g.cfg.HistoryLimit)
	if err != nil {
		return 0, fmt.Errorf("load watch history: %w", err)
	}
	if len(history) == 0 {
		logger.Info().Msg("no watch history, completing with empty recommendations")
		return 0, nil
	}

	prefs, err := g.store.GetUserPreferences(ctx, run.UserID)
	if err != nil {
		return 0, fmt.Errorf("load preferences: %w", err)
	}
	weights := g.effectiveWeights(prefs)

	report("profile", "building taste profile")
	stageStart := time.Now()
	profile, err := g.profiles.Build(ctx, history)
	if errors.Is(err, ErrNoProfile) {
		logger.Info().Msg("no watched item has an embedding, completing with empty recommendations")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("build taste profile: %w", err)
	}
	metrics.StageDuration.WithLabelValues("profile").Observe(time.Since(stageStart).Seconds())

	report("retrieve", "retrieving candidates")
	stageStart = time.Now()
	exclude := g.exclusionSet(history, prefs)
	candidates, err := g.retrieve.Retrieve(ctx, profile, exclude, prefs.MaxContentRating, g.cfg.CandidateLimit)
	if err != nil {
		return 0, fmt.Errorf("retrieve candidates: %w", err)
	}
	metrics.StageDuration.WithLabelValues("retrieve").Observe(time.Since(stageStart).Seconds())
	if len(candidates) == 0 {
		logger.Info().Msg("no eligible candidates, completing with empty recommendations")
		return 0, nil
	}

	report("score", "scoring candidates")
	stageStart = time.Now()
	watchedIDs := make([]string, len(history))
	for i := range history {
		watchedIDs[i] = history[i].ItemID
	}
	watchedItems, err := g.store.GetMediaItems(ctx, watchedIDs)
	if err != nil {
		return 0, fmt.Errorf("load watched items: %w", err)
	}
	scorer := NewScorer(weights)
	scored := scorer.Score(candidates, BuildGenreProfile(watchedItems))
	metrics.StageDuration.WithLabelValues("score").Observe(time.Since(stageStart).Seconds())

	report("select", "selecting recommendations")
	stageStart = time.Now()
	result := NewSelector(weights.Diversity).Select(scored, g.cfg.SelectCount)
	metrics.StageDuration.WithLabelValues("select").Observe(time.Since(stageStart).Seconds())

	report("persist", "persisting run results")
	stageStart = time.Now()
	recs := make([]models.Recommendation, len(result.Pool))
	for i, rc := range result.Pool {
		recs[i] = models.Recommendation{
			RunID:         run.ID,
			ItemID:        rc.ItemID,
			Position:      rc.Rank,
			Selected:      rc.Selected,
			Similarity:    rc.Similarity,
			Novelty:       rc.Novelty,
			RatingScore:   rc.RatingScore,
			Diversity:     rc.Diversity,
			FinalScore:    rc.FinalScore,
			AdjustedScore: rc.AdjustedScore,
		}
	}
	if err := g.store.InsertRecommendations(ctx, recs); err != nil {
		return 0, fmt.Errorf("persist recommendations: %w", err)
	}

	evidence := g.evidence.Build(ctx, run.ID, result.Selected, history, g.cfg.EvidenceLimit)
	if err := g.store.InsertEvidence(ctx, evidence); err != nil {
		return 0, fmt.Errorf("persist evidence: %w", err)
	}
	if err := g.store.SetRunCounts(ctx, run.ID, len(result.Pool), len(result.Selected)); err != nil {
		return 0, fmt.Errorf("persist run counts: %w", err)
	}
	run.CandidateCount = len(result.Pool)
	run.SelectedCount = len(result.Selected)
	metrics.StageDuration.WithLabelValues("persist").Observe(time.Since(stageStart).Seconds())

	if pruned, err := g.store.PruneRuns(ctx, run.UserID, g.cfg.RetainRuns); err != nil {
		// Stale-run cleanup must not fail a successful generation.
		logger.Warn().Err(err).Msg("pruning old runs failed")
	} else if pruned > 0 {
		logger.Debug().Int("pruned", pruned).Msg("old runs pruned")
	}

	if g.cfg.Explanations {
		report("explain", "generating explanations")
		g.explain.Explain(ctx, run.ID, result.Selected, evidence, watchedItems)
	}

	return len(result.Selected), nil
}

// effectiveWeights starts from the configured defaults and applies any
// positive per-user overrides.
func (g *Generator) effectiveWeights(prefs *models.UserPreferences) Weights {
	w := Weights{
		Similarity: g.cfg.SimilarityWeight,
		Novelty:    g.cfg.NoveltyWeight,
		Rating:     g.cfg.RatingWeight,
		Diversity:  g.cfg.DiversityWeight,
	}
	if prefs == nil {
		return w
	}
	if prefs.SimilarityWeight > 0 {
		w.Similarity = prefs.SimilarityWeight
	}
	if prefs.NoveltyWeight > 0 {
		w.Novelty = prefs.NoveltyWeight
	}
	if prefs.RatingWeight > 0 {
		w.Rating = prefs.RatingWeight
	}
	if prefs.DiversityWeight > 0 {
		w.Diversity = prefs.DiversityWeight
	}
	return w
}

// exclusionSet collects the ids retrieval must never return: disliked
// items always, watched items unless the user opted back in.
func (g *Generator) exclusionSet(history []models.WatchHistoryEntry, prefs *models.UserPreferences) map[string]struct{} {
	exclude := make(map[string]struct{})
	if prefs != nil {
		for _, id := range prefs.DislikedItemIDs {
			exclude[id] = struct{}{}
		}
	}
	if prefs == nil || !prefs.IncludeWatched {
		for i := range history {
			exclude[history[i].ItemID] = struct{}{}
		}
	}
	return exclude
}

// GenerateForAll regenerates recommendations for every known user with
// bounded concurrency. Per-user failures are tallied, not propagated; the
// batch only aborts early when the oracle quota is exhausted or the
// context is canceled.
func (g *Generator) GenerateForAll(ctx context.Context) (BatchResult, error) {
	userIDs, err := g.store.ListUserIDs(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list users: %w", err)
	}
	if len(userIDs) == 0 {
		g.logger.Info().Msg("no users with watch history, nothing to regenerate")
		return BatchResult{}, nil
	}

	var (
		mu     sync.Mutex
		result BatchResult
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.BatchConcurrency)

	for _, userID := range userIDs {
		eg.Go(func() error {
			_, err := g.GenerateForUser(gctx, userID)

			mu.Lock()
			if err != nil {
				result.Failed++
			} else {
				result.Succeeded++
			}
			mu.Unlock()

			if err != nil {
				metrics.BatchUsersProcessed.WithLabelValues("failed").Inc()
				// Quota exhaustion is fatal for the batch; anything else
				// is tallied and the batch moves on.
				if errors.Is(err, llm.ErrQuotaExceeded) {
					return err
				}
				g.logger.Warn().Err(err).Str("user_id", userID).Msg("user generation failed, continuing batch")
				return nil
			}
			metrics.BatchUsersProcessed.WithLabelValues("succeeded").Inc()
			return nil
		})
	}

	batchErr := eg.Wait()
	g.logger.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("users", len(userIDs)).
		Msg("batch regeneration finished")
	return result, batchErr
}

// ClearForUser removes all persisted runs and recommendations for a user.
// It takes the same per-user lock as generation, so the two never
// interleave for one user.
func (g *Generator) ClearForUser(ctx context.Context, userID string) error {
	mu := g.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if err := g.store.ClearRecommendations(ctx, userID); err != nil {
		return fmt.Errorf("clear recommendations for %s: %w", userID, err)
	}
	g.logger.Info().Str("user_id", userID).Msg("recommendations cleared")
	return nil
}
