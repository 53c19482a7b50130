// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package recommend

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dgruhin-hrizn/aperture/internal/llm"
	"github.com/dgruhin-hrizn/aperture/internal/models"
)

// Explainer generates short natural-language explanations for selected
// recommendations. It is strictly best effort: any failure leaves the
// recommendation without an explanation and never fails the run.
type Explainer struct {
	oracle llm.Oracle
	store  Store
	logger zerolog.Logger
}

// NewExplainer creates an Explainer. A nil oracle disables explanations.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewExplainer(oracle llm.Oracle, store Store, logger zerolog.Logger) *Explainer {
	return &Explainer{
		oracle: oracle,
		store:  store,
		logger: logger.With().Str("component", "explainer").Logger(),
	}
}

// Explain writes one explanation per selected item, citing its evidence
// titles. Errors are logged per item and swallowed.
func (e *Explainer) Explain(ctx context.Context, runID string, selected []RankedCandidate, evidence []models.Evidence, items map[string]*models.MediaItem) {
	if e.oracle == nil || len(selected) == 0 {
		return
	}

	evidenceByItem := make(map[string][]string)
	for _, ev := range evidence {
		if item, ok := items[ev.EvidenceItemID]; ok {
			evidenceByItem[ev.ItemID] = append(evidenceByItem[ev.ItemID], item.Title)
		}
	}

	for i := range selected {
		sel := &selected[i]
		if err := ctx.Err(); err != nil {
			return
		}

		prompt := explanationPrompt(sel, evidenceByItem[sel.ItemID])
		answer, err := e.oracle.Classify(ctx, prompt)
		if err != nil {
			e.logger.Warn().Err(err).Str("item_id", sel.ItemID).Msg("explanation generation failed")
			continue
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			continue
		}

		if err := e.store.SetExplanation(ctx, runID, sel.ItemID, answer); err != nil {
			e.logger.Warn().Err(err).Str("item_id", sel.ItemID).Msg("explanation persistence failed")
		}
	}
}

func explanationPrompt(sel *RankedCandidate, evidenceTitles []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "In one or two sentences, explain to a viewer why %q", sel.Title)
	if sel.Year > 0 {
		fmt.Fprintf(&sb, " (%d)", sel.Year)
	}
	sb.WriteString(" was recommended to them.")
	if len(evidenceTitles) > 0 {
		fmt.Fprintf(&sb, " They recently watched and enjoyed: %s.", strings.Join(evidenceTitles, ", "))
	}
	if len(sel.Genres) > 0 {
		fmt.Fprintf(&sb, " The recommended title's genres are: %s.", strings.Join(sel.Genres, ", "))
	}
	sb.WriteString(" Answer with the explanation only, no preamble.")
	return sb.String()
}
