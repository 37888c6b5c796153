// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

// GenerateOutcomeDocument produces the case's outcome document: a settlement
// agreement for settled cases, a Form 206 court filing for deadlocks.
// The HTML is generated once and cached on the case.
func (e *Engine) GenerateOutcomeDocument(ctx context.Context, caseID string) (string, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.GenerateOutcomeDocument")
	defer span.End()

	c, err := e.store.GetCase(ctx, caseID)
	if err != nil {
		return "", err
	}
	if c.DocumentHTML != "" {
		return c.DocumentHTML, nil
	}

	var prompt string
	switch c.GameState {
	case datatypes.GameSettled:
		prompt = buildSettlementAgreementPrompt(c)
	case datatypes.GameDeadlock:
		history, err := e.store.ListMessages(ctx, caseID)
		if err != nil {
			return "", err
		}
		prompt = buildCourtFilingPrompt(c, history)
	default:
		return "", fmt.Errorf("%w: game state %q", ErrCaseStillActive, c.GameState)
	}

	raw, err := e.generate(ctx, datatypes.RoleMediator, prompt)
	if err != nil {
		return "", fmt.Errorf("document generation failed: %w", err)
	}
	html := extractHTML(raw)
	if html == "" {
		return "", fmt.Errorf("document generation produced no HTML")
	}

	if _, err := e.store.UpdateCase(ctx, caseID, func(c *datatypes.Case) error {
		c.DocumentHTML = html
		return nil
	}); err != nil {
		return "", err
	}

	slog.Info("Outcome document generated", "case_id", caseID, "game_state", c.GameState, "bytes", len(html))
	return html, nil
}

// extractHTML strips fences and leading prose around the generated document.
func extractHTML(raw string) string {
	cleaned := StripCodeFences(raw)
	if idx := strings.Index(cleaned, "<!DOCTYPE"); idx > 0 {
		cleaned = cleaned[idx:]
	} else if idx := strings.Index(cleaned, "<html"); idx > 0 {
		cleaned = cleaned[idx:]
	}
	cleaned = strings.TrimSpace(cleaned)
	if !strings.Contains(cleaned, "<") {
		return ""
	}
	return cleaned
}
