// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

// fallbackChips keeps the UI usable when the model's output cannot be
// parsed. The strategy IDs match the generated set.
var fallbackChips = datatypes.ChipSet{
	Question: "How do you want to respond?",
	Options: []datatypes.ChipOption{
		{Label: "Demand proof for their claims", StrategyID: "demand_proof"},
		{Label: "Concede a small amount to move forward", StrategyID: "concede_small"},
		{Label: "Cite the law supporting your position", StrategyID: "cite_legal"},
	},
}

// GenerateChips produces the next-move question and strategy options for a
// case. Generation failures fall back to the static set; only a missing
// case is an error.
func (e *Engine) GenerateChips(ctx context.Context, caseID string) (*datatypes.ChipSet, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.GenerateChips")
	defer span.End()

	c, err := e.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	history, err := e.store.ListMessages(ctx, caseID)
	if err != nil {
		return nil, err
	}

	raw, err := e.generate(ctx, datatypes.RoleMediator, buildChipsPrompt(c, history))
	if err != nil {
		slog.Warn("Chip generation failed, using fallback", "case_id", caseID, "error", err)
		chips := fallbackChips
		return &chips, nil
	}

	chips := parseChips(raw)
	if chips == nil {
		slog.Warn("Chip output unparseable, using fallback", "case_id", caseID)
		fallback := fallbackChips
		return &fallback, nil
	}
	return chips, nil
}

// parseChips scrapes the chip set from raw model output. Returns nil when
// the output has no usable question or options.
func parseChips(raw string) *datatypes.ChipSet {
	cleaned := StripCodeFences(raw)
	if !gjson.Valid(cleaned) {
		return nil
	}
	parsed := gjson.Parse(cleaned)

	chips := &datatypes.ChipSet{Question: parsed.Get("question").String()}
	parsed.Get("options").ForEach(func(_, item gjson.Result) bool {
		opt := datatypes.ChipOption{
			Label:      item.Get("label").String(),
			StrategyID: item.Get("strategy_id").String(),
		}
		if opt.Label != "" && opt.StrategyID != "" {
			chips.Options = append(chips.Options, opt)
		}
		return true
	})

	if chips.Question == "" || len(chips.Options) == 0 {
		return nil
	}
	return chips
}
