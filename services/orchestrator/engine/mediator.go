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

	"github.com/tidwall/gjson"

	"github.com/lexmachina/lexmachina/services/orchestrator/audit"
	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

// proposeSettlement generates the mediator's proposal, strips citations the
// auditor cannot verify, and stores the result on the case.
func (e *Engine) proposeSettlement(ctx context.Context, c *datatypes.Case) error {
	ctx, span := engineTracer.Start(ctx, "Engine.proposeSettlement")
	defer span.End()

	history, err := e.store.ListMessages(ctx, c.ID)
	if err != nil {
		return err
	}
	lawContext := e.retrieveLawContext(ctx, c, "")

	prompt := buildMediatorPrompt(c, lawContext, history)
	raw, err := e.generate(ctx, datatypes.RoleMediator, prompt)
	if err != nil {
		return fmt.Errorf("mediator generation failed: %w", err)
	}

	proposal, err := ParseMediatorProposal(raw)
	if err != nil {
		return err
	}

	proposal.Citations = e.verifiedCitations(ctx, proposal.Citations)

	if _, err := e.store.UpdateCase(ctx, c.ID, func(c *datatypes.Case) error {
		c.Settlement = proposal
		return nil
	}); err != nil {
		return err
	}

	mediatorMsg := &datatypes.Message{
		CaseID:         c.ID,
		Role:           datatypes.RoleMediator,
		Content:        proposal.Summary,
		Round:          c.Round,
		CounterOfferRM: &proposal.RecommendedSettlementRM,
	}
	if err := e.persistMessage(ctx, mediatorMsg); err != nil {
		return err
	}

	slog.Info("Mediator proposal stored",
		"case_id", c.ID,
		"recommended_rm", proposal.RecommendedSettlementRM,
		"confidence", proposal.Confidence,
		"citations", len(proposal.Citations))
	return nil
}

// ParseMediatorProposal scrapes the structured proposal out of raw mediator
// output. Fences and stray prose around the JSON are tolerated; a missing
// settlement amount is not.
func ParseMediatorProposal(raw string) (*datatypes.SettlementProposal, error) {
	cleaned := StripCodeFences(raw)
	if !gjson.Valid(cleaned) {
		return nil, fmt.Errorf("mediator output is not valid JSON")
	}
	parsed := gjson.Parse(cleaned)

	amount := toIntOffer(parsed.Get("recommended_settlement_rm"))
	if amount == nil {
		return nil, fmt.Errorf("mediator output carries no settlement amount")
	}

	proposal := &datatypes.SettlementProposal{
		Summary:                 parsed.Get("summary").String(),
		RecommendedSettlementRM: *amount,
		Confidence:              parsed.Get("confidence").Float(),
	}
	if proposal.Confidence < 0 {
		proposal.Confidence = 0
	}
	if proposal.Confidence > 1 {
		proposal.Confidence = 1
	}

	parsed.Get("citations").ForEach(func(_, item gjson.Result) bool {
		citation := datatypes.LawCitation{
			Law:     audit.CanonicalLawTitle(item.Get("law").String()),
			Section: item.Get("section").String(),
			Excerpt: item.Get("excerpt").String(),
		}
		if citation.Law != "" {
			proposal.Citations = append(proposal.Citations, citation)
		}
		return true
	})

	return proposal, nil
}

// verifiedCitations keeps only the citations the auditor can ground in the
// index. The proposal survives with fewer citations rather than carrying
// unverifiable ones.
func (e *Engine) verifiedCitations(ctx context.Context, citations []datatypes.LawCitation) []datatypes.LawCitation {
	kept := make([]datatypes.LawCitation, 0, len(citations))
	for _, c := range citations {
		ok := e.auditor.VerifyCitation(ctx, audit.Citation{
			Raw:     fmt.Sprintf("%s section %s", c.Law, c.Section),
			Kind:    audit.KindStatuteSection,
			Law:     c.Law,
			Section: c.Section,
		})
		if ok {
			kept = append(kept, c)
			continue
		}
		slog.Warn("Dropping unverifiable mediator citation", "law", c.Law, "section", c.Section)
	}
	return kept
}
