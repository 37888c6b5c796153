// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"strings"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

// Persona system prompts. Personas must cite only from the supplied law
// fragments; the auditor rejects anything else.

const plaintiffSystemPrompt = `You are counsel for the PLAINTIFF in a Malaysian small-claims negotiation.
Argue firmly for your client's claim. Cite statutes ONLY from the law fragments
provided in the prompt; never invent a citation. Respond with a single JSON
object: {"message": "<your argument>", "counter_offer_rm": <integer or null>}.
Offer a number only when it advances your client's position.`

const defendantSystemPrompt = `You are counsel for the DEFENDANT in a Malaysian small-claims negotiation.
Contest weak claims and concede only what the law requires. Cite statutes ONLY
from the law fragments provided in the prompt; never invent a citation.
Respond with a single JSON object:
{"message": "<your argument>", "counter_offer_rm": <integer or null>}.
Make a counter-offer when conceding some liability is realistic.`

const mediatorSystemPrompt = `You are a neutral MEDIATOR for a Malaysian small-claims negotiation.
Ground every statement strictly in the law fragments and transcript provided.
Respond with a single JSON object and nothing else.`

// stageGuidance returns the posture instruction for the round's stage.
func stageGuidance(stage datatypes.Stage) string {
	switch stage {
	case datatypes.StageEarly:
		return "STAGE: opening arguments. Establish your strongest legal position. Numbers are optional."
	case datatypes.StageNegotiation:
		return "STAGE: negotiation. The mediator urges both sides to converge; put a concrete RM amount on the table and justify it."
	case datatypes.StageFinal:
		return "STAGE: final round. State your best and final position with a concrete RM amount. There will be no further rounds."
	default:
		return "STAGE: the rounds are exhausted. Summarize your position; the mediator will propose a settlement."
	}
}

// buildPersonaPrompt assembles the user prompt for one persona turn.
func buildPersonaPrompt(c *datatypes.Case, role datatypes.Role, round int,
	lawContext string, evidence []datatypes.Evidence, history []datatypes.Message,
	auditorWarning string) string {

	var b strings.Builder

	fmt.Fprintf(&b, "CASE: %s (%s). Claim amount: RM %d.\n", c.Title, c.CaseType, c.ClaimAmountRM)
	fmt.Fprintf(&b, "ROUND %d of %d. %s\n\n", round, datatypes.MaxRounds, stageGuidance(datatypes.StageForRound(round)))

	b.WriteString("RELEVANT LAW:\n")
	b.WriteString(lawContext)
	b.WriteString("\n\n")

	if len(evidence) > 0 {
		b.WriteString("EVIDENCE ON RECORD:\n")
		for _, e := range evidence {
			text := e.ExtractedText
			if len(text) > 600 {
				text = text[:600] + "..."
			}
			fmt.Fprintf(&b, "- [%s] %s\n", e.FileType, text)
		}
		b.WriteString("\n")
	}

	if len(history) > 0 {
		b.WriteString("TRANSCRIPT SO FAR:\n")
		b.WriteString(formatTranscript(history, 12))
		b.WriteString("\n")
	}

	if auditorWarning != "" {
		fmt.Fprintf(&b, "AUDITOR WARNING: %s\nRegenerate your reply without the unverified citation.\n\n", auditorWarning)
	}

	fmt.Fprintf(&b, "Reply now as the %s.", strings.ToUpper(string(role)))
	return b.String()
}

// formatTranscript renders the most recent history entries, newest last.
func formatTranscript(history []datatypes.Message, limit int) string {
	start := 0
	if len(history) > limit {
		start = len(history) - limit
	}
	var b strings.Builder
	for _, m := range history[start:] {
		line := m.Content
		if len(line) > 400 {
			line = line[:400] + "..."
		}
		fmt.Fprintf(&b, "[round %d] %s: %s\n", m.Round, m.Role, line)
		if m.CounterOfferRM != nil {
			fmt.Fprintf(&b, "  (offered RM %d)\n", *m.CounterOfferRM)
		}
	}
	return b.String()
}

// buildMediatorPrompt asks for a structured settlement proposal.
func buildMediatorPrompt(c *datatypes.Case, lawContext string, history []datatypes.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CASE: %s (%s). Claim amount: RM %d.\n\n", c.Title, c.CaseType, c.ClaimAmountRM)
	b.WriteString("RELEVANT LAW:\n")
	b.WriteString(lawContext)
	b.WriteString("\n\nFULL TRANSCRIPT:\n")
	b.WriteString(formatTranscript(history, 24))
	b.WriteString(`
Propose a settlement. Respond with exactly this JSON shape:
{
  "summary": "<two to four sentences weighing both positions>",
  "recommended_settlement_rm": <integer>,
  "confidence": <0.0 to 1.0>,
  "citations": [{"law": "<statute title>", "section": "<section>", "excerpt": "<quoted fragment text>"}]
}
Cite only provisions that appear in the law fragments above.`)
	return b.String()
}

// buildChipsPrompt asks for the next-move question and strategy options.
func buildChipsPrompt(c *datatypes.Case, history []datatypes.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CASE: %s. Claim amount: RM %d.\n\nTRANSCRIPT:\n", c.Title, c.ClaimAmountRM)
	b.WriteString(formatTranscript(history, 8))
	b.WriteString(`
The user must choose their next negotiation move. Respond with exactly:
{
  "question": "<one short question framing the decision>",
  "options": [
    {"label": "<move description>", "strategy_id": "demand_proof"},
    {"label": "<move description>", "strategy_id": "concede_small"},
    {"label": "<move description>", "strategy_id": "cite_legal"}
  ]
}`)
	return b.String()
}

// buildSettlementAgreementPrompt asks for the settlement agreement document.
func buildSettlementAgreementPrompt(c *datatypes.Case) string {
	amount := c.ClaimAmountRM
	if c.Settlement != nil {
		amount = c.Settlement.RecommendedSettlementRM
	}
	return fmt.Sprintf(`Draft a settlement agreement as a complete standalone HTML document.
Case: %s (%s). Settled amount: RM %d.
Include: parties as Plaintiff and Defendant, recitals of the dispute, the
settlement sum in words and figures, payment within 14 days, mutual release
of claims, and signature blocks with date lines. Formal Malaysian legal
drafting style. Output only the HTML.`, c.Title, c.CaseType, amount)
}

// buildCourtFilingPrompt asks for the Form 206 style statement of claim used
// when the negotiation deadlocks.
func buildCourtFilingPrompt(c *datatypes.Case, history []datatypes.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Draft a Malaysian small-claims court filing (Form 206, Statement of Claim)
as a complete standalone HTML document.
Case: %s (%s). Claim amount: RM %d.
`, c.Title, c.CaseType, c.ClaimAmountRM)
	b.WriteString("\nNEGOTIATION SUMMARY:\n")
	b.WriteString(formatTranscript(history, 10))
	b.WriteString(`
Include: court heading, parties, numbered particulars of claim, the relief
sought, and a signature block. Output only the HTML.`)
	return b.String()
}

// systemPromptFor returns the system prompt for a persona role.
func systemPromptFor(role datatypes.Role) string {
	switch role {
	case datatypes.RolePlaintiff:
		return plaintiffSystemPrompt
	case datatypes.RoleDefendant:
		return defendantSystemPrompt
	default:
		return mediatorSystemPrompt
	}
}
