// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Stage is the negotiation phase derived from the current round. Personas
// change posture by stage: opening arguments early, concrete numbers in the
// negotiation stage, best-and-final in the last round.
type Stage string

const (
	StageEarly           Stage = "early"
	StageNegotiation     Stage = "negotiation"
	StageFinal           Stage = "final"
	StagePendingDecision Stage = "pending_decision"
)

// StageForRound maps a 1-indexed round to its stage.
// Rounds past MaxRounds are the half-round where the user must decide
// whether to accept the mediator proposal.
func StageForRound(round int) Stage {
	switch {
	case round <= 2:
		return StageEarly
	case round == 3:
		return StageNegotiation
	case round == MaxRounds:
		return StageFinal
	default:
		return StagePendingDecision
	}
}

// TurnResult is the outcome of one engine turn. It mirrors the shape stored
// on the transcript message plus the derived game state.
type TurnResult struct {
	AgentMessage   string    `json:"agent_message"`
	AgentRole      Role      `json:"agent_role"`
	Round          int       `json:"round"`
	CounterOfferRM *int      `json:"counter_offer_rm,omitempty"`
	GameState      GameState `json:"game_state"`
	AuditorPassed  bool      `json:"auditor_passed"`
	AuditorWarning string    `json:"auditor_warning,omitempty"`
}

// OfferEvaluation is the symbolic verdict over a parsed offer.
type OfferEvaluation struct {
	HasOffer    bool `json:"has_offer"`
	OfferAmount int  `json:"offer_amount"`
	MeetsFloor  bool `json:"meets_floor"`
}

// ChipOption is one selectable negotiation strategy presented to the user.
type ChipOption struct {
	Label      string `json:"label"`
	StrategyID string `json:"strategy_id"`
}

// ChipSet is the question plus strategy options generated from a transcript.
type ChipSet struct {
	Question string       `json:"question"`
	Options  []ChipOption `json:"options"`
}
