// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the core case model: the dispute case itself, the
// transcript messages, and the evidence records. Request/response types for
// the HTTP surface live here too so that handlers stay thin.
package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxUserMessageBytes is the maximum size of a single user-supplied
	// message. Checked in bytes, not runes, to bound memory.
	MaxUserMessageBytes = 32 * 1024 // 32KB

	// MaxEvidenceTextBytes bounds the extracted text stored per evidence item.
	MaxEvidenceTextBytes = 256 * 1024 // 256KB

	// MaxRounds is the number of full negotiation rounds before the case
	// moves to the pending-decision stage (round 4.5 in the UI).
	MaxRounds = 4
)

// CaseStatus is the lifecycle status of a case.
type CaseStatus string

const (
	StatusCreated CaseStatus = "created"
	StatusRunning CaseStatus = "running"
	StatusDone    CaseStatus = "done"
	StatusError   CaseStatus = "error"
)

// GameState is the negotiation outcome state tracked across turns.
type GameState string

const (
	GameActive          GameState = "active"
	GameSettled         GameState = "settled"
	GameDeadlock        GameState = "deadlock"
	GamePendingDecision GameState = "pending_decision"
)

// Role identifies who produced a transcript message.
type Role string

const (
	RolePlaintiff Role = "plaintiff"
	RoleDefendant Role = "defendant"
	RoleMediator  Role = "mediator"
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
)

// Opponent returns the persona arguing against the given role.
// The mediator has no opponent; it returns RoleMediator unchanged.
func (r Role) Opponent() Role {
	switch r {
	case RolePlaintiff:
		return RoleDefendant
	case RoleDefendant:
		return RolePlaintiff
	default:
		return r
	}
}

// =============================================================================
// Core Model
// =============================================================================

// Case is a single small-claims dispute moving through the negotiation
// pipeline. Monetary amounts are whole Ringgit (RM).
type Case struct {
	ID            string     `json:"case_id"`
	Title         string     `json:"title"`
	CaseType      string     `json:"case_type"`
	ClaimAmountRM int        `json:"claim_amount_rm"`
	FloorPriceRM  int        `json:"floor_price_rm"`
	Status        CaseStatus `json:"status"`
	GameState     GameState  `json:"game_state"`
	Round         int        `json:"round"`

	// Settlement is the mediator proposal, set once the negotiation reaches
	// a terminal state. Nil while the case is active.
	Settlement *SettlementProposal `json:"settlement,omitempty"`

	// DocumentHTML is the lazily generated outcome document (settlement
	// agreement or court filing). Empty until first requested. The store
	// round-trips cases through JSON, so the field needs a real key; the
	// API result view (CaseResultResponse) does not carry it.
	DocumentHTML string `json:"document_html,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Message is one entry in a case transcript.
type Message struct {
	ID             string `json:"message_id"`
	CaseID         string `json:"case_id"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	Round          int    `json:"round"`
	CounterOfferRM *int   `json:"counter_offer_rm,omitempty"`
	AuditorWarning string `json:"auditor_warning,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// Evidence is a piece of uploaded evidence attached to a case.
type Evidence struct {
	ID            string `json:"evidence_id"`
	CaseID        string `json:"case_id"`
	FileType      string `json:"file_type"`
	StorageURL    string `json:"storage_url,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	ExtractedText string `json:"extracted_text,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

// SettlementProposal is the mediator's structured settlement recommendation.
//
// The mediator must ground its citations in retrieved law context; citations
// that fail the auditor are removed before the proposal is stored.
type SettlementProposal struct {
	Summary                 string        `json:"summary"`
	RecommendedSettlementRM int           `json:"recommended_settlement_rm"`
	Confidence              float64       `json:"confidence"`
	Citations               []LawCitation `json:"citations"`
}

// LawCitation is a statute reference carried inside a mediator proposal.
type LawCitation struct {
	Law     string `json:"law"`
	Section string `json:"section"`
	Excerpt string `json:"excerpt"`
}

// =============================================================================
// Shared Validator
// =============================================================================

// caseValidate is the validator instance for case datatypes.
var caseValidate *validator.Validate

func init() {
	caseValidate = validator.New()
	_ = caseValidate.RegisterValidation("maxbytes32k", validateMaxBytes32K)
}

// validateMaxBytes32K enforces the MaxUserMessageBytes bound on string fields.
func validateMaxBytes32K(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxUserMessageBytes
}

// =============================================================================
// Request / Response Types
// =============================================================================

// StartCaseRequest is the body for POST /v1/cases.
//
// # Fields
//
//   - Title: Required. Human-readable case title.
//   - CaseType: Optional. Dispute category, defaults to "tenancy_deposit".
//   - ClaimAmountRM: Required. The amount claimed, whole RM, must be positive.
//   - FloorPriceRM: Optional. The plaintiff's secret minimum acceptable
//     settlement. Zero means "accept anything".
type StartCaseRequest struct {
	Title         string `json:"title" validate:"required,max=300"`
	CaseType      string `json:"case_type" validate:"omitempty,max=64"`
	ClaimAmountRM int    `json:"claim_amount_rm" validate:"required,gt=0,lte=1000000"`
	FloorPriceRM  int    `json:"floor_price_rm" validate:"gte=0,lte=1000000"`
}

// Validate validates the StartCaseRequest fields.
func (r *StartCaseRequest) Validate() error {
	if err := caseValidate.Struct(r); err != nil {
		return err
	}
	if r.FloorPriceRM > r.ClaimAmountRM {
		return fmt.Errorf("floor_price_rm (%d) cannot exceed claim_amount_rm (%d)",
			r.FloorPriceRM, r.ClaimAmountRM)
	}
	return nil
}

// EnsureDefaults populates default values for optional fields.
func (r *StartCaseRequest) EnsureDefaults() {
	if r.CaseType == "" {
		r.CaseType = "tenancy_deposit"
	}
}

// NewCase builds a Case from a validated StartCaseRequest.
func (r *StartCaseRequest) NewCase() *Case {
	now := time.Now().UnixMilli()
	return &Case{
		ID:            uuid.New().String(),
		Title:         r.Title,
		CaseType:      r.CaseType,
		ClaimAmountRM: r.ClaimAmountRM,
		FloorPriceRM:  r.FloorPriceRM,
		Status:        StatusCreated,
		GameState:     GameActive,
		Round:         1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AddEvidenceRequest is the body for POST /v1/cases/:caseId/evidence.
//
// Either Text or StorageURL must be set. When only StorageURL is given the
// evidence service downloads and extracts the content (size and MIME capped).
type AddEvidenceRequest struct {
	FileType   string `json:"file_type" validate:"required,max=32"`
	StorageURL string `json:"storage_url" validate:"omitempty,url,max=2048"`
	Text       string `json:"text" validate:"omitempty"`
}

// Validate validates the AddEvidenceRequest fields.
func (r *AddEvidenceRequest) Validate() error {
	if err := caseValidate.Struct(r); err != nil {
		return err
	}
	if r.Text == "" && r.StorageURL == "" {
		return fmt.Errorf("either text or storage_url is required")
	}
	if len(r.Text) > MaxEvidenceTextBytes {
		return fmt.Errorf("evidence text exceeds %d bytes", MaxEvidenceTextBytes)
	}
	return nil
}

// RunCaseRequest is the body for POST /v1/cases/:caseId/run.
type RunCaseRequest struct {
	// Mode selects the run profile: "mvp" runs a single opening round,
	// "full" runs the complete multi-round negotiation with the mediator.
	Mode string `json:"mode" validate:"omitempty,oneof=mvp full"`
}

// EnsureDefaults populates default values for optional fields.
func (r *RunCaseRequest) EnsureDefaults() {
	if r.Mode == "" {
		r.Mode = "full"
	}
}

// NextTurnRequest is the body for POST /v1/cases/:caseId/turns.
//
// The user plays one side; the engine answers with the opposing persona.
type NextTurnRequest struct {
	Message string `json:"message" validate:"required,maxbytes32k"`
	Role    Role   `json:"role" validate:"required,oneof=plaintiff defendant"`
}

// Validate validates the NextTurnRequest fields.
func (r *NextTurnRequest) Validate() error {
	return caseValidate.Struct(r)
}

// CaseResultResponse is the body for GET /v1/cases/:caseId.
type CaseResultResponse struct {
	CaseID     string              `json:"case_id"`
	Status     CaseStatus          `json:"status"`
	GameState  GameState           `json:"game_state"`
	Round      int                 `json:"round"`
	Settlement *SettlementProposal `json:"settlement"`
}

// NewCaseResultResponse builds the result view of a case.
func NewCaseResultResponse(c *Case) *CaseResultResponse {
	return &CaseResultResponse{
		CaseID:     c.ID,
		Status:     c.Status,
		GameState:  c.GameState,
		Round:      c.Round,
		Settlement: c.Settlement,
	}
}
