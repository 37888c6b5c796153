// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lexmachina/lexmachina/services/llm"
	"github.com/lexmachina/lexmachina/services/orchestrator/audit"
	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
	"github.com/lexmachina/lexmachina/services/orchestrator/observability"
	"github.com/lexmachina/lexmachina/services/orchestrator/store"
)

var engineTracer = otel.Tracer("lexmachina.orchestrator.engine")

// defaultTurnTimeout bounds a single persona generation.
const defaultTurnTimeout = 90 * time.Second

// ErrCaseConcluded is returned for turn requests against a case whose
// negotiation already reached a terminal state.
var ErrCaseConcluded = errors.New("negotiation already concluded")

// ErrCaseStillActive is returned when an outcome document is requested
// before the negotiation reaches settled or deadlock.
var ErrCaseStillActive = errors.New("case has no outcome document yet")

// Retriever supplies law context for persona prompts.
type Retriever interface {
	RetrieveLaw(ctx context.Context, query string) ([]datatypes.LawFragment, error)
}

// TurnAuditor verifies citations in persona output.
type TurnAuditor interface {
	ValidateTurn(ctx context.Context, text string) (*audit.Verdict, error)
	VerifyCitation(ctx context.Context, c audit.Citation) bool
}

// Config wires the engine's dependencies.
type Config struct {
	Store     *store.CaseStore
	LLM       llm.LLMClient
	Backend   string // metrics label: "openai" or "ollama"
	Retriever Retriever
	Auditor   TurnAuditor

	// ColdStore mirrors transcript messages into Weaviate. Optional.
	ColdStore *weaviate.Client

	Metrics     *observability.NegotiationMetrics
	TurnTimeout time.Duration
}

// Engine drives negotiation turns and autonomous case runs.
type Engine struct {
	store       *store.CaseStore
	llm         llm.LLMClient
	backend     string
	retriever   Retriever
	auditor     TurnAuditor
	cold        *weaviate.Client
	metrics     *observability.NegotiationMetrics
	turnTimeout time.Duration
}

// New builds an Engine from the config.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine requires a case store")
	}
	if cfg.LLM == nil {
		return nil, fmt.Errorf("engine requires an LLM client")
	}
	if cfg.Auditor == nil {
		return nil, fmt.Errorf("engine requires an auditor")
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	return &Engine{
		store:       cfg.Store,
		llm:         cfg.LLM,
		backend:     cfg.Backend,
		retriever:   cfg.Retriever,
		auditor:     cfg.Auditor,
		cold:        cfg.ColdStore,
		metrics:     cfg.Metrics,
		turnTimeout: cfg.TurnTimeout,
	}, nil
}

// =============================================================================
// Interactive turns
// =============================================================================

// RunTurn drives one interactive round: the user's message is recorded and
// the opposing persona answers.
func (e *Engine) RunTurn(ctx context.Context, caseID, userMessage string, userRole datatypes.Role) (*datatypes.TurnResult, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.RunTurn")
	defer span.End()
	span.SetAttributes(
		attribute.String("case.id", caseID),
		attribute.String("turn.user_role", string(userRole)),
	)

	c, err := e.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.GameState == datatypes.GameSettled || c.GameState == datatypes.GameDeadlock {
		return nil, fmt.Errorf("%w: state %q", ErrCaseConcluded, c.GameState)
	}

	round := c.Round
	userMsg := &datatypes.Message{
		CaseID:  caseID,
		Role:    userRole,
		Content: userMessage,
		Round:   round,
	}
	if err := e.persistMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	result, agentMsg, err := e.agentTurn(ctx, c, userRole.Opponent(), round, userMessage)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordTurn(string(userRole.Opponent()), false)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordTurn(string(result.AgentRole), true)
	}

	// One interactive turn is a full exchange: the user spoke, the
	// opposing persona answered, the round is complete.
	newRound := round + 1

	eval := EvaluateOffer(agentMsg.CounterOfferRM, c.FloorPriceRM)
	gameState := datatypes.GameActive
	switch {
	case eval.MeetsFloor:
		gameState = datatypes.GameSettled
	case newRound > datatypes.MaxRounds:
		gameState = datatypes.GamePendingDecision
	}
	result.Round = newRound
	result.GameState = gameState

	updated, err := e.store.UpdateCase(ctx, caseID, func(c *datatypes.Case) error {
		c.Round = newRound
		c.GameState = gameState
		return nil
	})
	if err != nil {
		return nil, err
	}

	if gameState != datatypes.GameActive && updated.Settlement == nil {
		// Best effort: a failed proposal must not undo the turn.
		if err := e.proposeSettlement(ctx, updated); err != nil {
			slog.Error("Failed to generate mediator proposal", "case_id", caseID, "error", err)
		}
	}

	return result, nil
}

// =============================================================================
// Autonomous runs
// =============================================================================

// RunCase plays the case out autonomously: plaintiff and defendant alternate
// until an offer meets the floor or the rounds run out, then the mediator
// proposes. Mode "mvp" stops after the opening round.
//
// The caller must have transitioned the case to running (MarkRunning) before
// invoking this, typically from a background goroutine.
func (e *Engine) RunCase(ctx context.Context, caseID, mode string) error {
	ctx, span := engineTracer.Start(ctx, "Engine.RunCase")
	defer span.End()
	span.SetAttributes(attribute.String("case.id", caseID), attribute.String("run.mode", mode))

	if e.metrics != nil {
		e.metrics.CaseStarted()
	}

	finalState, err := e.runCaseLoop(ctx, caseID, mode)
	if err != nil {
		slog.Error("Case run failed", "case_id", caseID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.failCase(caseID, err)
		if e.metrics != nil {
			e.metrics.CaseEnded("error")
		}
		return err
	}

	if e.metrics != nil {
		e.metrics.CaseEnded(string(finalState))
	}
	return nil
}

func (e *Engine) runCaseLoop(ctx context.Context, caseID, mode string) (datatypes.GameState, error) {
	c, err := e.store.GetCase(ctx, caseID)
	if err != nil {
		return "", err
	}

	lastRound := datatypes.MaxRounds
	if mode == "mvp" {
		lastRound = c.Round
	}

	gameState := c.GameState
	for round := c.Round; round <= lastRound && gameState == datatypes.GameActive; round++ {
		for _, role := range []datatypes.Role{datatypes.RolePlaintiff, datatypes.RoleDefendant} {
			c, err = e.store.GetCase(ctx, caseID)
			if err != nil {
				return "", err
			}

			result, agentMsg, err := e.agentTurn(ctx, c, role, round, "")
			if err != nil {
				if e.metrics != nil {
					e.metrics.RecordTurn(string(role), false)
				}
				return "", fmt.Errorf("%s turn failed in round %d: %w", role, round, err)
			}
			if e.metrics != nil {
				e.metrics.RecordTurn(string(result.AgentRole), true)
			}

			// Only the defendant's concession can satisfy the plaintiff's
			// floor; a plaintiff "offer" is a demand.
			if role == datatypes.RoleDefendant {
				eval := EvaluateOffer(agentMsg.CounterOfferRM, c.FloorPriceRM)
				if eval.MeetsFloor {
					gameState = datatypes.GameSettled
				}
			}
			if gameState != datatypes.GameActive {
				break
			}
		}

		nextRound := round + 1
		if _, err := e.store.UpdateCase(ctx, caseID, func(c *datatypes.Case) error {
			c.Round = nextRound
			c.GameState = gameState
			return nil
		}); err != nil {
			return "", err
		}
	}

	if gameState == datatypes.GameActive && mode != "mvp" {
		gameState = datatypes.GameDeadlock
	}

	updated, err := e.store.UpdateCase(ctx, caseID, func(c *datatypes.Case) error {
		c.GameState = gameState
		c.Status = datatypes.StatusDone
		return nil
	})
	if err != nil {
		return "", err
	}

	if gameState == datatypes.GameSettled || gameState == datatypes.GameDeadlock {
		if err := e.proposeSettlement(ctx, updated); err != nil {
			slog.Error("Failed to generate mediator proposal", "case_id", caseID, "error", err)
		}
	}

	slog.Info("Case run finished", "case_id", caseID, "game_state", gameState)
	return gameState, nil
}

// failCase records a run failure on the case. Uses a fresh context so the
// bookkeeping survives the run context being cancelled.
func (e *Engine) failCase(caseID string, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := e.store.UpdateCase(ctx, caseID, func(c *datatypes.Case) error {
		c.Status = datatypes.StatusError
		return nil
	}); err != nil {
		slog.Error("Failed to mark case errored", "case_id", caseID, "error", err)
		return
	}
	sysMsg := &datatypes.Message{
		CaseID:  caseID,
		Role:    datatypes.RoleSystem,
		Content: fmt.Sprintf("Negotiation run aborted: %v", runErr),
	}
	if err := e.persistMessage(ctx, sysMsg); err != nil {
		slog.Error("Failed to record failure message", "case_id", caseID, "error", err)
	}
}

// =============================================================================
// Single persona turn
// =============================================================================

// agentTurn generates, audits, and persists one persona message. The
// returned TurnResult carries audit state; round and game state are filled
// in by the caller.
func (e *Engine) agentTurn(ctx context.Context, c *datatypes.Case, role datatypes.Role,
	round int, userMessage string) (*datatypes.TurnResult, *datatypes.Message, error) {

	ctx, span := engineTracer.Start(ctx, "Engine.agentTurn")
	defer span.End()
	span.SetAttributes(
		attribute.String("turn.role", string(role)),
		attribute.Int("turn.round", round),
	)

	lawContext := e.retrieveLawContext(ctx, c, userMessage)

	evidence, err := e.store.ListEvidence(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	history, err := e.store.ListMessages(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}

	message, offer, passed, warning, err := e.generateAudited(ctx, c, role, round, lawContext, evidence, history)
	if err != nil {
		return nil, nil, err
	}

	agentMsg := &datatypes.Message{
		CaseID:         c.ID,
		Role:           role,
		Content:        message,
		Round:          round,
		CounterOfferRM: offer,
		AuditorWarning: warning,
	}
	if err := e.persistMessage(ctx, agentMsg); err != nil {
		return nil, nil, err
	}

	result := &datatypes.TurnResult{
		AgentMessage:   message,
		AgentRole:      role,
		Round:          round,
		CounterOfferRM: offer,
		AuditorPassed:  passed,
		AuditorWarning: warning,
	}
	return result, agentMsg, nil
}

// generateAudited runs the generate → audit → regenerate-once pipeline.
// If the regeneration also fails the audit, the reply is kept and the
// warning travels with it.
func (e *Engine) generateAudited(ctx context.Context, c *datatypes.Case, role datatypes.Role,
	round int, lawContext string, evidence []datatypes.Evidence,
	history []datatypes.Message) (string, *int, bool, string, error) {

	prompt := buildPersonaPrompt(c, role, round, lawContext, evidence, history, "")
	raw, err := e.generate(ctx, role, prompt)
	if err != nil {
		return "", nil, false, "", err
	}
	message, offer := ParseAgentReply(raw)

	verdict, err := e.auditor.ValidateTurn(ctx, message)
	if err != nil {
		return "", nil, false, "", fmt.Errorf("citation audit failed: %w", err)
	}
	if verdict.IsValid {
		if e.metrics != nil {
			e.metrics.RecordAuditVerdict("pass")
		}
		return message, offer, true, "", nil
	}
	if e.metrics != nil {
		e.metrics.RecordAuditVerdict("fail")
	}
	slog.Warn("Turn failed citation audit, regenerating",
		"case_id", c.ID, "role", role, "flagged", verdict.FlaggedLaw)

	retryPrompt := buildPersonaPrompt(c, role, round, lawContext, evidence, history, verdict.Warning)
	raw, err = e.generate(ctx, role, retryPrompt)
	if err != nil {
		return "", nil, false, "", err
	}
	message, offer = ParseAgentReply(raw)

	retryVerdict, err := e.auditor.ValidateTurn(ctx, message)
	if err != nil {
		return "", nil, false, "", fmt.Errorf("citation audit failed: %w", err)
	}
	if retryVerdict.IsValid {
		if e.metrics != nil {
			e.metrics.RecordAuditVerdict("pass")
		}
		return message, offer, true, "", nil
	}

	if e.metrics != nil {
		e.metrics.RecordAuditVerdict("fail_after_retry")
	}
	return message, offer, false, retryVerdict.Warning, nil
}

// generate calls the LLM with the persona system prompt and a turn timeout.
func (e *Engine) generate(ctx context.Context, role datatypes.Role, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	defer cancel()

	params := llm.GenerationParams{
		Temperature:  llm.Float32Ptr(0.7),
		MaxTokens:    llm.IntPtr(1024),
		SystemPrompt: llm.StringPtr(systemPromptFor(role)),
	}

	started := time.Now()
	raw, err := e.llm.Generate(genCtx, prompt, params)
	if e.metrics != nil {
		e.metrics.RecordLLMLatency(e.backend, time.Since(started).Seconds())
	}
	if err != nil {
		return "", fmt.Errorf("persona generation failed: %w", err)
	}
	return raw, nil
}

// retrieveLawContext fetches statute fragments for the turn. Retrieval
// problems degrade to an explanatory context instead of failing the turn.
func (e *Engine) retrieveLawContext(ctx context.Context, c *datatypes.Case, userMessage string) string {
	if e.retriever == nil {
		return "No relevant law fragments were found in the index."
	}

	query := c.Title + " " + c.CaseType
	if userMessage != "" {
		query += " " + userMessage
	}
	if len(query) > 512 {
		query = query[:512]
	}

	fragments, err := e.retriever.RetrieveLaw(ctx, query)
	if e.metrics != nil {
		e.metrics.RecordRetrieval(err == nil)
	}
	if err != nil {
		slog.Error("Law retrieval failed, arguing without context", "case_id", c.ID, "error", err)
		return "The law index is unavailable for this turn. Do not cite any statute."
	}
	return datatypes.FormatLawContext(fragments)
}

// persistMessage writes a message to the warm store and mirrors it into the
// cold store off the turn path.
func (e *Engine) persistMessage(ctx context.Context, m *datatypes.Message) error {
	if err := e.store.AppendMessage(ctx, m); err != nil {
		return err
	}
	if e.cold != nil {
		msgCopy := *m
		go func() {
			coldCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = datatypes.SaveTurnRecord(coldCtx, e.cold, &msgCopy)
		}()
	}
	return nil
}
