// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides the HTTP handlers for the orchestrator service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
	"github.com/lexmachina/lexmachina/services/orchestrator/evidence"
	"github.com/lexmachina/lexmachina/services/orchestrator/store"
)

var caseTracer = otel.Tracer("lexmachina.orchestrator.handlers")

// NegotiationEngine is the slice of the engine the HTTP surface needs.
type NegotiationEngine interface {
	RunTurn(ctx context.Context, caseID, userMessage string, userRole datatypes.Role) (*datatypes.TurnResult, error)
	RunCase(ctx context.Context, caseID, mode string) error
	GenerateChips(ctx context.Context, caseID string) (*datatypes.ChipSet, error)
	GenerateOutcomeDocument(ctx context.Context, caseID string) (string, error)
}

// EvidenceFetcher downloads and sanitizes evidence URLs.
type EvidenceFetcher interface {
	Fetch(ctx context.Context, url string) (*evidence.Result, error)
}

// runTimeout bounds an autonomous background case run.
const runTimeout = 15 * time.Minute

func CreateCase(cases *store.CaseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := caseTracer.Start(c.Request.Context(), "CreateCase")
		defer span.End()

		var req datatypes.StartCaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		newCase := req.NewCase()
		if err := cases.CreateCase(c.Request.Context(), newCase); err != nil {
			slog.Error("Failed to create case", "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create case"})
			return
		}

		slog.Info("Case created", "case_id", newCase.ID, "case_type", newCase.CaseType,
			"claim_amount_rm", newCase.ClaimAmountRM)
		c.JSON(http.StatusCreated, newCase)
	}
}

func GetCase(cases *store.CaseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := c.Param("caseId")
		result, err := cases.GetCase(c.Request.Context(), caseID)
		if err != nil {
			if errors.Is(err, store.ErrCaseNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
				return
			}
			slog.Error("Failed to load case", "case_id", caseID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load case"})
			return
		}
		c.JSON(http.StatusOK, datatypes.NewCaseResultResponse(result))
	}
}

func ListCaseMessages(cases *store.CaseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := c.Param("caseId")
		if _, err := cases.GetCase(c.Request.Context(), caseID); err != nil {
			if errors.Is(err, store.ErrCaseNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load case"})
			return
		}

		messages, err := cases.ListMessages(c.Request.Context(), caseID)
		if err != nil {
			slog.Error("Failed to list case messages", "case_id", caseID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"case_id": caseID, "messages": messages})
	}
}

// AddEvidence attaches a piece of evidence to a case. Inline text is stored
// directly; a storage URL is downloaded through the fetcher, which enforces
// the MIME allowlist and size cap.
func AddEvidence(cases *store.CaseStore, fetcher EvidenceFetcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := caseTracer.Start(c.Request.Context(), "AddEvidence")
		defer span.End()
		caseID := c.Param("caseId")

		var req datatypes.AddEvidenceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if _, err := cases.GetCase(ctx, caseID); err != nil {
			if errors.Is(err, store.ErrCaseNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load case"})
			return
		}

		ev := &datatypes.Evidence{
			ID:            uuid.New().String(),
			CaseID:        caseID,
			FileType:      req.FileType,
			StorageURL:    req.StorageURL,
			ExtractedText: req.Text,
			CreatedAt:     time.Now().UnixMilli(),
		}

		if req.Text == "" && req.StorageURL != "" {
			result, err := fetcher.Fetch(ctx, req.StorageURL)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				switch {
				case evidence.IsUnsupportedType(err):
					c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
				case evidence.IsTooLarge(err):
					c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
				default:
					slog.Error("Evidence download failed", "case_id", caseID, "error", err)
					c.JSON(http.StatusBadGateway, gin.H{"error": "failed to download evidence"})
				}
				return
			}
			ev.MimeType = result.MimeType
			ev.ExtractedText = result.Text
		}
		if len(ev.ExtractedText) > datatypes.MaxEvidenceTextBytes {
			ev.ExtractedText = ev.ExtractedText[:datatypes.MaxEvidenceTextBytes]
		}

		if err := cases.AddEvidence(ctx, ev); err != nil {
			slog.Error("Failed to store evidence", "case_id", caseID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store evidence"})
			return
		}

		slog.Info("Evidence attached", "case_id", caseID, "evidence_id", ev.ID,
			"file_type", ev.FileType)
		c.JSON(http.StatusCreated, ev)
	}
}

func ListCaseEvidence(cases *store.CaseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := c.Param("caseId")
		items, err := cases.ListEvidence(c.Request.Context(), caseID)
		if err != nil {
			slog.Error("Failed to list evidence", "case_id", caseID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list evidence"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"case_id": caseID, "evidence": items})
	}
}

// RunCase kicks off an autonomous negotiation run in the background and
// answers 202 immediately. A case already running answers 409; the store's
// compare-and-swap makes the check race-free.
func RunCase(cases *store.CaseStore, eng NegotiationEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := caseTracer.Start(c.Request.Context(), "RunCase")
		defer span.End()
		caseID := c.Param("caseId")

		// An empty body is fine and means a default full run.
		var req datatypes.RunCaseRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}
		req.EnsureDefaults()
		if req.Mode != "mvp" && req.Mode != "full" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be \"mvp\" or \"full\""})
			return
		}

		if _, err := cases.MarkRunning(c.Request.Context(), caseID); err != nil {
			switch {
			case errors.Is(err, store.ErrCaseNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
			case errors.Is(err, store.ErrCaseAlreadyRunning):
				c.JSON(http.StatusConflict, gin.H{"error": "case is already running"})
			default:
				slog.Error("Failed to start case run", "case_id", caseID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start case run"})
			}
			return
		}

		slog.Info("Starting background case run", "case_id", caseID, "mode", req.Mode)
		go func() {
			runCtx, cancel := context.WithTimeout(context.Background(), runTimeout)
			defer cancel()
			_ = eng.RunCase(runCtx, caseID, req.Mode)
		}()

		c.JSON(http.StatusAccepted, gin.H{"case_id": caseID, "status": datatypes.StatusRunning})
	}
}
