// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
	"github.com/lexmachina/lexmachina/services/orchestrator/engine"
	"github.com/lexmachina/lexmachina/services/orchestrator/store"
)

// NextTurn plays one interactive round: the caller speaks as one side and
// the opposing persona answers in the response body.
func NextTurn(eng NegotiationEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := caseTracer.Start(c.Request.Context(), "NextTurn")
		defer span.End()
		caseID := c.Param("caseId")

		var req datatypes.NextTurnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := eng.RunTurn(ctx, caseID, req.Message, req.Role)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case errors.Is(err, store.ErrCaseNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
			case errors.Is(err, engine.ErrCaseConcluded):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				slog.Error("Turn failed", "case_id", caseID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "turn failed"})
			}
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// GenerateChips produces strategy suggestion chips for the user's next move.
func GenerateChips(eng NegotiationEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := caseTracer.Start(c.Request.Context(), "GenerateChips")
		defer span.End()
		caseID := c.Param("caseId")

		chips, err := eng.GenerateChips(ctx, caseID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if errors.Is(err, store.ErrCaseNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
				return
			}
			slog.Error("Chip generation failed", "case_id", caseID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate chips"})
			return
		}
		c.JSON(http.StatusOK, chips)
	}
}

// GetOutcomeDocument returns the HTML outcome document for a concluded case:
// a settlement agreement when settled, a Form 206 court filing on deadlock.
// The document is generated on first request and cached on the case.
func GetOutcomeDocument(eng NegotiationEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := caseTracer.Start(c.Request.Context(), "GetOutcomeDocument")
		defer span.End()
		caseID := c.Param("caseId")

		html, err := eng.GenerateOutcomeDocument(ctx, caseID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case errors.Is(err, store.ErrCaseNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
			case errors.Is(err, engine.ErrCaseStillActive):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				slog.Error("Document generation failed", "case_id", caseID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate document"})
			}
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
	}
}
