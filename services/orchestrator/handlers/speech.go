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

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
	"github.com/lexmachina/lexmachina/services/orchestrator/tts"
)

// SpeechRequest is the body for POST /v1/cases/:caseId/speech.
type SpeechRequest struct {
	Text string         `json:"text" binding:"required"`
	Role datatypes.Role `json:"role" binding:"required,oneof=plaintiff defendant mediator"`
}

// HandleSpeech synthesizes a transcript line in the voice of its courtroom
// role and streams the audio back. Answers 503 when no TTS service is
// configured.
func HandleSpeech(synth *tts.Synthesizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := c.Param("caseId")

		var req SpeechRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		audio, contentType, err := synth.Synthesize(c.Request.Context(), req.Role, req.Text)
		if err != nil {
			if errors.Is(err, tts.ErrDisabled) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "speech synthesis is not configured"})
				return
			}
			slog.Error("Speech synthesis failed", "case_id", caseID, "role", req.Role, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "speech synthesis failed"})
			return
		}
		c.Data(http.StatusOK, contentType, audio)
	}
}
