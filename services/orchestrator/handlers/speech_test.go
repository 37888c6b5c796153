// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/lexmachina/lexmachina/services/orchestrator/tts"
)

func TestHandleSpeechDisabled(t *testing.T) {
	t.Setenv("TTS_SERVICE_URL", "")
	router := gin.New()
	router.POST("/v1/cases/:caseId/speech", HandleSpeech(tts.NewSynthesizerFromEnv()))

	w := doJSON(router, http.MethodPost, "/v1/cases/c1/speech", gin.H{
		"text": "We can offer RM 3500.",
		"role": "defendant",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestHandleSpeechRejectsBadRole(t *testing.T) {
	router := gin.New()
	router.POST("/v1/cases/:caseId/speech", HandleSpeech(tts.NewSynthesizerFromEnv()))

	w := doJSON(router, http.MethodPost, "/v1/cases/c1/speech", gin.H{
		"text": "hello",
		"role": "bailiff",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHealthCheckWithoutWeaviate(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck(nil))

	w := doJSON(router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
