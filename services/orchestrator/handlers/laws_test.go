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
)

// Without WEAVIATE_SERVICE_URL the service runs with no law index; the law
// endpoints must answer 503 instead of dereferencing the nil client.
func TestIngestStatuteWithoutIndex(t *testing.T) {
	router := gin.New()
	router.POST("/v1/laws", IngestStatute(nil, nil))

	w := doJSON(router, http.MethodPost, "/v1/laws", gin.H{
		"content": "74. Compensation for loss caused by breach of contract.",
		"source":  "Contracts Act 1950",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestListLawSourcesWithoutIndex(t *testing.T) {
	router := gin.New()
	router.GET("/v1/laws", ListLawSources(nil))

	w := doJSON(router, http.MethodGet, "/v1/laws", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
