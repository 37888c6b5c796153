// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/otel/codes"

	"github.com/lexmachina/lexmachina/services/llm"
	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
	"github.com/lexmachina/lexmachina/services/orchestrator/observability"
	"github.com/lexmachina/lexmachina/services/orchestrator/rag"
)

// IngestStatute cleans, chunks, embeds, and upserts a statute into the law
// index. Re-ingesting the same statute overwrites its chunks in place.
func IngestStatute(client *weaviate.Client, embedder llm.EmbeddingProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Degraded mode: the service runs without a law index when
		// WEAVIATE_SERVICE_URL is unset.
		if client == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "law index not configured"})
			return
		}

		ctx, span := caseTracer.Start(c.Request.Context(), "IngestStatute")
		defer span.End()

		var req datatypes.IngestStatuteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		chunks, err := rag.Ingest(ctx, client, embedder, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Statute ingestion failed", "source", req.Source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed"})
			return
		}
		if m := observability.DefaultMetrics; m != nil {
			m.RecordIngestedChunks(chunks)
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"source": req.Source,
			"chunks": chunks,
		})
	}
}

// ListLawSources lists the statute sources present in the law index.
func ListLawSources(retriever *rag.LawRetriever) gin.HandlerFunc {
	return func(c *gin.Context) {
		if retriever == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "law index not configured"})
			return
		}
		sources, err := retriever.ListSources(c.Request.Context())
		if err != nil {
			slog.Error("Failed to list law sources", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list law sources"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sources": sources})
	}
}
