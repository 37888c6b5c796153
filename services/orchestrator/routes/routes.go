// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/lexmachina/lexmachina/services/llm"
	"github.com/lexmachina/lexmachina/services/orchestrator/handlers"
	"github.com/lexmachina/lexmachina/services/orchestrator/middleware"
	"github.com/lexmachina/lexmachina/services/orchestrator/rag"
	"github.com/lexmachina/lexmachina/services/orchestrator/store"
	"github.com/lexmachina/lexmachina/services/orchestrator/tts"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Cases     *store.CaseStore
	Engine    handlers.NegotiationEngine
	Fetcher   handlers.EvidenceFetcher
	Retriever *rag.LawRetriever
	Weaviate  *weaviate.Client
	Embedder  llm.EmbeddingProvider
	Synth     *tts.Synthesizer

	// APIKey guards the /v1 group. Empty disables authentication.
	APIKey string
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck(deps.Weaviate))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.APIKey))
	{
		cases := v1.Group("/cases")
		{
			cases.POST("", handlers.CreateCase(deps.Cases))
			cases.GET("/:caseId", handlers.GetCase(deps.Cases))
			cases.GET("/:caseId/messages", handlers.ListCaseMessages(deps.Cases))
			cases.GET("/:caseId/stream", handlers.HandleCaseStream(deps.Cases))
			cases.POST("/:caseId/evidence", handlers.AddEvidence(deps.Cases, deps.Fetcher))
			cases.GET("/:caseId/evidence", handlers.ListCaseEvidence(deps.Cases))
			cases.POST("/:caseId/run", handlers.RunCase(deps.Cases, deps.Engine))
			cases.POST("/:caseId/turns", handlers.NextTurn(deps.Engine))
			cases.POST("/:caseId/chips", handlers.GenerateChips(deps.Engine))
			cases.GET("/:caseId/document", handlers.GetOutcomeDocument(deps.Engine))
			cases.POST("/:caseId/speech", handlers.HandleSpeech(deps.Synth))
		}
		// Law index administration routes
		laws := v1.Group("/laws")
		{
			laws.POST("", handlers.IngestStatute(deps.Weaviate, deps.Embedder))
			laws.GET("", handlers.ListLawSources(deps.Retriever))
		}
	}
}
