// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// HealthCheck reports service liveness plus the readiness of the law index.
// The service stays alive without Weaviate; retrieval degrades instead.
func HealthCheck(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		weaviateReady := false
		if client != nil {
			if ready, err := client.Misc().ReadyChecker().Do(c.Request.Context()); err == nil {
				weaviateReady = ready
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"weaviate_ready": weaviateReady,
		})
	}
}
