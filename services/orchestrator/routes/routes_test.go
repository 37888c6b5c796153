// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
	"github.com/lexmachina/lexmachina/services/orchestrator/store"
	"github.com/lexmachina/lexmachina/services/orchestrator/tts"
)

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// nopEngine satisfies handlers.NegotiationEngine for route registration tests.
type nopEngine struct{}

func (nopEngine) RunTurn(context.Context, string, string, datatypes.Role) (*datatypes.TurnResult, error) {
	return &datatypes.TurnResult{}, nil
}
func (nopEngine) RunCase(context.Context, string, string) error { return nil }
func (nopEngine) GenerateChips(context.Context, string) (*datatypes.ChipSet, error) {
	return &datatypes.ChipSet{}, nil
}
func (nopEngine) GenerateOutcomeDocument(context.Context, string) (string, error) {
	return "<html></html>", nil
}

func TestSetupRoutesRegistersCoreRoutes(t *testing.T) {
	cases, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer cases.Close()

	router := gin.New()
	// Weaviate, fetcher, and retriever may all be nil; registration must not panic.
	SetupRoutes(router, Deps{
		Cases:  cases,
		Engine: nopEngine{},
		Synth:  tts.NewSynthesizerFromEnv(),
	})

	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/cases"},
		{"GET", "/v1/cases/:caseId"},
		{"GET", "/v1/cases/:caseId/messages"},
		{"GET", "/v1/cases/:caseId/stream"},
		{"POST", "/v1/cases/:caseId/evidence"},
		{"GET", "/v1/cases/:caseId/evidence"},
		{"POST", "/v1/cases/:caseId/run"},
		{"POST", "/v1/cases/:caseId/turns"},
		{"POST", "/v1/cases/:caseId/chips"},
		{"GET", "/v1/cases/:caseId/document"},
		{"POST", "/v1/cases/:caseId/speech"},
		{"POST", "/v1/laws"},
		{"GET", "/v1/laws"},
	}

	routes := router.Routes()
	for _, expected := range coreRoutes {
		found := false
		for _, r := range routes {
			if r.Method == expected.method && r.Path == expected.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected route %s %s not found", expected.method, expected.path)
		}
	}
}

func TestHealthEndpointWithoutWeaviate(t *testing.T) {
	cases, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer cases.Close()

	router := gin.New()
	SetupRoutes(router, Deps{
		Cases:  cases,
		Engine: nopEngine{},
		Synth:  tts.NewSynthesizerFromEnv(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}
