// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
	"github.com/lexmachina/lexmachina/services/orchestrator/engine"
	"github.com/lexmachina/lexmachina/services/orchestrator/evidence"
	"github.com/lexmachina/lexmachina/services/orchestrator/store"
)

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Fakes
// =============================================================================

// fakeEngine is a minimal NegotiationEngine for handler tests.
type fakeEngine struct {
	turnResult *datatypes.TurnResult
	turnErr    error
	runErr     error
	chips      *datatypes.ChipSet
	chipsErr   error
	html       string
	htmlErr    error
	runCalls   int
}

func (f *fakeEngine) RunTurn(_ context.Context, _, _ string, _ datatypes.Role) (*datatypes.TurnResult, error) {
	return f.turnResult, f.turnErr
}

func (f *fakeEngine) RunCase(_ context.Context, _, _ string) error {
	f.runCalls++
	return f.runErr
}

func (f *fakeEngine) GenerateChips(_ context.Context, _ string) (*datatypes.ChipSet, error) {
	return f.chips, f.chipsErr
}

func (f *fakeEngine) GenerateOutcomeDocument(_ context.Context, _ string) (string, error) {
	return f.html, f.htmlErr
}

// fakeFetcher returns a canned evidence result or error.
type fakeFetcher struct {
	result *evidence.Result
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (*evidence.Result, error) {
	return f.result, f.err
}

// =============================================================================
// Helpers
// =============================================================================

func newTestStore(t *testing.T) *store.CaseStore {
	t.Helper()
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedCase(t *testing.T, s *store.CaseStore) *datatypes.Case {
	t.Helper()
	req := datatypes.StartCaseRequest{
		Title:         "Landlord kept the deposit",
		ClaimAmountRM: 5000,
		FloorPriceRM:  4000,
	}
	req.EnsureDefaults()
	c := req.NewCase()
	if err := s.CreateCase(context.Background(), c); err != nil {
		t.Fatalf("seed case: %v", err)
	}
	return c
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Case lifecycle
// =============================================================================

func TestCreateCase(t *testing.T) {
	s := newTestStore(t)
	router := gin.New()
	router.POST("/v1/cases", CreateCase(s))

	w := doJSON(router, http.MethodPost, "/v1/cases", gin.H{
		"title":           "Landlord kept the deposit",
		"claim_amount_rm": 5000,
		"floor_price_rm":  4000,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var created datatypes.Case
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Error("expected a case_id")
	}
	if created.CaseType != "tenancy_deposit" {
		t.Errorf("case_type = %q, want default tenancy_deposit", created.CaseType)
	}
	if created.Round != 1 || created.GameState != datatypes.GameActive {
		t.Errorf("new case round/state = %d/%s", created.Round, created.GameState)
	}
}

func TestCreateCaseRejectsFloorAboveClaim(t *testing.T) {
	router := gin.New()
	router.POST("/v1/cases", CreateCase(newTestStore(t)))

	w := doJSON(router, http.MethodPost, "/v1/cases", gin.H{
		"title":           "Bad floor",
		"claim_amount_rm": 1000,
		"floor_price_rm":  2000,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetCaseNotFound(t *testing.T) {
	router := gin.New()
	router.GET("/v1/cases/:caseId", GetCase(newTestStore(t)))

	w := doJSON(router, http.MethodGet, "/v1/cases/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetCaseReturnsResultView(t *testing.T) {
	s := newTestStore(t)
	c := seedCase(t, s)
	router := gin.New()
	router.GET("/v1/cases/:caseId", GetCase(s))

	w := doJSON(router, http.MethodGet, "/v1/cases/"+c.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp datatypes.CaseResultResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CaseID != c.ID || resp.Status != datatypes.StatusCreated {
		t.Errorf("unexpected result view: %+v", resp)
	}
}

// =============================================================================
// Evidence
// =============================================================================

func TestAddEvidenceInlineText(t *testing.T) {
	s := newTestStore(t)
	c := seedCase(t, s)
	router := gin.New()
	router.POST("/v1/cases/:caseId/evidence", AddEvidence(s, &fakeFetcher{}))

	w := doJSON(router, http.MethodPost, fmt.Sprintf("/v1/cases/%s/evidence", c.ID), gin.H{
		"file_type": "txt",
		"text":      "Deposit receipt: RM 4,500",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	items, err := s.ListEvidence(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("ListEvidence() error = %v", err)
	}
	if len(items) != 1 || items[0].ExtractedText != "Deposit receipt: RM 4,500" {
		t.Errorf("stored evidence = %+v", items)
	}
}

func TestAddEvidenceRequiresTextOrURL(t *testing.T) {
	s := newTestStore(t)
	c := seedCase(t, s)
	router := gin.New()
	router.POST("/v1/cases/:caseId/evidence", AddEvidence(s, &fakeFetcher{}))

	w := doJSON(router, http.MethodPost, fmt.Sprintf("/v1/cases/%s/evidence", c.ID), gin.H{
		"file_type": "txt",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAddEvidenceUnsupportedType(t *testing.T) {
	s := newTestStore(t)
	c := seedCase(t, s)
	fetcher := &fakeFetcher{err: &evidence.UnsupportedTypeError{MimeType: "application/zip"}}
	router := gin.New()
	router.POST("/v1/cases/:caseId/evidence", AddEvidence(s, fetcher))

	w := doJSON(router, http.MethodPost, fmt.Sprintf("/v1/cases/%s/evidence", c.ID), gin.H{
		"file_type":   "zip",
		"storage_url": "https://example.com/archive.zip",
	})
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", w.Code)
	}
}

func TestAddEvidenceTooLarge(t *testing.T) {
	s := newTestStore(t)
	c := seedCase(t, s)
	fetcher := &fakeFetcher{err: &evidence.TooLargeError{Limit: evidence.MaxDownloadBytes}}
	router := gin.New()
	router.POST("/v1/cases/:caseId/evidence", AddEvidence(s, fetcher))

	w := doJSON(router, http.MethodPost, fmt.Sprintf("/v1/cases/%s/evidence", c.ID), gin.H{
		"file_type":   "pdf",
		"storage_url": "https://example.com/huge.pdf",
	})
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

// =============================================================================
// Runs
// =============================================================================

func TestRunCaseAccepted(t *testing.T) {
	s := newTestStore(t)
	c := seedCase(t, s)
	eng := &fakeEngine{}
	router := gin.New()
	router.POST("/v1/cases/:caseId/run", RunCase(s, eng))

	w := doJSON(router, http.MethodPost, fmt.Sprintf("/v1/cases/%s/run", c.ID), nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	updated, err := s.GetCase(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCase() error = %v", err)
	}
	if updated.Status != datatypes.StatusRunning {
		t.Errorf("status = %q, want running", updated.Status)
	}
}

func TestRunCaseConflictWhileRunning(t *testing.T) {
	s := newTestStore(t)
	c := seedCase(t, s)
	router := gin.New()
	router.POST("/v1/cases/:caseId/run", RunCase(s, &fakeEngine{}))

	if w := doJSON(router, http.MethodPost, fmt.Sprintf("/v1/cases/%s/run", c.ID), nil); w.Code != http.StatusAccepted {
		t.Fatalf("first run status = %d", w.Code)
	}
	if w := doJSON(router, http.MethodPost, fmt.Sprintf("/v1/cases/%s/run", c.ID), nil); w.Code != http.StatusConflict {
		t.Errorf("second run status = %d, want 409", w.Code)
	}
}

func TestRunCaseUnknownCase(t *testing.T) {
	router := gin.New()
	router.POST("/v1/cases/:caseId/run", RunCase(newTestStore(t), &fakeEngine{}))

	if w := doJSON(router, http.MethodPost, "/v1/cases/nope/run", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRunCaseRejectsUnknownMode(t *testing.T) {
	s := newTestStore(t)
	c := seedCase(t, s)
	router := gin.New()
	router.POST("/v1/cases/:caseId/run", RunCase(s, &fakeEngine{}))

	w := doJSON(router, http.MethodPost, fmt.Sprintf("/v1/cases/%s/run", c.ID), gin.H{"mode": "turbo"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// =============================================================================
// Turns, chips, documents
// =============================================================================

func TestNextTurn(t *testing.T) {
	offer := 3500
	eng := &fakeEngine{turnResult: &datatypes.TurnResult{
		AgentMessage:   "We can offer RM 3500.",
		AgentRole:      datatypes.RoleDefendant,
		Round:          2,
		CounterOfferRM: &offer,
		GameState:      datatypes.GameActive,
		AuditorPassed:  true,
	}}
	router := gin.New()
	router.POST("/v1/cases/:caseId/turns", NextTurn(eng))

	w := doJSON(router, http.MethodPost, "/v1/cases/c1/turns", gin.H{
		"message": "Return my deposit in full.",
		"role":    "plaintiff",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var result datatypes.TurnResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.AgentRole != datatypes.RoleDefendant || result.CounterOfferRM == nil {
		t.Errorf("unexpected turn result: %+v", result)
	}
}

func TestNextTurnRejectsBadRole(t *testing.T) {
	router := gin.New()
	router.POST("/v1/cases/:caseId/turns", NextTurn(&fakeEngine{}))

	w := doJSON(router, http.MethodPost, "/v1/cases/c1/turns", gin.H{
		"message": "hello",
		"role":    "judge",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestNextTurnConcludedCase(t *testing.T) {
	eng := &fakeEngine{turnErr: fmt.Errorf("%w: state %q", engine.ErrCaseConcluded, datatypes.GameSettled)}
	router := gin.New()
	router.POST("/v1/cases/:caseId/turns", NextTurn(eng))

	w := doJSON(router, http.MethodPost, "/v1/cases/c1/turns", gin.H{
		"message": "one more round",
		"role":    "plaintiff",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestGenerateChips(t *testing.T) {
	eng := &fakeEngine{chips: &datatypes.ChipSet{
		Question: "How do you want to respond?",
		Options: []datatypes.ChipOption{
			{Label: "Demand proof", StrategyID: "demand_proof"},
		},
	}}
	router := gin.New()
	router.POST("/v1/cases/:caseId/chips", GenerateChips(eng))

	w := doJSON(router, http.MethodPost, "/v1/cases/c1/chips", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var chips datatypes.ChipSet
	if err := json.Unmarshal(w.Body.Bytes(), &chips); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(chips.Options) != 1 || chips.Options[0].StrategyID != "demand_proof" {
		t.Errorf("unexpected chips: %+v", chips)
	}
}

func TestGetOutcomeDocument(t *testing.T) {
	eng := &fakeEngine{html: "<html><body>Settlement Agreement</body></html>"}
	router := gin.New()
	router.GET("/v1/cases/:caseId/document", GetOutcomeDocument(eng))

	w := doJSON(router, http.MethodGet, "/v1/cases/c1/document", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
}

func TestGetOutcomeDocumentActiveCase(t *testing.T) {
	eng := &fakeEngine{htmlErr: fmt.Errorf("%w: game state %q", engine.ErrCaseStillActive, datatypes.GameActive)}
	router := gin.New()
	router.GET("/v1/cases/:caseId/document", GetOutcomeDocument(eng))

	if w := doJSON(router, http.MethodGet, "/v1/cases/c1/document", nil); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}
