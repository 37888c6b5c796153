// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

func TestCaseStreamReplaysHistoryThenPushes(t *testing.T) {
	s := newTestStore(t)
	c := seedCase(t, s)

	opening := &datatypes.Message{
		CaseID:  c.ID,
		Role:    datatypes.RolePlaintiff,
		Content: "Return my deposit.",
		Round:   1,
	}
	if err := s.AppendMessage(context.Background(), opening); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	router := gin.New()
	router.GET("/v1/cases/:caseId/stream", HandleCaseStream(s))
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/cases/" + c.ID + "/stream"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first StreamEvent
	if err := ws.ReadJSON(&first); err != nil {
		t.Fatalf("read history frame: %v", err)
	}
	if first.Event != "history" || len(first.History) != 1 {
		t.Fatalf("unexpected first frame: %+v", first)
	}

	reply := &datatypes.Message{
		CaseID:  c.ID,
		Role:    datatypes.RoleDefendant,
		Content: "The unit was damaged.",
		Round:   1,
	}
	if err := s.AppendMessage(context.Background(), reply); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	var second StreamEvent
	if err := ws.ReadJSON(&second); err != nil {
		t.Fatalf("read message frame: %v", err)
	}
	if second.Event != "message" || second.Message == nil || second.Message.Role != datatypes.RoleDefendant {
		t.Errorf("unexpected second frame: %+v", second)
	}
}

func TestCaseStreamUnknownCase(t *testing.T) {
	router := gin.New()
	router.GET("/v1/cases/:caseId/stream", HandleCaseStream(newTestStore(t)))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/cases/nope/stream", nil)
	router.ServeHTTP(w, req)
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
