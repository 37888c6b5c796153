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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
	"github.com/lexmachina/lexmachina/services/orchestrator/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// streamPingInterval keeps idle connections alive through proxies.
const streamPingInterval = 30 * time.Second

// StreamEvent is one frame pushed over the case stream.
type StreamEvent struct {
	Event   string              `json:"event"` // "history", "message", "state"
	Message *datatypes.Message  `json:"message,omitempty"`
	History []datatypes.Message `json:"history,omitempty"`
	Case    *datatypes.Case     `json:"case,omitempty"`
}

// HandleCaseStream upgrades to a WebSocket and pushes transcript messages
// for one case as they land. The full history is sent on connect, then each
// new message as its own frame.
func HandleCaseStream(cases *store.CaseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := c.Param("caseId")

		if _, err := cases.GetCase(c.Request.Context(), caseID); err != nil {
			if errors.Is(err, store.ErrCaseNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load case"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Failed to upgrade the websocket", "case_id", caseID, "error", err)
			return
		}
		defer ws.Close()
		slog.Info("Stream client connected", "case_id", caseID)

		// Subscribe before replaying history so nothing lands in the gap.
		sub := cases.Subscribe(caseID)
		defer cases.Unsubscribe(caseID, sub)

		history, err := cases.ListMessages(c.Request.Context(), caseID)
		if err != nil {
			slog.Error("Failed to load transcript for stream", "case_id", caseID, "error", err)
			return
		}
		if err := ws.WriteJSON(StreamEvent{Event: "history", History: history}); err != nil {
			return
		}
		seen := make(map[string]bool, len(history))
		for _, m := range history {
			seen[m.ID] = true
		}

		// Reader goroutine: we never expect client frames, but reading is the
		// only way to notice the peer closing.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()

		for {
			select {
			case m, ok := <-sub:
				if !ok {
					return
				}
				if seen[m.ID] {
					continue
				}
				if err := ws.WriteJSON(StreamEvent{Event: "message", Message: &m}); err != nil {
					slog.Info("Stream client disconnected", "case_id", caseID, "error", err.Error())
					return
				}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-done:
				slog.Info("Stream client disconnected", "case_id", caseID)
				return
			}
		}
	}
}
