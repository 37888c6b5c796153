// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestSourceTitleFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"contracts_act_1950.txt", "Contracts Act 1950"},
		{"data/laws/specific_relief_act_1950.md", "Specific Relief Act 1950"},
		{"rules-of-court-2012.txt", "Rules Of Court 2012"},
		{"distress_act_1951.TXT", "Distress Act 1951"},
	}
	for _, tt := range tests {
		if got := sourceTitleFromPath(tt.path); got != tt.want {
			t.Errorf("sourceTitleFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestStatuteWorkerPostsFiles(t *testing.T) {
	t.Setenv("LEXCTL_API_KEY", "test-key")

	var mu sync.Mutex
	received := map[string]string{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization header = %q, want bearer token", got)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		received[req["source"]] = req["content"]
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"source": req["source"],
			"chunks": 3,
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	statutePath := filepath.Join(dir, "contracts_act_1950.txt")
	if err := os.WriteFile(statutePath, []byte("74. Compensation for loss..."), 0644); err != nil {
		t.Fatalf("write statute file: %v", err)
	}

	var wg sync.WaitGroup
	jobs := make(chan string, 1)
	jobs <- statutePath
	close(jobs)

	wg.Add(1)
	statuteWorker(1, &wg, jobs, srv.URL)
	wg.Wait()

	if received["Contracts Act 1950"] != "74. Compensation for loss..." {
		t.Errorf("orchestrator did not receive statute content: %+v", received)
	}
}

func TestNewAPIRequestOmitsAuthWhenUnset(t *testing.T) {
	t.Setenv("LEXCTL_API_KEY", "")

	req, err := newAPIRequest(http.MethodGet, "http://localhost:12210/v1/laws", nil)
	if err != nil {
		t.Fatalf("newAPIRequest() error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization header = %q, want none", got)
	}
}
