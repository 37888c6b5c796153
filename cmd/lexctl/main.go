// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lexctl",
	Short: "A CLI to manage the Lex Machina negotiation backend",
	Long: `lexctl talks to the orchestrator service: create and run dispute
cases, follow transcripts, and populate the statute index.`,
}

// getOrchestratorBaseURL resolves the orchestrator address. Defaults to the
// local dev port.
func getOrchestratorBaseURL() string {
	baseURL := strings.TrimSpace(os.Getenv("LEXCTL_ORCHESTRATOR_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:12210"
	}
	return strings.TrimSuffix(baseURL, "/")
}

// newAPIRequest builds an orchestrator request, attaching the bearer token
// from LEXCTL_API_KEY when one is set.
func newAPIRequest(method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(os.Getenv("LEXCTL_API_KEY")); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
