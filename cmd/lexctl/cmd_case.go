// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

var (
	caseCmd = &cobra.Command{
		Use:   "case",
		Short: "Create, run, and inspect dispute cases",
	}
	caseStartCmd = &cobra.Command{
		Use:   "start [title]",
		Short: "Create a new dispute case",
		Args:  cobra.ExactArgs(1),
		Run:   runCaseStart,
	}
	caseRunCmd = &cobra.Command{
		Use:   "run [case-id]",
		Short: "Start an autonomous negotiation run for a case",
		Args:  cobra.ExactArgs(1),
		Run:   runCaseRun,
	}
	caseStatusCmd = &cobra.Command{
		Use:   "status [case-id]",
		Short: "Show a case's status, round, and settlement proposal",
		Args:  cobra.ExactArgs(1),
		Run:   runCaseStatus,
	}
	caseTranscriptCmd = &cobra.Command{
		Use:   "transcript [case-id]",
		Short: "Print the case transcript",
		Args:  cobra.ExactArgs(1),
		Run:   runCaseTranscript,
	}

	claimAmountRM int
	floorPriceRM  int
	caseType      string
	runMode       string
)

func init() {
	rootCmd.AddCommand(caseCmd)
	caseCmd.AddCommand(caseStartCmd)
	caseStartCmd.Flags().IntVar(&claimAmountRM, "claim", 0, "Claim amount in whole RM (required)")
	caseStartCmd.Flags().IntVar(&floorPriceRM, "floor", 0, "Plaintiff's minimum acceptable settlement in RM")
	caseStartCmd.Flags().StringVar(&caseType, "type", "tenancy_deposit", "Dispute category")
	_ = caseStartCmd.MarkFlagRequired("claim")

	caseCmd.AddCommand(caseRunCmd)
	caseRunCmd.Flags().StringVar(&runMode, "mode", "full", "Run profile: mvp (one round) or full")

	caseCmd.AddCommand(caseStatusCmd)
	caseCmd.AddCommand(caseTranscriptCmd)
}

func runCaseStart(cmd *cobra.Command, args []string) {
	baseURL := getOrchestratorBaseURL()
	postBody, _ := json.Marshal(datatypes.StartCaseRequest{
		Title:         args[0],
		CaseType:      caseType,
		ClaimAmountRM: claimAmountRM,
		FloorPriceRM:  floorPriceRM,
	})

	req, err := newAPIRequest(http.MethodPost, baseURL+"/v1/cases", bytes.NewBuffer(postBody))
	if err != nil {
		log.Fatalf("Failed to build the request: %v", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("Failed to reach the orchestrator: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("Orchestrator returned an error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var created datatypes.Case
	if err := json.Unmarshal(bodyBytes, &created); err != nil {
		log.Fatalf("Failed to parse response from orchestrator: %v", err)
	}
	fmt.Printf("Case created: %s\n", created.ID)
	fmt.Printf("  Title: %s\n  Type: %s\n  Claim: RM %d\n", created.Title, created.CaseType, created.ClaimAmountRM)
}

func runCaseRun(cmd *cobra.Command, args []string) {
	baseURL := getOrchestratorBaseURL()
	caseID := args[0]
	postBody, _ := json.Marshal(map[string]string{"mode": runMode})

	req, err := newAPIRequest(http.MethodPost, fmt.Sprintf("%s/v1/cases/%s/run", baseURL, caseID),
		bytes.NewBuffer(postBody))
	if err != nil {
		log.Fatalf("Failed to build the request: %v", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("Failed to reach the orchestrator: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Printf("Run started for case %s (mode: %s).\n", caseID, runMode)
		fmt.Printf("Follow it with: lexctl case status %s\n", caseID)
	case http.StatusConflict:
		log.Fatalf("Case %s is already running.", caseID)
	default:
		log.Fatalf("Orchestrator returned an error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
}

func runCaseStatus(cmd *cobra.Command, args []string) {
	baseURL := getOrchestratorBaseURL()
	caseID := args[0]

	req, err := newAPIRequest(http.MethodGet, fmt.Sprintf("%s/v1/cases/%s", baseURL, caseID), nil)
	if err != nil {
		log.Fatalf("Failed to build the request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Failed to reach the orchestrator: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Orchestrator returned an error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result datatypes.CaseResultResponse
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		log.Fatalf("Failed to parse response from orchestrator: %v", err)
	}

	fmt.Printf("Case: %s\n", result.CaseID)
	fmt.Printf("  Status: %s\n  Game state: %s\n  Round: %d\n", result.Status, result.GameState, result.Round)
	if result.Settlement != nil {
		fmt.Println("\nMediator proposal:")
		fmt.Printf("  Recommended settlement: RM %d (confidence %.2f)\n",
			result.Settlement.RecommendedSettlementRM, result.Settlement.Confidence)
		fmt.Printf("  %s\n", result.Settlement.Summary)
		for _, c := range result.Settlement.Citations {
			fmt.Printf("  Cites: %s, section %s\n", c.Law, c.Section)
		}
	}
}

func runCaseTranscript(cmd *cobra.Command, args []string) {
	baseURL := getOrchestratorBaseURL()
	caseID := args[0]

	req, err := newAPIRequest(http.MethodGet, fmt.Sprintf("%s/v1/cases/%s/messages", baseURL, caseID), nil)
	if err != nil {
		log.Fatalf("Failed to build the request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Failed to reach the orchestrator: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Orchestrator returned an error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Messages []datatypes.Message `json:"messages"`
	}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		log.Fatalf("Failed to parse response from orchestrator: %v", err)
	}
	if len(result.Messages) == 0 {
		fmt.Println("No transcript yet.")
		return
	}

	for _, m := range result.Messages {
		fmt.Printf("[Round %d] %s:\n%s\n", m.Round, strings.ToUpper(string(m.Role)), m.Content)
		if m.CounterOfferRM != nil {
			fmt.Printf("  >> Offer: RM %d\n", *m.CounterOfferRM)
		}
		if m.AuditorWarning != "" {
			fmt.Printf("  !! %s\n", m.AuditorWarning)
		}
		fmt.Println()
	}
}
