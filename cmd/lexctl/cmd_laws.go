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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

var (
	lawsCmd = &cobra.Command{
		Use:   "laws",
		Short: "Manage the statute index",
	}
	lawsIngestCmd = &cobra.Command{
		Use:   "ingest [file or directory path]",
		Short: "Ingest statute files into the law index",
		Long: `Walks the given paths for .txt and .md statute files and posts each
to the orchestrator for cleaning, chunking, and indexing. The statute title is
derived from the filename (contracts_act_1950.txt -> "Contracts Act 1950").`,
		Args: cobra.MinimumNArgs(1),
		Run:  runLawsIngest,
	}
	lawsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the statute sources in the law index",
		Run:   runLawsList,
	}

	docType string
)

func init() {
	rootCmd.AddCommand(lawsCmd)
	lawsCmd.AddCommand(lawsIngestCmd)
	lawsIngestCmd.Flags().StringVar(&docType, "doc-type", "statute", "Document type: statute or court_rule")
	lawsCmd.AddCommand(lawsListCmd)
}

// statuteWorker posts statute files to the orchestrator's law index.
func statuteWorker(id int, wg *sync.WaitGroup, jobs <-chan string, orchestratorURL string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Minute}

	for file := range jobs {
		fmt.Printf("[Worker %d] Ingesting: %s\n", id, file)
		content, err := os.ReadFile(file)
		if err != nil {
			log.Printf("[Worker %d] Could not read file %s: %v", id, file, err)
			continue
		}

		postBody, err := json.Marshal(map[string]string{
			"content":  string(content),
			"source":   sourceTitleFromPath(file),
			"doc_type": docType,
		})
		if err != nil {
			log.Printf("[Worker %d] could not create request for file %s: %v", id, file, err)
			continue
		}

		req, err := newAPIRequest(http.MethodPost, orchestratorURL, bytes.NewBuffer(postBody))
		if err != nil {
			log.Printf("[Worker %d] could not create request for file %s: %v", id, file, err)
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			log.Printf("[Worker %d] Failed to send %s to orchestrator: %v", id, file, err)
			continue
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 {
			log.Printf("[Worker %d] Orchestrator error for %s, status %d: %s\n", id,
				file, resp.StatusCode, string(bodyBytes))
		} else {
			var ingestResp map[string]interface{}
			if err := json.Unmarshal(bodyBytes, &ingestResp); err == nil {
				log.Printf("[Worker %d] Ingested %s (chunks: %.0f)\n", id,
					ingestResp["source"], ingestResp["chunks"])
			} else {
				log.Printf("[Worker %d] Ingested %s (response unclear)\n", id, file)
			}
		}
		resp.Body.Close()
	}
}

// sourceTitleFromPath turns "data/contracts_act_1950.txt" into
// "Contracts Act 1950".
func sourceTitleFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func runLawsIngest(cmd *cobra.Command, args []string) {
	baseURL := getOrchestratorBaseURL()
	orchestratorURL := baseURL + "/v1/laws"

	fmt.Println("Finding statute files...")
	var allFiles []string
	for _, path := range args {
		err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			ext := filepath.Ext(p)
			if ext != ".txt" && ext != ".md" {
				return nil
			}
			allFiles = append(allFiles, p)
			return nil
		})
		if err != nil {
			log.Printf("Error walking path %s: %v", path, err)
		}
	}
	if len(allFiles) == 0 {
		fmt.Println("No statute files found to process.")
		return
	}

	fmt.Printf("Found %d files. Starting parallel ingestion with 4 workers...\n", len(allFiles))
	numWorkers := 4
	var wg sync.WaitGroup
	jobs := make(chan string, len(allFiles))

	for w := 1; w <= numWorkers; w++ {
		wg.Add(1)
		go statuteWorker(w, &wg, jobs, orchestratorURL)
	}

	for _, file := range allFiles {
		jobs <- file
	}
	close(jobs)

	wg.Wait()
	fmt.Println("\nLaw index population complete.")
}

func runLawsList(cmd *cobra.Command, args []string) {
	baseURL := getOrchestratorBaseURL()

	req, err := newAPIRequest(http.MethodGet, baseURL+"/v1/laws", nil)
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
		Sources []string `json:"sources"`
	}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		log.Fatalf("Failed to parse response from orchestrator: %v", err)
	}
	if len(result.Sources) == 0 {
		fmt.Println("The law index is empty.")
		return
	}

	fmt.Println("Indexed statutes:")
	fmt.Println("------------------------------------------------------------------")
	for _, s := range result.Sources {
		fmt.Println(s)
	}
}
