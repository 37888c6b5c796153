// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/lexmachina/lexmachina/services/llm"
	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

// settleDelay lets the writer finish before the watcher reads the file.
// Editors and scp both produce a burst of write events per file.
const settleDelay = 2 * time.Second

// CorpusWatcher ingests statute files dropped into a directory.
type CorpusWatcher struct {
	dir      string
	client   *weaviate.Client
	embedder llm.EmbeddingProvider
}

// NewCorpusWatcher builds a watcher over the given directory.
func NewCorpusWatcher(dir string, client *weaviate.Client, embedder llm.EmbeddingProvider) *CorpusWatcher {
	return &CorpusWatcher{dir: dir, client: client, embedder: embedder}
}

// Run watches the corpus directory until the context is cancelled. Existing
// files are ingested once at startup, then creates and writes trigger
// re-ingestion. Only .txt and .md files are considered.
func (w *CorpusWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	slog.Info("Watching law corpus directory", "dir", w.dir)

	w.ingestExisting(ctx)

	// Coalesce event bursts per path.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settleDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isCorpusFile(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Corpus watcher error", "error", err)
		case <-ticker.C:
			now := time.Now()
			for path, seen := range pending {
				if now.Sub(seen) < settleDelay {
					continue
				}
				delete(pending, path)
				w.ingestFile(ctx, path)
			}
		}
	}
}

func (w *CorpusWatcher) ingestExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		slog.Error("Failed to read corpus directory", "dir", w.dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isCorpusFile(entry.Name()) {
			continue
		}
		w.ingestFile(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

func (w *CorpusWatcher) ingestFile(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read corpus file", "path", path, "error", err)
		return
	}

	req := datatypes.IngestStatuteRequest{
		Content: string(content),
		Source:  sourceFromFilename(path),
	}
	req.EnsureDefaults()

	count, err := Ingest(ctx, w.client, w.embedder, req)
	if err != nil {
		slog.Error("Failed to ingest corpus file", "path", path, "error", err)
		return
	}
	slog.Info("Ingested corpus file", "path", path, "chunks", count)
}

func isCorpusFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// sourceFromFilename turns "contracts_act_1950.txt" into "Contracts Act 1950".
func sourceFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")

	words := strings.Fields(base)
	for i, word := range words {
		if len(word) > 0 && word[0] >= 'a' && word[0] <= 'z' {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}
