// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/lexmachina/lexmachina/services/llm"
	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

var (
	chunkSize    = 1000
	chunkOverlap = int(float64(chunkSize) * 0.10) // overlap is 10% of the chunk size

	statuteSeparators = []string{"\n\n", "\n", " ", ""}

	// embedBatchSize bounds a single embeddings request.
	embedBatchSize = 64
)

// Statute text noise: page numbers on their own line, running headers, and
// the gazette header block repeated on every page.
var (
	pageNumberRe    = regexp.MustCompile(`(?m)^\s*\d+\s*$`)
	runningHeaderRe = regexp.MustCompile(`(?mi)^\s*(laws of malaysia|act\s+\d+\s*$|undang-undang malaysia).*$`)
	multiNewlineRe  = regexp.MustCompile(`\n{3,}`)

	// sectionHeadingRe matches "75." or "14A." at the start of a line.
	sectionHeadingRe = regexp.MustCompile(`(?m)^(\d+[A-Z]?)\.\s`)
)

// SectionChunk is one ingestible fragment with its section identifier.
// Section is empty when the text had no recognizable section structure.
type SectionChunk struct {
	Section string
	Content string
}

// CleanStatuteText strips page furniture from raw statute text.
func CleanStatuteText(raw string) string {
	text := strings.ReplaceAll(raw, "\f", "\n")
	text = pageNumberRe.ReplaceAllString(text, "")
	text = runningHeaderRe.ReplaceAllString(text, "")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// SplitSections chunks cleaned statute text by section headings. Text with
// fewer than two recognizable sections falls back to a recursive character
// splitter, losing section attribution but keeping the content searchable.
func SplitSections(text string) ([]SectionChunk, error) {
	locs := sectionHeadingRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) >= 2 {
		chunks := make([]SectionChunk, 0, len(locs))
		for i, loc := range locs {
			start := loc[0]
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			section := text[loc[2]:loc[3]]
			content := strings.TrimSpace(text[start:end])
			if content == "" {
				continue
			}
			// Oversized sections are split again so no chunk blows the
			// embedding context.
			if len(content) > 2*chunkSize {
				parts, err := fallbackSplit(content)
				if err != nil {
					return nil, err
				}
				for _, p := range parts {
					chunks = append(chunks, SectionChunk{Section: section, Content: p})
				}
				continue
			}
			chunks = append(chunks, SectionChunk{Section: section, Content: content})
		}
		return chunks, nil
	}

	parts, err := fallbackSplit(text)
	if err != nil {
		return nil, err
	}
	chunks := make([]SectionChunk, 0, len(parts))
	for _, p := range parts {
		chunks = append(chunks, SectionChunk{Content: p})
	}
	return chunks, nil
}

func fallbackSplit(text string) ([]string, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(statuteSeparators),
	)
	return splitter.SplitText(text)
}

// Ingest cleans, chunks, embeds, and upserts a statute into the law index.
// Returns the number of chunks successfully written.
func Ingest(ctx context.Context, client *weaviate.Client, embedder llm.EmbeddingProvider,
	req datatypes.IngestStatuteRequest) (int, error) {

	ctx, span := ragTracer.Start(ctx, "rag.Ingest")
	defer span.End()

	slog.Info("Ingestion request received", "source", req.Source, "doc_type", req.DocType)

	cleaned := CleanStatuteText(req.Content)
	if cleaned == "" {
		slog.Warn("Statute text empty after cleaning", "source", req.Source)
		return 0, nil
	}

	chunks, err := SplitSections(cleaned)
	if err != nil {
		slog.Error("Failed to split statute text", "source", req.Source, "error", err)
		return 0, fmt.Errorf("failed to split content: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "source", req.Source)
		return 0, nil
	}
	slog.Info("Split statute into chunks", "source", req.Source, "chunk_count", len(chunks))

	vectors, err := embedChunks(ctx, embedder, chunks)
	if err != nil {
		slog.Error("Failed to embed statute chunks", "source", req.Source, "error", err)
		return 0, err
	}

	objects := make([]*models.Object, len(chunks))
	now := time.Now().UnixMilli()
	for i, chunk := range chunks {
		props := datatypes.LawChunkProperties{
			Content:    chunk.Content,
			Source:     req.Source,
			Section:    chunk.Section,
			DocType:    req.DocType,
			IngestedAt: now,
		}
		// Deterministic ID: re-ingesting the same statute overwrites
		// instead of duplicating.
		hash := sha256.Sum256([]byte(req.Source + "|" + chunk.Section + "|" + chunk.Content))
		chunkUUID, _ := uuid.FromBytes(hash[:16])

		objects[i] = &models.Object{
			Class:      "LawChunk",
			ID:         strfmt.UUID(chunkUUID.String()),
			Vector:     vectors[i],
			Properties: props.ToMap(),
		}
	}

	var resp []models.ObjectsGetResponse
	err = retry.Do(
		func() error {
			var batchErr error
			resp, batchErr = client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
			return batchErr
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying law index batch import", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		slog.Error("Failed to perform batch import to law index", "error", err)
		return 0, fmt.Errorf("failed to save chunks to law index: %w", err)
	}

	chunksCreated := 0
	hasErrors := false
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			chunksCreated++
			continue
		}
		hasErrors = true
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in law index batch item", "source", req.Source, "error", errItem.Message)
			}
		} else {
			status := "UNKNOWN"
			if item.Result != nil && item.Result.Status != nil {
				status = *item.Result.Status
			}
			slog.Warn("Failed law index batch item, no error provided", "source", req.Source, "status", status)
		}
	}

	if hasErrors {
		slog.Warn("Errors encountered during law index batch import",
			"source", req.Source, "successful_chunks", chunksCreated)
	}

	slog.Info("Successfully ingested statute", "source", req.Source, "chunks_processed", chunksCreated)
	return chunksCreated, nil
}

// embedChunks embeds in bounded batches with backoff, so a rate-limited
// embeddings endpoint slows ingestion instead of failing it.
func embedChunks(ctx context.Context, embedder llm.EmbeddingProvider, chunks []SectionChunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		var batch [][]float32
		err := retry.Do(
			func() error {
				var embedErr error
				batch, embedErr = embedder.EmbedBatch(ctx, texts)
				return embedErr
			},
			retry.Context(ctx),
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				slog.Warn("Retrying chunk embedding batch", "attempt", n+1, "error", err)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("embedding batch failed: %w", err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding batch count mismatch: want %d, got %d", end-start, len(batch))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
