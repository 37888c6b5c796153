// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/sashabaranov/go-openai"
)

// DefaultEmbeddingDim is the index dimensionality. Larger model outputs are
// truncated to this size so the index never mixes dimensionalities.
const DefaultEmbeddingDim = 768

// OpenAIEmbedder implements EmbeddingProvider against the OpenAI
// embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

func NewOpenAIEmbedder() (*OpenAIEmbedder, error) {
	apiKey, err := resolveOpenAIKey()
	if err != nil {
		return nil, err
	}

	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = string(openai.SmallEmbedding3)
		slog.Warn("EMBEDDING_MODEL not set, defaulting to text-embedding-3-small")
	}

	dim := DefaultEmbeddingDim
	if raw := os.Getenv("EMBEDDING_DIM"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			slog.Warn("Invalid EMBEDDING_DIM, using default", "value", raw, "default", DefaultEmbeddingDim)
		} else {
			dim = parsed
		}
	}

	slog.Info("Initializing OpenAI embedder", "model", model, "dim", dim)
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  openai.EmbeddingModel(model),
		dim:    dim,
	}, nil
}

// Embed returns the vector for a single text, truncated to the index
// dimensionality.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		slog.Error("OpenAI embeddings call failed", "error", err, "batch_size", len(texts))
		return nil, fmt.Errorf("embeddings call failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings response count mismatch: want %d, got %d",
			len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = truncateVector(item.Embedding, e.dim)
	}
	return vectors, nil
}

// truncateVector trims a vector to dim entries. Shorter vectors pass through
// unchanged; the index rejects them on write, which is the correct failure.
func truncateVector(v []float32, dim int) []float32 {
	if len(v) <= dim {
		return v
	}
	return v[:dim]
}
