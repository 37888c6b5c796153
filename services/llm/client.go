// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the chat-completion and embedding backends used by
// the negotiation engine, plus composable rate-limiting and retry wrappers.
package llm

import "context"

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// SystemPrompt overrides the backend's default system role content.
	// The engine sets this per persona.
	SystemPrompt *string `json:"system_prompt"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// EmbeddingProvider produces dense vectors for statute retrieval and
// citation verification. Implementations must return vectors of a fixed
// dimensionality matching the index.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Float32Ptr returns a pointer to the given float32. Convenience for
// building GenerationParams literals.
func Float32Ptr(v float32) *float32 { return &v }

// IntPtr returns a pointer to the given int.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to the given string.
func StringPtr(v string) *string { return &v }
