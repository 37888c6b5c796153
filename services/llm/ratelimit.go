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

	"golang.org/x/time/rate"
)

// RateLimitedClient throttles calls to an underlying backend. Autonomous
// case runs fire many generations back to back; the limiter keeps them
// under the provider's requests-per-minute budget.
type RateLimitedClient struct {
	inner   LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner with a token-bucket limiter.
// rps is sustained requests per second; burst is the bucket size.
func NewRateLimitedClient(inner LLMClient, rps float64, burst int) *RateLimitedClient {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// NewRateLimitedClientFromEnv reads LLM_RATE_LIMIT_RPS (default 1.0) and
// LLM_RATE_LIMIT_BURST (default 2).
func NewRateLimitedClientFromEnv(inner LLMClient) *RateLimitedClient {
	rps := 1.0
	if raw := os.Getenv("LLM_RATE_LIMIT_RPS"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			slog.Warn("Invalid LLM_RATE_LIMIT_RPS, using default", "value", raw, "default", rps)
		} else {
			rps = parsed
		}
	}
	burst := 2
	if raw := os.Getenv("LLM_RATE_LIMIT_BURST"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			slog.Warn("Invalid LLM_RATE_LIMIT_BURST, using default", "value", raw, "default", burst)
		} else {
			burst = parsed
		}
	}
	return NewRateLimitedClient(inner, rps, burst)
}

// Generate implements the LLMClient interface. It blocks until the limiter
// grants a slot or the context is cancelled.
func (c *RateLimitedClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait aborted: %w", err)
	}
	return c.inner.Generate(ctx, prompt, params)
}
