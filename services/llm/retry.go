// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryingClient retries transient backend failures with exponential
// backoff. Context cancellation and deadline expiry are never retried.
type RetryingClient struct {
	inner    LLMClient
	attempts uint
	delay    time.Duration
}

// NewRetryingClient wraps inner with up to attempts tries, starting at
// delay and doubling each time.
func NewRetryingClient(inner LLMClient, attempts uint, delay time.Duration) *RetryingClient {
	if attempts < 1 {
		attempts = 1
	}
	if delay <= 0 {
		delay = time.Second
	}
	return &RetryingClient{inner: inner, attempts: attempts, delay: delay}
}

// Generate implements the LLMClient interface.
func (c *RetryingClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	var result string
	err := retry.Do(
		func() error {
			var genErr error
			result, genErr = c.inner.Generate(ctx, prompt, params)
			return genErr
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			return true
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying LLM generation", "attempt", n+1, "error", err)
		}),
	)
	return result, err
}
