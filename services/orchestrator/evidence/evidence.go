// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package evidence downloads and sanitizes user-supplied evidence files.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/lexmachina/lexmachina/services/orchestrator/store"
)

const (
	// MaxDownloadBytes caps an evidence download.
	MaxDownloadBytes = 5 * 1024 * 1024 // 5MB

	// cacheTTL is how long a fetched URL is reused before re-downloading.
	cacheTTL = 24 * time.Hour
)

// allowedMimeTypes is the exact-match part of the allowlist; image/* is
// handled separately.
var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"text/plain":      true,
	"text/markdown":   true,
}

// UnsupportedTypeError is returned for MIME types outside the allowlist.
type UnsupportedTypeError struct {
	MimeType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported evidence type %q", e.MimeType)
}

// TooLargeError is returned when a download exceeds MaxDownloadBytes.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("evidence exceeds the %d byte limit", e.Limit)
}

// IsUnsupportedType checks if an error is an UnsupportedTypeError.
func IsUnsupportedType(err error) bool {
	var target *UnsupportedTypeError
	return errors.As(err, &target)
}

// IsTooLarge checks if an error is a TooLargeError.
func IsTooLarge(err error) bool {
	var target *TooLargeError
	return errors.As(err, &target)
}

// Result is the sanitized outcome of an evidence fetch.
type Result struct {
	MimeType string
	Text     string
}

// Fetcher downloads evidence URLs with caching through the case store.
type Fetcher struct {
	httpClient *http.Client
	cache      *store.CaseStore
	maxBytes   int64
}

// NewFetcher builds a fetcher. cache may be nil to disable caching.
func NewFetcher(cache *store.CaseStore) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		maxBytes:   MaxDownloadBytes,
	}
}

// Fetch downloads an evidence URL, enforcing the size cap and MIME
// allowlist. Results are cached by URL so repeat submissions of the same
// document do not re-download.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if f.cache != nil {
		if cached, err := f.cache.GetCachedDownload(ctx, url); err == nil {
			slog.Debug("Evidence cache hit", "url", url)
			return &Result{MimeType: cached.MimeType, Text: cached.Text}, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid evidence URL: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("evidence download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("evidence download returned status %d", resp.StatusCode)
	}

	mimeType := parseMimeType(resp.Header.Get("Content-Type"))
	if !isAllowedMimeType(mimeType) {
		return nil, &UnsupportedTypeError{MimeType: mimeType}
	}
	if resp.ContentLength > f.maxBytes {
		return nil, &TooLargeError{Limit: f.maxBytes}
	}

	// Read one byte past the cap to distinguish at-limit from over-limit
	// when the server omits Content-Length.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &TooLargeError{Limit: f.maxBytes}
	}

	result := &Result{
		MimeType: mimeType,
		Text:     extractText(mimeType, body),
	}

	if f.cache != nil {
		cached := &store.CachedDownload{
			MimeType:  result.MimeType,
			Text:      result.Text,
			FetchedAt: time.Now().UnixMilli(),
		}
		if err := f.cache.PutCachedDownload(ctx, url, cached, cacheTTL); err != nil {
			slog.Warn("Failed to cache evidence download", "url", url, "error", err)
		}
	}

	slog.Info("Evidence downloaded", "url", url, "mime_type", mimeType, "bytes", len(body))
	return result, nil
}

// extractText produces the transcript-facing text of an evidence body.
// Binary types keep a descriptive placeholder; the raw bytes never enter
// the prompt.
func extractText(mimeType string, body []byte) string {
	switch {
	case mimeType == "text/plain" || mimeType == "text/markdown":
		return string(body)
	case mimeType == "application/pdf":
		return fmt.Sprintf("[PDF document, %d bytes]", len(body))
	case strings.HasPrefix(mimeType, "image/"):
		return fmt.Sprintf("[Image (%s), %d bytes]", mimeType, len(body))
	default:
		return ""
	}
}

func parseMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

func isAllowedMimeType(mimeType string) bool {
	if allowedMimeTypes[mimeType] {
		return true
	}
	return strings.HasPrefix(mimeType, "image/")
}
