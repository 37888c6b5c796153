// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tts proxies speech synthesis to an external TTS service with a
// fixed voice per courtroom role.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

// ErrDisabled is returned when no TTS service is configured.
var ErrDisabled = errors.New("speech synthesis is not configured")

// roleVoices maps courtroom roles to synthesis voices. Unknown roles use
// the mediator voice.
var roleVoices = map[datatypes.Role]string{
	datatypes.RolePlaintiff: "en-US-GuyNeural",
	datatypes.RoleDefendant: "en-US-JennyNeural",
	datatypes.RoleMediator:  "en-US-AriaNeural",
}

// Synthesizer proxies synthesis requests to the TTS service.
type Synthesizer struct {
	httpClient *http.Client
	baseURL    string
}

// NewSynthesizerFromEnv reads TTS_SERVICE_URL. An empty value produces a
// disabled synthesizer; callers get ErrDisabled instead of a crash.
func NewSynthesizerFromEnv() *Synthesizer {
	baseURL := strings.TrimSuffix(os.Getenv("TTS_SERVICE_URL"), "/")
	if baseURL == "" {
		slog.Warn("TTS_SERVICE_URL not set, speech synthesis disabled")
	}
	return &Synthesizer{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
	}
}

// Enabled reports whether a TTS service is configured.
func (s *Synthesizer) Enabled() bool {
	return s.baseURL != ""
}

// VoiceForRole returns the synthesis voice for a courtroom role.
func VoiceForRole(role datatypes.Role) string {
	if voice, ok := roleVoices[role]; ok {
		return voice
	}
	return roleVoices[datatypes.RoleMediator]
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Synthesize returns audio bytes for the text spoken in the role's voice.
func (s *Synthesizer) Synthesize(ctx context.Context, role datatypes.Role, text string) ([]byte, string, error) {
	if !s.Enabled() {
		return nil, "", ErrDisabled
	}

	payload := synthesizeRequest{Text: text, Voice: VoiceForRole(role)}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("TTS service call failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read TTS response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("TTS service returned status %d: %s", resp.StatusCode, string(audio))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return audio, contentType, nil
}
