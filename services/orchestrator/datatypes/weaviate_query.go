// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("LawChunk").Do(ctx)
//	if err != nil { ... }
//
//	parsed, err := ParseGraphQLResponse[LawChunkQueryResponse](resp)
//	if err != nil { ... }
//
//	for _, chunk := range parsed.Get.LawChunk {
//	    fmt.Println(chunk.Source, chunk.Section)
//	}
//
// # Limitations
//
//   - Type mismatches result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Common Weaviate Response Types
// =============================================================================

// LawChunkQueryResponse represents the response from querying the LawChunk class.
type LawChunkQueryResponse struct {
	Get struct {
		LawChunk []LawChunkResult `json:"LawChunk"`
	} `json:"Get"`
}

// LawChunkResult represents a single law fragment from a query.
type LawChunkResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Section    string `json:"section"`
	DocType    string `json:"doc_type"`
	IngestedAt int64  `json:"ingested_at"`
	Additional struct {
		ID        string   `json:"id"`
		Distance  *float32 `json:"distance"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// NegotiationTurnQueryResponse represents the response from querying the
// NegotiationTurn class.
type NegotiationTurnQueryResponse struct {
	Get struct {
		NegotiationTurn []NegotiationTurnResult `json:"NegotiationTurn"`
	} `json:"Get"`
}

// NegotiationTurnResult represents a single transcript entry from a query.
type NegotiationTurnResult struct {
	CaseID         string `json:"case_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Round          int    `json:"round"`
	CounterOfferRM int    `json:"counter_offer_rm"`
	Timestamp      int64  `json:"timestamp"`
}

// =============================================================================
// Property Structs
// =============================================================================

// LawChunkProperties represents the properties for creating a LawChunk object.
type LawChunkProperties struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Section    string `json:"section"`
	DocType    string `json:"doc_type"`
	IngestedAt int64  `json:"ingested_at"`
}

// ToMap converts LawChunkProperties to the map format required by Weaviate's
// WithProperties() method.
func (p *LawChunkProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"content":     p.Content,
		"source":      p.Source,
		"section":     p.Section,
		"doc_type":    p.DocType,
		"ingested_at": p.IngestedAt,
	}
}

// NegotiationTurnProperties represents the properties for creating a
// NegotiationTurn object.
type NegotiationTurnProperties struct {
	CaseID         string `json:"case_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Round          int    `json:"round"`
	CounterOfferRM int    `json:"counter_offer_rm"`
	Timestamp      int64  `json:"timestamp"`
}

// ToMap converts NegotiationTurnProperties to map[string]interface{} for Weaviate.
func (p *NegotiationTurnProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"case_id":          p.CaseID,
		"role":             p.Role,
		"content":          p.Content,
		"round":            p.Round,
		"counter_offer_rm": p.CounterOfferRM,
		"timestamp":        p.Timestamp,
	}
}

// NewNegotiationTurnProperties builds the cold-store properties for a message.
// A missing offer is stored as -1 so the column stays filterable.
func NewNegotiationTurnProperties(m *Message) *NegotiationTurnProperties {
	offer := -1
	if m.CounterOfferRM != nil {
		offer = *m.CounterOfferRM
	}
	return &NegotiationTurnProperties{
		CaseID:         m.CaseID,
		Role:           string(m.Role),
		Content:        m.Content,
		Round:          m.Round,
		CounterOfferRM: offer,
		Timestamp:      m.CreatedAt,
	}
}
