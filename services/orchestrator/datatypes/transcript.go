// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// SaveTurnRecord mirrors a persisted transcript message into the cold store.
//
// Failures are logged, not returned: the warm store already holds the
// message, so a cold-write miss must never fail the turn. Call from a
// goroutine off the request path.
func SaveTurnRecord(ctx context.Context, client *weaviate.Client, m *Message) error {
	if client == nil {
		return fmt.Errorf("nil weaviate client")
	}

	props := NewNegotiationTurnProperties(m)
	_, err := client.Data().Creator().
		WithClassName("NegotiationTurn").
		WithProperties(props.ToMap()).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to save turn record to cold store",
			"case_id", m.CaseID, "role", m.Role, "error", err)
		return err
	}
	return nil
}

// LoadTurnRecords fetches the cold-store transcript for a case, ordered by
// timestamp. Used when the warm store no longer holds the case.
func LoadTurnRecords(ctx context.Context, client *weaviate.Client, caseID string, limit int) ([]NegotiationTurnResult, error) {
	if client == nil {
		return nil, fmt.Errorf("nil weaviate client")
	}
	if limit <= 0 {
		limit = 100
	}

	where := filters.Where().
		WithPath([]string{"case_id"}).
		WithOperator(filters.Equal).
		WithValueText(caseID)

	fields := []graphql.Field{
		{Name: "case_id"},
		{Name: "role"},
		{Name: "content"},
		{Name: "round"},
		{Name: "counter_offer_rm"},
		{Name: "timestamp"},
	}

	resp, err := client.GraphQL().Get().
		WithClassName("NegotiationTurn").
		WithWhere(where).
		WithSort(graphql.Sort{Path: []string{"timestamp"}, Order: graphql.Asc}).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("cold store transcript query failed: %w", err)
	}

	parsed, err := ParseGraphQLResponse[NegotiationTurnQueryResponse](resp)
	if err != nil {
		return nil, err
	}
	return parsed.Get.NegotiationTurn, nil
}
