// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rag retrieves statute context for persona prompts and ingests
// raw statute text into the law index.
package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lexmachina/lexmachina/services/llm"
	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

var ragTracer = otel.Tracer("lexmachina.orchestrator.rag")

// retrieveTopK fragments feed each persona prompt.
const retrieveTopK = 3

// LawRetriever performs nearVector search over the LawChunk class.
type LawRetriever struct {
	client   *weaviate.Client
	embedder llm.EmbeddingProvider
	topK     int
}

// NewLawRetriever builds a retriever over the given index and embedder.
func NewLawRetriever(client *weaviate.Client, embedder llm.EmbeddingProvider) *LawRetriever {
	return &LawRetriever{client: client, embedder: embedder, topK: retrieveTopK}
}

// RetrieveLaw returns the top fragments for a query. An empty result is not
// an error: personas argue without law context rather than stalling the turn.
func (r *LawRetriever) RetrieveLaw(ctx context.Context, query string) ([]datatypes.LawFragment, error) {
	ctx, span := ragTracer.Start(ctx, "LawRetriever.RetrieveLaw")
	defer span.End()
	span.SetAttributes(attribute.Int("rag.top_k", r.topK))

	if r.client == nil || r.embedder == nil {
		return nil, fmt.Errorf("law retriever not configured")
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to embed retrieval query: %w", err)
	}

	nearVector := r.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "section"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	resp, err := r.client.GraphQL().Get().
		WithClassName("LawChunk").
		WithNearVector(nearVector).
		WithLimit(r.topK).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("law index search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.LawChunkQueryResponse](resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	fragments := make([]datatypes.LawFragment, 0, len(parsed.Get.LawChunk))
	for _, hit := range parsed.Get.LawChunk {
		f := datatypes.LawFragment{
			Source:  hit.Source,
			Section: hit.Section,
			Content: hit.Content,
		}
		if hit.Additional.Certainty != nil {
			f.Certainty = *hit.Additional.Certainty
		}
		fragments = append(fragments, f)
	}

	span.SetAttributes(attribute.Int("rag.fragments", len(fragments)))
	slog.Debug("Retrieved law fragments", "query_len", len(query), "count", len(fragments))
	return fragments, nil
}

// ListSources aggregates the index by statute title.
func (r *LawRetriever) ListSources(ctx context.Context) ([]string, error) {
	agg, err := r.client.GraphQL().Aggregate().
		WithClassName("LawChunk").
		WithGroupBy("source").
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate law sources: %w", err)
	}

	var sources []string
	if agg.Data["Aggregate"] != nil {
		aggMap, ok := agg.Data["Aggregate"].(map[string]interface{})
		if ok && aggMap["LawChunk"] != nil {
			groups, ok := aggMap["LawChunk"].([]interface{})
			if ok {
				for _, groupItem := range groups {
					groupMap, ok := groupItem.(map[string]interface{})
					if ok && groupMap["groupedBy"] != nil {
						groupedByMap, ok := groupMap["groupedBy"].(map[string]interface{})
						if ok && groupedByMap["value"] != nil {
							if name, ok := groupedByMap["value"].(string); ok {
								sources = append(sources, name)
							}
						}
					}
				}
			}
		}
	}
	return sources, nil
}
