// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/lexmachina/lexmachina/services/llm"
	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

var auditTracer = otel.Tracer("lexmachina.orchestrator.audit")

const (
	// MinCertainty is the vector-similarity floor for a citation to count
	// as grounded in the index.
	MinCertainty = 0.23

	// verifyTopK hits are inspected per citation.
	verifyTopK = 5
)

// Verdict is the auditor's judgment over one turn of persona output.
type Verdict struct {
	IsValid        bool       `json:"is_valid"`
	FlaggedLaw     string     `json:"flagged_law,omitempty"`
	CitationsFound []Citation `json:"citations_found"`
	Warning        string     `json:"auditor_warning,omitempty"`
}

// Auditor verifies extracted citations against the LawChunk index.
//
// The auditor fails closed: if the embedder or the index is unreachable, a
// citation counts as unverified. A persona must never get credit for a
// citation the system cannot check.
type Auditor struct {
	client       *weaviate.Client
	embedder     llm.EmbeddingProvider
	minCertainty float32
}

// NewAuditor builds an auditor over the given index and embedder.
func NewAuditor(client *weaviate.Client, embedder llm.EmbeddingProvider) *Auditor {
	return &Auditor{
		client:       client,
		embedder:     embedder,
		minCertainty: MinCertainty,
	}
}

// ValidateTurn extracts and verifies every citation in the text.
// Text without citations is valid by definition.
func (a *Auditor) ValidateTurn(ctx context.Context, text string) (*Verdict, error) {
	ctx, span := auditTracer.Start(ctx, "Auditor.ValidateTurn")
	defer span.End()

	citations := ExtractCitations(text)
	span.SetAttributes(attribute.Int("audit.citations_found", len(citations)))
	if len(citations) == 0 {
		return &Verdict{IsValid: true, CitationsFound: citations}, nil
	}

	var (
		mu      sync.Mutex
		flagged []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range citations {
		g.Go(func() error {
			ok := a.verifyCitation(gctx, c)
			if !ok {
				mu.Lock()
				flagged = append(flagged, c.Raw)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if len(flagged) == 0 {
		return &Verdict{IsValid: true, CitationsFound: citations}, nil
	}

	verdict := &Verdict{
		IsValid:        false,
		FlaggedLaw:     flagged[0],
		CitationsFound: citations,
		Warning: fmt.Sprintf(
			"The citation %q could not be verified against the indexed statutes. "+
				"Remove it or replace it with a provision from the provided law fragments.",
			flagged[0]),
	}
	span.SetAttributes(attribute.String("audit.flagged_law", verdict.FlaggedLaw))
	slog.Warn("Citation audit failed", "flagged", flagged)
	return verdict, nil
}

// VerifyCitation checks a single citation against the index.
func (a *Auditor) VerifyCitation(ctx context.Context, c Citation) bool {
	return a.verifyCitation(ctx, c)
}

func (a *Auditor) verifyCitation(ctx context.Context, c Citation) bool {
	if a.client == nil || a.embedder == nil {
		slog.Error("Auditor missing index or embedder, failing citation closed", "citation", c.Raw)
		return false
	}

	query := citationQuery(c)
	vector, err := a.embedder.Embed(ctx, query)
	if err != nil {
		slog.Error("Failed to embed citation query, failing closed", "citation", c.Raw, "error", err)
		return false
	}

	nearVector := a.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector).
		WithCertainty(a.minCertainty)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "section"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	resp, err := a.client.GraphQL().Get().
		WithClassName("LawChunk").
		WithNearVector(nearVector).
		WithLimit(verifyTopK).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		slog.Error("Law index search failed, failing citation closed", "citation", c.Raw, "error", err)
		return false
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.LawChunkQueryResponse](resp)
	if err != nil {
		slog.Error("Failed to parse law index response, failing citation closed", "citation", c.Raw, "error", err)
		return false
	}

	for _, hit := range parsed.Get.LawChunk {
		if hit.Additional.Certainty != nil && *hit.Additional.Certainty < a.minCertainty {
			continue
		}
		if citationMatchesChunk(c, hit) {
			return true
		}
	}
	return false
}

// citationQuery builds the semantic search query for a citation.
func citationQuery(c Citation) string {
	if c.Kind == KindCourtRule {
		return fmt.Sprintf("%s rule %s", c.Law, c.Section)
	}
	return fmt.Sprintf("%s section %s", c.Law, c.Section)
}

// citationMatchesChunk checks whether a retrieved chunk actually covers the
// cited provision, not merely the same topic.
func citationMatchesChunk(c Citation, hit datatypes.LawChunkResult) bool {
	content := strings.ToLower(hit.Content)
	source := strings.ToLower(hit.Source)
	law := strings.ToLower(c.Law)
	section := strings.ToLower(c.Section)

	switch c.Kind {
	case KindCourtRule:
		ref := fmt.Sprintf("%s rule %s", law, section)
		return strings.Contains(content, ref) || strings.Contains(source, law) && strings.EqualFold(hit.Section, c.Section)
	default:
		sourceMatches := strings.Contains(source, law)
		sectionMatches := strings.EqualFold(hit.Section, c.Section) ||
			strings.Contains(content, "section "+section)
		return sourceMatches && sectionMatches
	}
}
