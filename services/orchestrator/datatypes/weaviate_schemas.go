// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"log"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// GetLawChunkSchema returns the schema for the LawChunk class.
//
// # Description
//
// LawChunk is one section-level fragment of a statute or court rule. Vectors
// are supplied externally (Vectorizer "none") by the embedding provider, so
// the index stays decoupled from any particular embedding model.
//
// # Properties
//
//   - content: The fragment text.
//   - source: Statute or rule title (e.g., 'Contracts Act 1950').
//   - section: Section or rule identifier within the source (e.g., '75').
//   - doc_type: 'statute' or 'court_rule'.
//   - ingested_at: Unix milliseconds when the chunk was ingested.
func GetLawChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "LawChunk",
		Description: "A section-level fragment of a statute or court rule.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The fragment text.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Statute or rule title this fragment belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "section",
				DataType:        []string{"text"},
				Description:     "Section or rule identifier within the source.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "doc_type",
				DataType:        []string{"text"},
				Description:     "Document category: 'statute' or 'court_rule'.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the chunk was ingested.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// GetNegotiationTurnSchema returns the schema for the NegotiationTurn class.
//
// NegotiationTurn is the cold copy of the case transcript: every persisted
// message is mirrored here so completed cases remain searchable after the
// warm store compacts them.
func GetNegotiationTurnSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "NegotiationTurn",
		Description: "One transcript entry of a negotiation case.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "case_id",
				DataType:        []string{"text"},
				Description:     "The unique ID of the parent case.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "role",
				DataType:        []string{"text"},
				Description:     "Who produced the message: plaintiff, defendant, mediator, system.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The message text.",
				Tokenization: "word",
			},
			{
				Name:            "round",
				DataType:        []string{"int"},
				Description:     "Negotiation round the message belongs to (1-indexed).",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "counter_offer_rm",
				DataType:        []string{"int"},
				Description:     "Monetary offer carried by the message, whole RM. -1 = no offer.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "timestamp",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the message was created.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureWeaviateSchema creates any missing classes at startup.
func EnsureWeaviateSchema(client *weaviate.Client) {
	schemaGetters := []func() *models.Class{
		GetLawChunkSchema,
		GetNegotiationTurnSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		// The client returns an error when the class does not exist yet.
		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(context.Background())
		if err != nil {
			slog.Info("Schema not found, creating it...", "class", class.Class)
			err := client.Schema().ClassCreator().WithClass(class).Do(context.Background())
			if err != nil {
				log.Fatalf("Failed to create schema for class %s: %v", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
}
