// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/lexmachina/lexmachina/services/llm"
	"github.com/lexmachina/lexmachina/services/orchestrator/audit"
	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
	"github.com/lexmachina/lexmachina/services/orchestrator/engine"
	"github.com/lexmachina/lexmachina/services/orchestrator/evidence"
	"github.com/lexmachina/lexmachina/services/orchestrator/observability"
	"github.com/lexmachina/lexmachina/services/orchestrator/rag"
	"github.com/lexmachina/lexmachina/services/orchestrator/routes"
	"github.com/lexmachina/lexmachina/services/orchestrator/store"
	"github.com/lexmachina/lexmachina/services/orchestrator/tts"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "lexmachina-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("orchestrator-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient builds the law index client from WEAVIATE_SERVICE_URL.
// Returns nil when the URL is unset or invalid; the service then runs without
// retrieval and the auditor fails closed.
func newWeaviateClient() *weaviate.Client {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Warn("WEAVIATE_SERVICE_URL not set, running without a law index")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid, running without a law index",
			"url", weaviateURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	datatypes.EnsureWeaviateSchema(client)
	return client
}

// newLLMClient picks the generation backend and wraps it with retry and
// rate-limit layers.
func newLLMClient() (llm.LLMClient, string) {
	var (
		client llm.LLMClient
		err    error
	)
	backend := os.Getenv("LLM_BACKEND_TYPE")
	switch backend {
	case "openai":
		client, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		client, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to openai")
		backend = "openai"
		client, err = llm.NewOpenAIClient()
	}
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	retrying := llm.NewRetryingClient(client, 3, 2*time.Second)
	return llm.NewRateLimitedClientFromEnv(retrying), backend
}

func main() {
	port := os.Getenv("ORCHESTRATOR_PORT")
	if port == "" {
		port = "12210"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	weaviateClient := newWeaviateClient()

	embedder, err := llm.NewOpenAIEmbedder()
	if err != nil {
		log.Fatalf("Failed to initialize the embedding provider: %v", err)
	}

	storePath := os.Getenv("CASE_STORE_PATH")
	if storePath == "" {
		storePath = "/data/cases"
	}
	storeCfg := store.DefaultConfig()
	storeCfg.Path = storePath
	cases, err := store.Open(storeCfg)
	if err != nil {
		log.Fatalf("Failed to open the case store at %s: %v", storePath, err)
	}
	defer cases.Close()

	llmClient, backend := newLLMClient()

	var retriever *rag.LawRetriever
	if weaviateClient != nil {
		retriever = rag.NewLawRetriever(weaviateClient, embedder)
	}

	engCfg := engine.Config{
		Store:     cases,
		LLM:       llmClient,
		Backend:   backend,
		Auditor:   audit.NewAuditor(weaviateClient, embedder),
		ColdStore: weaviateClient,
		Metrics:   metrics,
	}
	if retriever != nil {
		engCfg.Retriever = retriever
	}
	eng, err := engine.New(engCfg)
	if err != nil {
		log.Fatalf("Failed to build the negotiation engine: %v", err)
	}

	// Watch the law corpus directory so dropped statute files are ingested
	// without an API call.
	if corpusDir := os.Getenv("LAW_CORPUS_DIR"); corpusDir != "" && weaviateClient != nil {
		watcher := rag.NewCorpusWatcher(corpusDir, weaviateClient, embedder)
		go func() {
			if err := watcher.Run(context.Background()); err != nil {
				slog.Error("Law corpus watcher stopped", "error", err)
			}
		}()
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("orchestrator-service"))

	routes.SetupRoutes(router, routes.Deps{
		Cases:     cases,
		Engine:    eng,
		Fetcher:   evidence.NewFetcher(cases),
		Retriever: retriever,
		Weaviate:  weaviateClient,
		Embedder:  embedder,
		Synth:     tts.NewSynthesizerFromEnv(),
		APIKey:    os.Getenv("ORCHESTRATOR_API_KEY"),
	})

	log.Println("Starting the orchestrator server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
