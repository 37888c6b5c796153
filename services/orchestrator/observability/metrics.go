// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring negotiation
// operations. Metrics include:
//   - Turn counters (by role and outcome)
//   - LLM latency histograms (by backend)
//   - Audit verdict counters
//   - Retrieval counters and active case gauges
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "lexmachina"

// Subsystem for negotiation metrics
const negotiationSubsystem = "negotiation"

// NegotiationMetrics holds all Prometheus metrics for the negotiation engine.
//
// Initialize once at startup via InitMetrics().
type NegotiationMetrics struct {
	// TurnsTotal counts engine turns by role and outcome.
	// Labels: role (plaintiff, defendant, mediator), status (success, error)
	TurnsTotal *prometheus.CounterVec

	// LLMLatencySeconds measures generation latency per backend.
	// Labels: backend (openai, ollama)
	LLMLatencySeconds *prometheus.HistogramVec

	// AuditVerdictsTotal counts citation audit outcomes.
	// Labels: verdict (pass, fail, fail_after_retry)
	AuditVerdictsTotal *prometheus.CounterVec

	// RetrievalsTotal counts law index retrievals.
	// Labels: status (success, error)
	RetrievalsTotal *prometheus.CounterVec

	// ActiveCases tracks cases currently in a background run.
	ActiveCases prometheus.Gauge

	// CasesCompletedTotal counts finished runs by terminal game state.
	// Labels: game_state (settled, deadlock, pending_decision)
	CasesCompletedTotal *prometheus.CounterVec

	// IngestChunksTotal counts law chunks written to the index.
	IngestChunksTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of NegotiationMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *NegotiationMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; a second call panics on duplicate registration.
func InitMetrics() *NegotiationMetrics {
	DefaultMetrics = &NegotiationMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: negotiationSubsystem,
				Name:      "turns_total",
				Help:      "Total engine turns by role and outcome",
			},
			[]string{"role", "status"},
		),

		LLMLatencySeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: negotiationSubsystem,
				Name:      "llm_latency_seconds",
				Help:      "LLM generation latency in seconds by backend",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"backend"},
		),

		AuditVerdictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: negotiationSubsystem,
				Name:      "audit_verdicts_total",
				Help:      "Citation audit outcomes",
			},
			[]string{"verdict"},
		),

		RetrievalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: negotiationSubsystem,
				Name:      "retrievals_total",
				Help:      "Law index retrievals by status",
			},
			[]string{"status"},
		),

		ActiveCases: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: negotiationSubsystem,
				Name:      "active_cases",
				Help:      "Cases currently in a background negotiation run",
			},
		),

		CasesCompletedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: negotiationSubsystem,
				Name:      "cases_completed_total",
				Help:      "Finished case runs by terminal game state",
			},
			[]string{"game_state"},
		),

		IngestChunksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: negotiationSubsystem,
				Name:      "ingest_chunks_total",
				Help:      "Law chunks written to the index",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records a completed engine turn.
func (m *NegotiationMetrics) RecordTurn(role string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.TurnsTotal.WithLabelValues(role, status).Inc()
}

// RecordAuditVerdict records a citation audit outcome.
// verdict is one of "pass", "fail", "fail_after_retry".
func (m *NegotiationMetrics) RecordAuditVerdict(verdict string) {
	m.AuditVerdictsTotal.WithLabelValues(verdict).Inc()
}

// RecordRetrieval records a law index retrieval.
func (m *NegotiationMetrics) RecordRetrieval(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RetrievalsTotal.WithLabelValues(status).Inc()
}

// RecordLLMLatency records one generation's latency.
func (m *NegotiationMetrics) RecordLLMLatency(backend string, seconds float64) {
	m.LLMLatencySeconds.WithLabelValues(backend).Observe(seconds)
}

// CaseStarted increments the active case gauge.
func (m *NegotiationMetrics) CaseStarted() {
	m.ActiveCases.Inc()
}

// CaseEnded decrements the active case gauge and records the terminal state.
func (m *NegotiationMetrics) CaseEnded(gameState string) {
	m.ActiveCases.Dec()
	m.CasesCompletedTotal.WithLabelValues(gameState).Inc()
}

// RecordIngestedChunks adds to the ingest counter.
func (m *NegotiationMetrics) RecordIngestedChunks(n int) {
	m.IngestChunksTotal.Add(float64(n))
}
