// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// InitMetrics registers against the global registry, so all subtests share
// one instance.
var testMetrics = InitMetrics()

func TestRecordTurn(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.TurnsTotal.WithLabelValues("plaintiff", "success"))
	testMetrics.RecordTurn("plaintiff", true)
	after := testutil.ToFloat64(testMetrics.TurnsTotal.WithLabelValues("plaintiff", "success"))
	if after != before+1 {
		t.Errorf("turns counter = %v, want %v", after, before+1)
	}

	testMetrics.RecordTurn("defendant", false)
	if got := testutil.ToFloat64(testMetrics.TurnsTotal.WithLabelValues("defendant", "error")); got < 1 {
		t.Errorf("error turn not recorded, got %v", got)
	}
}

func TestRecordAuditVerdict(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.AuditVerdictsTotal.WithLabelValues("fail"))
	testMetrics.RecordAuditVerdict("fail")
	after := testutil.ToFloat64(testMetrics.AuditVerdictsTotal.WithLabelValues("fail"))
	if after != before+1 {
		t.Errorf("audit verdict counter = %v, want %v", after, before+1)
	}
}

func TestActiveCaseGauge(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.ActiveCases)
	testMetrics.CaseStarted()
	if got := testutil.ToFloat64(testMetrics.ActiveCases); got != before+1 {
		t.Errorf("active cases = %v, want %v", got, before+1)
	}
	testMetrics.CaseEnded("settled")
	if got := testutil.ToFloat64(testMetrics.ActiveCases); got != before {
		t.Errorf("active cases after end = %v, want %v", got, before)
	}
	if got := testutil.ToFloat64(testMetrics.CasesCompletedTotal.WithLabelValues("settled")); got < 1 {
		t.Errorf("completed counter not recorded, got %v", got)
	}
}

func TestRecordIngestedChunks(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.IngestChunksTotal)
	testMetrics.RecordIngestedChunks(7)
	if got := testutil.ToFloat64(testMetrics.IngestChunksTotal); got != before+7 {
		t.Errorf("ingest counter = %v, want %v", got, before+7)
	}
}
