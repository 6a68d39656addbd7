package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/orbservability/cql-tracer/diag"
)

func TestMetricsRecordIncrementsDiagnosticsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Record(diag.Diagnostic{Kind: diag.KindNoMatchingRequest, ConnID: "c1"})
	m.Record(diag.Diagnostic{Kind: diag.KindNoMatchingRequest, ConnID: "c2"})
	m.Record(diag.Diagnostic{Kind: diag.KindMalformedBody, ConnID: "c1"})

	got := testutil.ToFloat64(m.diagnosticsTotal.WithLabelValues("no_matching_request"))
	if got != 2 {
		t.Errorf("no_matching_request count = %v, want 2", got)
	}
}

func TestMetricsSetQueueDepths(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetQueueDepths("conn-1", 3, 1, 42.5)

	if got := testutil.ToFloat64(m.requestQueueDepth.WithLabelValues("conn-1")); got != 3 {
		t.Errorf("requestQueueDepth = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.oldestRequestAgeMs.WithLabelValues("conn-1")); got != 42.5 {
		t.Errorf("oldestRequestAgeMs = %v, want 42.5", got)
	}
}
