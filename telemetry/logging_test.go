package telemetry

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/orbservability/cql-tracer/diag"
)

func TestZapRecorderSeverityByKind(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	r := NewZapRecorder(logger)

	r.Record(diag.Diagnostic{Kind: diag.KindNoMatchingRequest, ConnID: "c1"})
	r.Record(diag.Diagnostic{Kind: diag.KindQueueOverflow, ConnID: "c1"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries, want 2", len(entries))
	}
	if entries[0].Level != zapcore.ErrorLevel {
		t.Errorf("NoMatchingRequest level = %v, want error", entries[0].Level)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("QueueOverflow level = %v, want warn", entries[1].Level)
	}
}

func TestMultiRecorderFansOut(t *testing.T) {
	var a, b []diag.Diagnostic
	ra := recorderFunc(func(d diag.Diagnostic) { a = append(a, d) })
	rb := recorderFunc(func(d diag.Diagnostic) { b = append(b, d) })

	m := MultiRecorder{Recorders: []diag.Recorder{ra, rb}}
	m.Record(diag.Diagnostic{Kind: diag.KindMalformedBody})

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("a=%d b=%d, want 1/1", len(a), len(b))
	}
}

type recorderFunc func(diag.Diagnostic)

func (f recorderFunc) Record(d diag.Diagnostic) { f(d) }
