package telemetry

import (
	"testing"

	"github.com/orbservability/cql-tracer/record"
)

func TestChainRunsInOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Sink) Sink {
			return func(connID string, rec record.Record) {
				order = append(order, name)
				next(connID, rec)
			}
		}
	}

	chain := Chain(mark("A"), mark("B"), mark("C"))
	sink := chain(func(connID string, rec record.Record) { order = append(order, "handler") })
	sink("conn", record.Record{})

	want := []string{"A", "B", "C", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRateLimitSinkDropsExcess(t *testing.T) {
	var delivered int
	sink := RateLimitSink(0, 1)(func(connID string, rec record.Record) { delivered++ })

	sink("c", record.Record{})
	sink("c", record.Record{})
	sink("c", record.Record{})

	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1 (burst of one token)", delivered)
	}
}
