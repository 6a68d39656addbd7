// Package telemetry wires structured logging and Prometheus metrics onto the
// two observable surfaces of the pipeline: per-frame diagnostics (via
// diag.Recorder) and the stream of emitted records (via a small onion-model
// middleware chain), so logging/metrics/rate-limiting of the output side
// compose independently of the matching algorithm itself.
package telemetry

import "github.com/orbservability/cql-tracer/record"

// Sink is the handler signature records are delivered through: one call per
// emitted Record, tagged with the connection it came from.
type Sink func(connID string, rec record.Record)

// Middleware wraps a Sink to add a cross-cutting concern, the same
// decorator shape an RPC server would use to wrap a request handler.
type Middleware func(next Sink) Sink

// Chain composes middlewares so the first in the list is the outermost
// layer: Chain(A, B, C)(sink) runs A, then B, then C, then sink, for every
// record delivered.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Sink) Sink {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
