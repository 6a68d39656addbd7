package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/orbservability/cql-tracer/diag"
	"github.com/orbservability/cql-tracer/record"
)

// Metrics holds the Prometheus collectors the agent exports. It implements
// diag.Recorder directly so it can be handed to the core packages as their
// diagnostics sink, and also exposes gauge setters the worker pool calls
// periodically for queue-depth visibility.
type Metrics struct {
	diagnosticsTotal   *prometheus.CounterVec
	requestQueueDepth  *prometheus.GaugeVec
	responseQueueDepth *prometheus.GaugeVec
	oldestRequestAgeMs *prometheus.GaugeVec
	recordsEmittedTotal prometheus.Counter
}

// NewMetrics registers every collector against reg. Pass
// prometheus.DefaultRegisterer to export on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		diagnosticsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cql_tracer_diagnostics_total",
			Help: "Count of per-frame diagnostics raised, by kind.",
		}, []string{"kind"}),
		requestQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cql_tracer_request_queue_depth",
			Help: "Number of unconsumed request frames queued, by connection.",
		}, []string{"conn_id"}),
		responseQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cql_tracer_response_queue_depth",
			Help: "Number of response frames waiting to be matched, by connection.",
		}, []string{"conn_id"}),
		oldestRequestAgeMs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cql_tracer_oldest_unconsumed_request_age_ms",
			Help: "Age in milliseconds of the oldest unconsumed request, by connection.",
		}, []string{"conn_id"}),
		recordsEmittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cql_tracer_records_emitted_total",
			Help: "Count of matched request/response records emitted.",
		}),
	}
}

// Record implements diag.Recorder by incrementing the diagnostics counter.
// Logging is handled separately by a zap-backed Recorder; production wiring
// composes the two with a MultiRecorder.
func (m *Metrics) Record(d diag.Diagnostic) {
	m.diagnosticsTotal.WithLabelValues(d.Kind.String()).Inc()
}

// SetQueueDepths updates the per-connection gauges. The worker pool calls
// this on a ticker rather than per-frame, since gauges only need to be
// fresh enough for an operator to notice backpressure building.
func (m *Metrics) SetQueueDepths(connID string, requestDepth, responseDepth int, oldestAgeMs float64) {
	m.requestQueueDepth.WithLabelValues(connID).Set(float64(requestDepth))
	m.responseQueueDepth.WithLabelValues(connID).Set(float64(responseDepth))
	m.oldestRequestAgeMs.WithLabelValues(connID).Set(oldestAgeMs)
}

// RecordSink returns a telemetry.Sink middleware stage that counts every
// emitted record.
func (m *Metrics) RecordSink() Middleware {
	return func(next Sink) Sink {
		return func(connID string, rec record.Record) {
			m.recordsEmittedTotal.Inc()
			next(connID, rec)
		}
	}
}
