package telemetry

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/orbservability/cql-tracer/diag"
	"github.com/orbservability/cql-tracer/record"
)

// ZapRecorder logs every diagnostic at the severity its kind calls for in
// the error handling design: NoMatchingRequest and InvariantViolation are
// error-level, NeedMoreData is debug-level, everything else is warn-level.
type ZapRecorder struct {
	logger *zap.Logger
}

// NewZapRecorder wraps logger as a diag.Recorder.
func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	return &ZapRecorder{logger: logger}
}

func (z *ZapRecorder) Record(d diag.Diagnostic) {
	fields := []zap.Field{
		zap.String("kind", d.Kind.String()),
		zap.String("conn_id", d.ConnID),
		zap.Int16("stream_id", d.StreamID),
		zap.String("detail", d.Detail),
	}
	switch d.Kind {
	case diag.KindNoMatchingRequest, diag.KindInvariantViolation:
		z.logger.Error("cql frame diagnostic", fields...)
	case diag.KindNeedMoreData:
		z.logger.Debug("cql frame diagnostic", fields...)
	default:
		z.logger.Warn("cql frame diagnostic", fields...)
	}
}

// MultiRecorder fans one diagnostic out to every recorder in the list, so
// logging and metrics can both observe the same stream without coupling to
// each other.
type MultiRecorder struct {
	Recorders []diag.Recorder
}

func (m MultiRecorder) Record(d diag.Diagnostic) {
	for _, r := range m.Recorders {
		r.Record(d)
	}
}

// LoggingSink is a telemetry.Middleware stage that logs every emitted
// record's round-trip latency and opcodes.
func LoggingSink(logger *zap.Logger) Middleware {
	return func(next Sink) Sink {
		return func(connID string, rec record.Record) {
			latency := time.Duration(int64(rec.Resp.TimestampNs) - int64(rec.Req.TimestampNs))
			logger.Info("cql record",
				zap.String("conn_id", connID),
				zap.String("req_op", rec.Req.Op.String()),
				zap.String("resp_op", rec.Resp.Op.String()),
				zap.Duration("latency", latency),
			)
			next(connID, rec)
		}
	}
}

// RateLimitSink short-circuits delivery once more than r records per second
// (with the given burst) have been emitted, dropping the excess rather than
// letting a downstream exporter fall behind. The limiter is created once,
// shared across every call through this stage.
func RateLimitSink(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Sink) Sink {
		return func(connID string, rec record.Record) {
			if !limiter.Allow() {
				return
			}
			next(connID, rec)
		}
	}
}
