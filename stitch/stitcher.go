package stitch

import (
	"fmt"
	"time"

	"github.com/orbservability/cql-tracer/cql"
	"github.com/orbservability/cql-tracer/diag"
	"github.com/orbservability/cql-tracer/frame"
	"github.com/orbservability/cql-tracer/record"
)

// DefaultMaxRequestAge is the recommended upper bound on a well-behaved CQL
// round-trip; requests older than this with no matching response are
// discarded to recover memory from a permanently lost response.
const DefaultMaxRequestAge = 10 * time.Second

// Config tunes a Stitcher's resource and aging behavior.
type Config struct {
	// MaxRequestAge bounds how long an unconsumed request is kept waiting
	// for a response before it is pruned. Zero means DefaultMaxRequestAge.
	MaxRequestAge time.Duration
}

func (c Config) maxRequestAgeNs() uint64 {
	d := c.MaxRequestAge
	if d <= 0 {
		d = DefaultMaxRequestAge
	}
	return uint64(d.Nanoseconds())
}

// Stitcher matches request and response frames on a single connection,
// response-led: it scans from the response queue's head and pairs each
// response with the earliest unconsumed request sharing its stream id. It
// holds no shared mutable state and must be owned by exactly one goroutine
// at a time.
type Stitcher struct {
	connID    string
	cfg       Config
	reqQueue  *Queue
	respQueue *Queue
	recorder  diag.Recorder
	sink      func(record.Record)

	latestTimestampNs uint64
}

// New returns a Stitcher for one connection. sink receives every emitted
// record in response-arrival order; recorder receives every diagnostic.
func New(connID string, cfg Config, recorder diag.Recorder, sink func(record.Record)) *Stitcher {
	if recorder == nil {
		recorder = diag.NopRecorder{}
	}
	return &Stitcher{
		connID:    connID,
		cfg:       cfg,
		reqQueue:  NewQueue(0),
		respQueue: NewQueue(0),
		recorder:  recorder,
		sink:      sink,
	}
}

// PushRequest enqueues a decoded request frame. It does not itself trigger
// matching: only responses drive the algorithm.
func (s *Stitcher) PushRequest(f *frame.Frame) {
	s.bumpClock(f.TimestampNs)
	s.reqQueue.PushBack(f)
}

// PushResponse enqueues a decoded response frame and immediately drains the
// response queue, emitting every record that becomes matchable.
func (s *Stitcher) PushResponse(f *frame.Frame) {
	s.bumpClock(f.TimestampNs)
	s.respQueue.PushBack(f)
	s.drain()
}

func (s *Stitcher) bumpClock(ts uint64) {
	if ts > s.latestTimestampNs {
		s.latestTimestampNs = ts
	}
}

// RequestQueueLen and ResponseQueueLen expose queue depth for telemetry gauges.
func (s *Stitcher) RequestQueueLen() int  { return s.reqQueue.Len() }
func (s *Stitcher) ResponseQueueLen() int { return s.respQueue.Len() }

// OldestUnconsumedRequestAge reports how far behind the connection's clock
// the oldest outstanding request is, or 0 if there is none.
func (s *Stitcher) OldestUnconsumedRequestAge() time.Duration {
	f, ok := s.reqQueue.Front()
	if !ok || s.latestTimestampNs <= f.TimestampNs {
		return 0
	}
	return time.Duration(s.latestTimestampNs - f.TimestampNs)
}

func (s *Stitcher) drain() {
	for {
		r, ok := s.respQueue.Front()
		if !ok {
			break
		}
		s.handleResponse(r)
		s.respQueue.PopFront()
		s.reqQueue.PruneConsumedFront()
	}
	s.pruneAged()
}

func (s *Stitcher) handleResponse(r *frame.Frame) {
	if r.Opcode == frame.OpcodeEvent {
		s.handleSolitaryEvent(r)
		return
	}
	if r.StreamID == -1 {
		s.recorder.Record(diag.Diagnostic{
			Kind: diag.KindInvariantViolation, ConnID: s.connID, StreamID: r.StreamID,
			Detail: fmt.Sprintf("response opcode %#02x on stream id -1 is not EVENT", r.Opcode),
		})
		return
	}

	reqFrame, found := s.reqQueue.FindFirstUnconsumed(r.StreamID)
	if !found {
		s.recorder.Record(diag.Diagnostic{
			Kind:     diag.KindNoMatchingRequest,
			ConnID:   s.connID,
			StreamID: r.StreamID,
			Detail:   fmt.Sprintf("response opcode %#02x arrived with no live request", r.Opcode),
		})
		return
	}

	reqRecord, reqErr := record.ProcessReq(cql.ReqOp(reqFrame.Opcode), reqFrame.Body, reqFrame.TimestampNs)
	if reqErr != nil {
		s.recorder.Record(diag.Diagnostic{
			Kind: diag.KindMalformedBody, ConnID: s.connID, StreamID: r.StreamID,
			Detail: fmt.Sprintf("request body: %v", reqErr),
		})
		return
	}
	respRecord, respErr := record.ProcessResp(cql.RespOp(r.Opcode), r.Body, r.TimestampNs)
	if respErr != nil {
		s.recorder.Record(diag.Diagnostic{
			Kind: diag.KindMalformedBody, ConnID: s.connID, StreamID: r.StreamID,
			Detail: fmt.Sprintf("response body: %v", respErr),
		})
		return
	}

	if respRecord.TimestampNs < reqRecord.TimestampNs {
		s.recorder.Record(diag.Diagnostic{
			Kind: diag.KindLatencyWarning, ConnID: s.connID, StreamID: r.StreamID,
			Detail: "response timestamp precedes matched request timestamp",
		})
	}

	reqFrame.Consumed = true
	s.sink(record.Record{Req: reqRecord, Resp: respRecord})
}

func (s *Stitcher) handleSolitaryEvent(r *frame.Frame) {
	if r.StreamID != -1 {
		s.recorder.Record(diag.Diagnostic{
			Kind: diag.KindInvariantViolation, ConnID: s.connID, StreamID: r.StreamID,
			Detail: "EVENT frame with non-negative-one stream id",
		})
		return
	}

	respRecord, err := record.ProcessResp(cql.RespOp(r.Opcode), r.Body, r.TimestampNs)
	if err != nil {
		s.recorder.Record(diag.Diagnostic{
			Kind: diag.KindMalformedBody, ConnID: s.connID, StreamID: r.StreamID,
			Detail: fmt.Sprintf("event body: %v", err),
		})
		return
	}
	synthReq := record.Request{Op: cql.ReqRegister, TimestampNs: r.TimestampNs, Msg: "-"}
	s.sink(record.Record{Req: synthReq, Resp: respRecord})
}

func (s *Stitcher) pruneAged() {
	maxAge := s.cfg.maxRequestAgeNs()
	if s.latestTimestampNs <= maxAge {
		return
	}
	cutoff := s.latestTimestampNs - maxAge
	for _, f := range s.reqQueue.PruneOlderThan(cutoff) {
		s.recorder.Record(diag.Diagnostic{
			Kind: diag.KindRequestAged, ConnID: s.connID, StreamID: f.StreamID,
			Detail: fmt.Sprintf("request opcode %#02x discarded unmatched after exceeding max age", f.Opcode),
		})
	}
}
