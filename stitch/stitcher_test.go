package stitch

import (
	"testing"
	"time"

	"github.com/orbservability/cql-tracer/cql"
	"github.com/orbservability/cql-tracer/diag"
	"github.com/orbservability/cql-tracer/frame"
	"github.com/orbservability/cql-tracer/record"
)

type fakeRecorder struct {
	diags []diag.Diagnostic
}

func (r *fakeRecorder) Record(d diag.Diagnostic) {
	r.diags = append(r.diags, d)
}

func newFrame(streamID int16, opcode byte, ts uint64, body []byte) *frame.Frame {
	return &frame.Frame{StreamID: streamID, Opcode: opcode, TimestampNs: ts, Body: body}
}

func TestStitcherBasicMatch(t *testing.T) {
	var got []record.Record
	rec := &fakeRecorder{}
	s := New("conn1", Config{}, rec, func(r record.Record) { got = append(got, r) })

	reqFrame := newFrame(1, frame.OpcodeOptions, 100, nil)
	s.PushRequest(reqFrame)

	respFrame := newFrame(1, frame.OpcodeReady, 150, nil)
	s.PushResponse(respFrame)

	if len(got) != 1 {
		t.Fatalf("emitted %d records, want 1", len(got))
	}
	if got[0].Req.Op != cql.ReqOptions || got[0].Resp.Op != cql.RespReady {
		t.Errorf("record = %+v", got[0])
	}
	if !reqFrame.Consumed {
		t.Error("expected request frame tombstoned")
	}
}

func TestStitcherOutOfOrderResponses(t *testing.T) {
	var got []record.Record
	rec := &fakeRecorder{}
	s := New("conn1", Config{}, rec, func(r record.Record) { got = append(got, r) })

	req1 := newFrame(1, frame.OpcodeOptions, 100, nil)
	req2 := newFrame(2, frame.OpcodeOptions, 110, nil)
	s.PushRequest(req1)
	s.PushRequest(req2)

	// response for stream 2 arrives first
	s.PushResponse(newFrame(2, frame.OpcodeReady, 150, nil))
	s.PushResponse(newFrame(1, frame.OpcodeReady, 160, nil))

	if len(got) != 2 {
		t.Fatalf("emitted %d records, want 2", len(got))
	}
	if !req1.Consumed || !req2.Consumed {
		t.Error("expected both requests tombstoned")
	}
}

func TestStitcherNoMatchingRequest(t *testing.T) {
	var got []record.Record
	rec := &fakeRecorder{}
	s := New("conn1", Config{}, rec, func(r record.Record) { got = append(got, r) })

	s.PushResponse(newFrame(7, frame.OpcodeReady, 100, nil))

	if len(got) != 0 {
		t.Fatalf("emitted %d records, want 0", len(got))
	}
	if len(rec.diags) != 1 || rec.diags[0].Kind != diag.KindNoMatchingRequest {
		t.Fatalf("diags = %+v", rec.diags)
	}
}

func TestStitcherSolitaryEvent(t *testing.T) {
	var got []record.Record
	rec := &fakeRecorder{}
	s := New("conn1", Config{}, rec, func(r record.Record) { got = append(got, r) })

	body := encodeTopologyEvent(t, "NEW_NODE", "10.0.0.9")
	s.PushResponse(newFrame(-1, frame.OpcodeEvent, 200, body))

	if len(got) != 1 {
		t.Fatalf("emitted %d records, want 1", len(got))
	}
	if got[0].Req.Op != cql.ReqRegister || got[0].Req.Msg != "-" {
		t.Errorf("synthesized request = %+v", got[0].Req)
	}
	if got[0].Req.TimestampNs != 200 {
		t.Errorf("synthesized request timestamp = %d, want 200", got[0].Req.TimestampNs)
	}
}

func TestStitcherEventWithWrongStreamIsInvariantViolation(t *testing.T) {
	rec := &fakeRecorder{}
	s := New("conn1", Config{}, rec, func(record.Record) {})

	body := encodeTopologyEvent(t, "NEW_NODE", "10.0.0.9")
	s.PushResponse(newFrame(3, frame.OpcodeEvent, 200, body))

	if len(rec.diags) != 1 || rec.diags[0].Kind != diag.KindInvariantViolation {
		t.Fatalf("diags = %+v", rec.diags)
	}
}

func TestStitcherAgesOutLostResponseRequest(t *testing.T) {
	rec := &fakeRecorder{}
	s := New("conn1", Config{MaxRequestAge: 10 * time.Second}, rec, func(record.Record) {})

	stale := newFrame(9, frame.OpcodeOptions, 0, nil)
	s.PushRequest(stale)

	// unrelated response, far enough ahead in time to push the clock past
	// the max age, triggers pruning as a side effect of draining.
	s.PushResponse(newFrame(999, frame.OpcodeReady, 20*uint64(time.Second), nil))

	foundAged := false
	for _, d := range rec.diags {
		if d.Kind == diag.KindRequestAged && d.StreamID == 9 {
			foundAged = true
		}
	}
	if !foundAged {
		t.Fatalf("expected stream 9 request aged out, diags = %+v", rec.diags)
	}
	if s.RequestQueueLen() != 0 {
		t.Errorf("RequestQueueLen = %d, want 0", s.RequestQueueLen())
	}
}

func encodeTopologyEvent(t *testing.T, change, addr string) []byte {
	t.Helper()
	var buf []byte
	putStr := func(s string) {
		buf = append(buf, byte(len(s)>>8), byte(len(s)))
		buf = append(buf, s...)
	}
	putStr("TOPOLOGY_CHANGE")
	putStr(change)
	buf = append(buf, 4)
	buf = append(buf, 10, 0, 0, 9)
	port := int32(9042)
	buf = append(buf, byte(port>>24), byte(port>>16), byte(port>>8), byte(port))
	_ = addr
	return buf
}
