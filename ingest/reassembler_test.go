package ingest

import (
	"testing"

	"github.com/orbservability/cql-tracer/diag"
	"github.com/orbservability/cql-tracer/frame"
)

type fakeRecorder struct {
	diags []diag.Diagnostic
}

func (r *fakeRecorder) Record(d diag.Diagnostic) { r.diags = append(r.diags, d) }

func encodeOptionsFrame(streamID int16) []byte {
	header := make([]byte, frame.HeaderSize)
	header[0] = 0x04 // version 4, request direction (high bit clear)
	header[1] = 0x00
	header[2] = byte(streamID >> 8)
	header[3] = byte(streamID)
	header[4] = frame.OpcodeOptions
	// body length 0
	return header
}

func TestReassemblerFeedsCompleteFrame(t *testing.T) {
	rec := &fakeRecorder{}
	a := NewReassembler(Config{}, rec)

	conn := ConnID{PID: 1, FD: 3}
	ev := CaptureEvent{
		ConnID:      conn,
		Role:        RoleClient,
		EventType:   EventWrite,
		TimestampNs: 100,
		SeqNum:      0,
		Msg:         encodeOptionsFrame(5),
	}
	a.Feed(ev)

	reqs, resps := a.Drain(conn)
	if len(reqs) != 1 || len(resps) != 0 {
		t.Fatalf("reqs=%d resps=%d, want 1/0", len(reqs), len(resps))
	}
	if reqs[0].StreamID != 5 || reqs[0].Opcode != frame.OpcodeOptions {
		t.Errorf("frame = %+v", reqs[0])
	}
}

func TestReassemblerWaitsOnPartialFrame(t *testing.T) {
	rec := &fakeRecorder{}
	a := NewReassembler(Config{}, rec)

	conn := ConnID{PID: 1, FD: 4}
	full := encodeOptionsFrame(1)
	a.Feed(CaptureEvent{ConnID: conn, Role: RoleClient, EventType: EventWrite, SeqNum: 0, Msg: full[:4]})

	reqs, _ := a.Drain(conn)
	if len(reqs) != 0 {
		t.Fatalf("expected no frames yet, got %d", len(reqs))
	}

	a.Feed(CaptureEvent{ConnID: conn, Role: RoleClient, EventType: EventWrite, SeqNum: 1, Msg: full[4:]})
	reqs, _ = a.Drain(conn)
	if len(reqs) != 1 {
		t.Fatalf("expected 1 frame after completing bytes, got %d", len(reqs))
	}
}

func TestReassemblerBoundedQueueEvicts(t *testing.T) {
	rec := &fakeRecorder{}
	a := NewReassembler(Config{QueueCapacity: 1}, rec)

	conn := ConnID{PID: 1, FD: 5}
	a.Feed(CaptureEvent{ConnID: conn, Role: RoleClient, EventType: EventWrite, SeqNum: 0, Msg: encodeOptionsFrame(1)})
	a.Feed(CaptureEvent{ConnID: conn, Role: RoleClient, EventType: EventWrite, SeqNum: 1, Msg: encodeOptionsFrame(2)})

	reqs, _ := a.Drain(conn)
	if len(reqs) != 1 || reqs[0].StreamID != 2 {
		t.Fatalf("reqs = %+v, want only stream 2 surviving", reqs)
	}
	if len(rec.diags) != 1 || rec.diags[0].Kind != diag.KindQueueOverflow {
		t.Fatalf("diags = %+v", rec.diags)
	}
}

func TestReassemblerResponseDirection(t *testing.T) {
	rec := &fakeRecorder{}
	a := NewReassembler(Config{}, rec)

	conn := ConnID{PID: 2, FD: 1}
	header := make([]byte, frame.HeaderSize)
	header[0] = 0x84 // version 4, response direction bit set
	header[4] = frame.OpcodeReady
	a.Feed(CaptureEvent{ConnID: conn, Role: RoleClient, EventType: EventRead, Msg: header})

	_, resps := a.Drain(conn)
	if len(resps) != 1 || resps[0].Opcode != frame.OpcodeReady {
		t.Fatalf("resps = %+v", resps)
	}
}
