package record

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/orbservability/cql-tracer/cql"
)

func putShort(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func putInt(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func putString(buf *bytes.Buffer, s string) {
	putShort(buf, uint16(len(s)))
	buf.WriteString(s)
}

func putLongString(buf *bytes.Buffer, s string) {
	putInt(buf, int32(len(s)))
	buf.WriteString(s)
}

func TestProcessReqQueryNoValues(t *testing.T) {
	var buf bytes.Buffer
	putLongString(&buf, "SELECT * FROM t")
	putShort(&buf, 0x0001)
	buf.WriteByte(0x00)

	req, err := ProcessReq(cql.ReqQuery, buf.Bytes(), 100)
	if err != nil {
		t.Fatalf("ProcessReq failed: %v", err)
	}
	if req.Msg != "SELECT * FROM t" {
		t.Errorf("Msg = %q", req.Msg)
	}
	if req.Op != cql.ReqQuery || req.TimestampNs != 100 {
		t.Errorf("req = %+v", req)
	}
}

func TestProcessReqQueryWithValues(t *testing.T) {
	var buf bytes.Buffer
	putLongString(&buf, "SELECT * FROM t WHERE id = ?")
	putShort(&buf, 0x0001)
	buf.WriteByte(0x01) // flagValues
	putShort(&buf, 1)
	putInt(&buf, 1)
	buf.WriteByte(0x2a) // 42

	req, err := ProcessReq(cql.ReqQuery, buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("ProcessReq failed: %v", err)
	}
	if !strings.Contains(req.Msg, "2a") {
		t.Errorf("Msg = %q, expected hex 2a", req.Msg)
	}
}

func TestProcessReqStartup(t *testing.T) {
	var buf bytes.Buffer
	putShort(&buf, 1)
	putString(&buf, "CQL_VERSION")
	putString(&buf, "3.0.0")

	req, err := ProcessReq(cql.ReqStartup, buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("ProcessReq failed: %v", err)
	}
	if !strings.Contains(req.Msg, "CQL_VERSION") {
		t.Errorf("Msg = %q", req.Msg)
	}
}

func TestProcessRespError(t *testing.T) {
	var buf bytes.Buffer
	putInt(&buf, 0x2200)
	putString(&buf, "bad thing")

	resp, err := ProcessResp(cql.RespError, buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("ProcessResp failed: %v", err)
	}
	if resp.Msg != "[8704] bad thing" {
		t.Errorf("Msg = %q, want %q", resp.Msg, "[8704] bad thing")
	}
}

func TestProcessRespResultVoid(t *testing.T) {
	var buf bytes.Buffer
	putInt(&buf, int32(cql.ResultVoid))

	resp, err := ProcessResp(cql.RespResult, buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("ProcessResp failed: %v", err)
	}
	if resp.Msg != "Response type = VOID" {
		t.Errorf("Msg = %q", resp.Msg)
	}
}

func TestProcessRespEventStatusChange(t *testing.T) {
	var buf bytes.Buffer
	putString(&buf, "STATUS_CHANGE")
	putString(&buf, "UP")
	buf.WriteByte(4)
	buf.Write([]byte{10, 0, 0, 1})
	putInt(&buf, 9042)

	resp, err := ProcessResp(cql.RespEvent, buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("ProcessResp failed: %v", err)
	}
	if resp.Msg != "STATUS_CHANGE UP 10.0.0.1:9042" {
		t.Errorf("Msg = %q", resp.Msg)
	}
}

func TestProcessReqUnhandledOpcode(t *testing.T) {
	if _, err := ProcessReq(cql.ReqOp(0xFF), nil, 0); err == nil {
		t.Fatal("expected error for unhandled opcode")
	}
}
