package cql

import (
	"bytes"
	"testing"
)

func putLongString(buf *bytes.Buffer, s string) {
	putInt(buf, int32(len(s)))
	buf.WriteString(s)
}

func putValue(buf *bytes.Buffer, s string) {
	putInt(buf, int32(len(s)))
	buf.WriteString(s)
}

func TestParseStartupReq(t *testing.T) {
	var buf bytes.Buffer
	putShort(&buf, 1)
	putString(&buf, "CQL_VERSION")
	putString(&buf, "3.0.0")

	req, err := ParseStartupReq(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseStartupReq failed: %v", err)
	}
	if len(req.Options) != 1 || req.Options[0][0] != "CQL_VERSION" {
		t.Errorf("Options = %v", req.Options)
	}
}

func TestParseOptionsReqRejectsNonEmptyBody(t *testing.T) {
	if _, err := ParseOptionsReq([]byte{0x01}); err == nil {
		t.Fatal("expected error for non-empty OPTIONS body")
	}
	if _, err := ParseOptionsReq(nil); err != nil {
		t.Fatalf("unexpected error for empty OPTIONS body: %v", err)
	}
}

func TestParseQueryReqSimple(t *testing.T) {
	var buf bytes.Buffer
	putLongString(&buf, "SELECT * FROM users")
	putShort(&buf, 0x0001) // consistency ONE
	buf.WriteByte(0x00)    // no flags

	req, err := ParseQueryReq(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseQueryReq failed: %v", err)
	}
	if req.Query != "SELECT * FROM users" {
		t.Errorf("Query = %q", req.Query)
	}
	if req.QP.Consistency != 0x0001 {
		t.Errorf("Consistency = %d", req.QP.Consistency)
	}
	if len(req.QP.Values) != 0 {
		t.Errorf("expected no bound values, got %d", len(req.QP.Values))
	}
}

func TestParseQueryReqWithValuesAndPageSize(t *testing.T) {
	var buf bytes.Buffer
	putLongString(&buf, "SELECT * FROM users WHERE id = ?")
	putShort(&buf, 0x0001)
	buf.WriteByte(flagValues | flagPageSize)
	putShort(&buf, 1)
	putValue(&buf, "42")
	putInt(&buf, 100)

	req, err := ParseQueryReq(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseQueryReq failed: %v", err)
	}
	if len(req.QP.Values) != 1 || string(req.QP.Values[0].Raw) != "42" {
		t.Fatalf("Values = %+v", req.QP.Values)
	}
	if !req.QP.HasPageSize || req.QP.PageSize != 100 {
		t.Errorf("PageSize = %d, HasPageSize = %v", req.QP.PageSize, req.QP.HasPageSize)
	}
}

func TestParsePrepareReq(t *testing.T) {
	var buf bytes.Buffer
	putLongString(&buf, "INSERT INTO t (a) VALUES (?)")

	req, err := ParsePrepareReq(buf.Bytes())
	if err != nil {
		t.Fatalf("ParsePrepareReq failed: %v", err)
	}
	if req.Query != "INSERT INTO t (a) VALUES (?)" {
		t.Errorf("Query = %q", req.Query)
	}
}

func TestParseExecuteReq(t *testing.T) {
	var buf bytes.Buffer
	putShort(&buf, 4)
	buf.WriteString("abcd")
	putShort(&buf, 0x0001)
	buf.WriteByte(0x00)

	req, err := ParseExecuteReq(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseExecuteReq failed: %v", err)
	}
	if string(req.PreparedID) != "abcd" {
		t.Errorf("PreparedID = %q", req.PreparedID)
	}
}

func TestParseBatchReq(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x00) // LOGGED
	putShort(&buf, 2)

	// statement 0: query string, 1 value
	buf.WriteByte(0)
	putLongString(&buf, "INSERT INTO t (a) VALUES (?)")
	putShort(&buf, 1)
	putValue(&buf, "x")

	// statement 1: prepared id, 0 values
	buf.WriteByte(1)
	putShort(&buf, 2)
	buf.WriteString("id")
	putShort(&buf, 0)

	putShort(&buf, 0x0001) // consistency
	buf.WriteByte(0x00)    // flags

	req, err := ParseBatchReq(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseBatchReq failed: %v", err)
	}
	if len(req.Queries) != 2 {
		t.Fatalf("Queries = %d, want 2", len(req.Queries))
	}
	if req.Queries[0].Kind != 0 || req.Queries[0].Query != "INSERT INTO t (a) VALUES (?)" {
		t.Errorf("Queries[0] = %+v", req.Queries[0])
	}
	if req.Queries[1].Kind != 1 || string(req.Queries[1].PreparedID) != "id" {
		t.Errorf("Queries[1] = %+v", req.Queries[1])
	}
}

func TestParseRegisterReq(t *testing.T) {
	var buf bytes.Buffer
	putShort(&buf, 2)
	putString(&buf, "TOPOLOGY_CHANGE")
	putString(&buf, "SCHEMA_CHANGE")

	req, err := ParseRegisterReq(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseRegisterReq failed: %v", err)
	}
	if len(req.EventTypes) != 2 {
		t.Fatalf("EventTypes = %v", req.EventTypes)
	}
}

func TestParseAuthResponseReq(t *testing.T) {
	var buf bytes.Buffer
	putInt(&buf, 3)
	buf.WriteString("abc")

	req, err := ParseAuthResponseReq(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseAuthResponseReq failed: %v", err)
	}
	if string(req.Token) != "abc" {
		t.Errorf("Token = %q", req.Token)
	}
}
