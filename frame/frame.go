// Package frame implements the CQL native protocol frame header: a fixed
// 9-byte header (version, flags, stream id, opcode, body length) followed by
// a variable-length body. It solves the same "how much do I need to read
// before I have a whole message" problem that any length-delimited wire
// protocol solves, and is the CQL analogue of a custom RPC frame header.
//
// Frame format:
//
//	0      1  2         4  5         9
//	┌──────┬──┬─────────┬──┬─────────┬───────────────┐
//	│ver/dir│fl│ stream  │op│ length  │    body ...    │
//	│  (1)  │(1)│ int16(2)│(1)│uint32(4)│ length bytes  │
//	└──────┴──┴─────────┴──┴─────────┴───────────────┘
package frame

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of a CQL frame header in bytes.
const HeaderSize = 9

// MaxBodyLength is the frame-size ceiling recommended by the CQL spec. A
// declared body length beyond this is always malformed, never merely "need
// more data" — no real client sends a 256MiB+ single frame.
const MaxBodyLength = 256 * 1024 * 1024

// Direction distinguishes which side of a connection a byte stream carries,
// since the version byte's high bit must agree with it.
type Direction int

const (
	DirRequest Direction = iota
	DirResponse
)

// versionDirectionBit is the high bit of the version byte: 0 for requests,
// 1 for responses.
const versionDirectionBit = 0x80

// Frame is one length-delimited CQL protocol message, decoded only as far as
// its header; the body is handed on, undecoded, to the cql package.
type Frame struct {
	StreamID    int16
	Opcode      byte
	Flags       byte
	Version     byte // low 7 bits; high bit stripped out of the wire byte
	Body        []byte
	TimestampNs uint64

	// Consumed is used only by the stitcher, to tombstone a matched request
	// without paying for mid-queue removal. It has no meaning before that.
	Consumed bool
}

// NeedMoreDataError signals that the buffer does not yet contain enough
// bytes to decode the next frame. It is not a protocol error.
type NeedMoreDataError struct {
	Wanted int // minimum number of additional bytes needed to make progress
}

func (e *NeedMoreDataError) Error() string {
	return fmt.Sprintf("frame: need %d more bytes", e.Wanted)
}

// MalformedError signals that the bytes present can never be completed into
// a valid frame: the frame should be dropped, not waited on.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("frame: malformed: %s", e.Reason)
}

// Decode parses the next frame out of buf, starting at offset 0. On success
// it returns the frame and the number of bytes consumed (HeaderSize+length).
// On a *NeedMoreDataError the caller should retry once more bytes have
// arrived; on a *MalformedError the frame can never be decoded and should be
// dropped along with however many bytes the caller judges unrecoverable.
func Decode(buf []byte, dir Direction, timestampNs uint64) (*Frame, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, &NeedMoreDataError{Wanted: HeaderSize - len(buf)}
	}

	verByte := buf[0]
	isResponse := verByte&versionDirectionBit != 0
	wantResponse := dir == DirResponse
	if isResponse != wantResponse {
		return nil, 0, &MalformedError{Reason: fmt.Sprintf("version byte 0x%02x direction mismatch", verByte)}
	}

	flags := buf[1]
	streamID := int16(binary.BigEndian.Uint16(buf[2:4]))
	opcode := buf[4]
	length := binary.BigEndian.Uint32(buf[5:9])

	if length > MaxBodyLength {
		return nil, 0, &MalformedError{Reason: fmt.Sprintf("body length %d exceeds ceiling %d", length, MaxBodyLength)}
	}

	if !validOpcode(opcode, dir) {
		return nil, 0, &MalformedError{Reason: fmt.Sprintf("opcode 0x%02x not valid for direction", opcode)}
	}

	total := HeaderSize + int(length)
	if len(buf) < total {
		return nil, 0, &NeedMoreDataError{Wanted: total - len(buf)}
	}

	if (streamID == -1) != (opcode == OpcodeEvent) {
		return nil, 0, &MalformedError{Reason: "stream id -1 iff opcode is EVENT"}
	}

	body := make([]byte, length)
	copy(body, buf[HeaderSize:total])

	f := &Frame{
		StreamID:    streamID,
		Opcode:      opcode,
		Flags:       flags,
		Version:     verByte &^ versionDirectionBit,
		Body:        body,
		TimestampNs: timestampNs,
	}
	return f, total, nil
}

// Request opcodes used by the core.
const (
	OpcodeStartup      byte = 0x01
	OpcodeOptions      byte = 0x05
	OpcodeQuery        byte = 0x07
	OpcodePrepare      byte = 0x09
	OpcodeExecute      byte = 0x0A
	OpcodeRegister     byte = 0x0B
	OpcodeBatch        byte = 0x0D
	OpcodeAuthResponse byte = 0x0F
)

// Response opcodes used by the core.
const (
	OpcodeError          byte = 0x00
	OpcodeReady          byte = 0x02
	OpcodeAuthenticate   byte = 0x03
	OpcodeSupported      byte = 0x06
	OpcodeResult         byte = 0x08
	OpcodeEvent          byte = 0x0C
	OpcodeAuthChallenge  byte = 0x0E
	OpcodeAuthSuccess    byte = 0x10
)

func validOpcode(op byte, dir Direction) bool {
	if dir == DirRequest {
		switch op {
		case OpcodeStartup, OpcodeOptions, OpcodeQuery, OpcodePrepare, OpcodeExecute,
			OpcodeRegister, OpcodeBatch, OpcodeAuthResponse:
			return true
		}
		return false
	}
	switch op {
	case OpcodeError, OpcodeReady, OpcodeAuthenticate, OpcodeSupported, OpcodeResult,
		OpcodeEvent, OpcodeAuthChallenge, OpcodeAuthSuccess:
		return true
	}
	return false
}
