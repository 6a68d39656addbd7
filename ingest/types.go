// Package ingest stands in for the real kernel-assisted capture source: it
// reassembles per-connection byte streams out of CaptureEvents, concatenated
// in the order they are fed, and feeds the Frame Decoder, so the rest of the
// pipeline can be exercised without real BPF instrumentation.
package ingest

import (
	"fmt"

	"github.com/orbservability/cql-tracer/frame"
)

// ConnID identifies a single socket the way the kernel-space capture record
// does: pid/fd alone are not enough to be collision-free across the life of
// a host, so generation and the process start time disambiguate reused fds.
type ConnID struct {
	PID            uint32
	PIDStartTimeNs uint64
	FD             int32
	Generation     uint32
}

// Key returns a stable string identifier suitable for map keys and for
// hashing into a worker shard.
func (c ConnID) Key() string {
	return fmt.Sprintf("%d-%d-%d-%d", c.PID, c.PIDStartTimeNs, c.FD, c.Generation)
}

func (c ConnID) String() string { return c.Key() }

// Role is which side of the connection this host's socket played.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// EventType mirrors the four syscalls the real framer would observe.
type EventType int

const (
	EventWrite EventType = iota
	EventSend
	EventRead
	EventRecv
)

// Direction resolves which logical direction (request or response) this
// event belongs to, given which role this host played on the connection.
func (e EventType) Direction(role Role) frame.Direction {
	isOutbound := e == EventWrite || e == EventSend
	if role == RoleClient {
		if isOutbound {
			return frame.DirRequest
		}
		return frame.DirResponse
	}
	if isOutbound {
		return frame.DirResponse
	}
	return frame.DirRequest
}

// CaptureEvent is one chunk of the kernel-space capture record relevant to
// reassembly: a contiguous slice of bytes observed on one connection in one
// direction at one point in the stream, identified by SeqNum. The
// reassembler does not read SeqNum: it neither reorders events nor detects
// gaps between them.
type CaptureEvent struct {
	ConnID      ConnID
	Role        Role
	EventType   EventType
	TimestampNs uint64
	SeqNum      uint64
	Msg         []byte
}
