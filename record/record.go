// Package record defines the per-message summary types the stitcher emits
// and the processors that fill them in from a decoded CQL body.
package record

import "github.com/orbservability/cql-tracer/cql"

// Request is the request-side half of an emitted Record.
type Request struct {
	Op          cql.ReqOp
	TimestampNs uint64
	Msg         string
}

// Response is the response-side half of an emitted Record.
type Response struct {
	Op          cql.RespOp
	TimestampNs uint64
	Msg         string
}

// Record is one matched request/response pair (or a synthesized request
// paired with a solitary EVENT response).
type Record struct {
	Req Request
	Resp Response
}
