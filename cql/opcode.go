package cql

import "github.com/orbservability/cql-tracer/frame"

// ReqOp is the decoded opcode enum for a request frame.
type ReqOp byte

const (
	ReqStartup      ReqOp = ReqOp(frame.OpcodeStartup)
	ReqOptions      ReqOp = ReqOp(frame.OpcodeOptions)
	ReqQuery        ReqOp = ReqOp(frame.OpcodeQuery)
	ReqPrepare      ReqOp = ReqOp(frame.OpcodePrepare)
	ReqExecute      ReqOp = ReqOp(frame.OpcodeExecute)
	ReqRegister     ReqOp = ReqOp(frame.OpcodeRegister)
	ReqBatch        ReqOp = ReqOp(frame.OpcodeBatch)
	ReqAuthResponse ReqOp = ReqOp(frame.OpcodeAuthResponse)
)

func (op ReqOp) String() string {
	switch op {
	case ReqStartup:
		return "STARTUP"
	case ReqOptions:
		return "OPTIONS"
	case ReqQuery:
		return "QUERY"
	case ReqPrepare:
		return "PREPARE"
	case ReqExecute:
		return "EXECUTE"
	case ReqRegister:
		return "REGISTER"
	case ReqBatch:
		return "BATCH"
	case ReqAuthResponse:
		return "AUTH_RESPONSE"
	default:
		return "UNKNOWN_REQ"
	}
}

// RespOp is the decoded opcode enum for a response frame.
type RespOp byte

const (
	RespError         RespOp = RespOp(frame.OpcodeError)
	RespReady         RespOp = RespOp(frame.OpcodeReady)
	RespAuthenticate  RespOp = RespOp(frame.OpcodeAuthenticate)
	RespSupported     RespOp = RespOp(frame.OpcodeSupported)
	RespResult        RespOp = RespOp(frame.OpcodeResult)
	RespEvent         RespOp = RespOp(frame.OpcodeEvent)
	RespAuthChallenge RespOp = RespOp(frame.OpcodeAuthChallenge)
	RespAuthSuccess   RespOp = RespOp(frame.OpcodeAuthSuccess)
)

func (op RespOp) String() string {
	switch op {
	case RespError:
		return "ERROR"
	case RespReady:
		return "READY"
	case RespAuthenticate:
		return "AUTHENTICATE"
	case RespSupported:
		return "SUPPORTED"
	case RespResult:
		return "RESULT"
	case RespEvent:
		return "EVENT"
	case RespAuthChallenge:
		return "AUTH_CHALLENGE"
	case RespAuthSuccess:
		return "AUTH_SUCCESS"
	default:
		return "UNKNOWN_RESP"
	}
}

// ResultKind selects the kind-specific payload of a RESULT response.
type ResultKind uint16

const (
	ResultVoid         ResultKind = 0x0001
	ResultRows         ResultKind = 0x0002
	ResultSetKeyspace  ResultKind = 0x0003
	ResultPrepared     ResultKind = 0x0004
	ResultSchemaChange ResultKind = 0x0005
)
