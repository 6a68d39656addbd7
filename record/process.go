package record

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/orbservability/cql-tracer/cql"
)

// ProcessReq decodes body as a request of the given opcode and renders its
// summary message. An error means the body was malformed; the caller should
// treat the frame as unusable rather than emit a partial Record.
func ProcessReq(op cql.ReqOp, body []byte, timestampNs uint64) (Request, error) {
	msg, err := processReqMsg(op, body)
	if err != nil {
		return Request{}, err
	}
	return Request{Op: op, TimestampNs: timestampNs, Msg: msg}, nil
}

func processReqMsg(op cql.ReqOp, body []byte) (string, error) {
	switch op {
	case cql.ReqStartup:
		req, err := cql.ParseStartupReq(body)
		if err != nil {
			return "", err
		}
		return jsonStringMap(req.Options), nil

	case cql.ReqAuthResponse:
		req, err := cql.ParseAuthResponseReq(body)
		if err != nil {
			return "", err
		}
		return string(req.Token), nil

	case cql.ReqOptions:
		if _, err := cql.ParseOptionsReq(body); err != nil {
			return "", err
		}
		return "", nil

	case cql.ReqRegister:
		req, err := cql.ParseRegisterReq(body)
		if err != nil {
			return "", err
		}
		return jsonStringList(req.EventTypes), nil

	case cql.ReqQuery:
		req, err := cql.ParseQueryReq(body)
		if err != nil {
			return "", err
		}
		msg := req.Query
		if len(req.QP.Values) > 0 {
			msg += "\n" + jsonHexValues(req.QP.Values)
		}
		return msg, nil

	case cql.ReqPrepare:
		req, err := cql.ParsePrepareReq(body)
		if err != nil {
			return "", err
		}
		return req.Query, nil

	case cql.ReqExecute:
		req, err := cql.ParseExecuteReq(body)
		if err != nil {
			return "", err
		}
		return jsonHexValues(req.QP.Values), nil

	case cql.ReqBatch:
		req, err := cql.ParseBatchReq(body)
		if err != nil {
			return "", err
		}
		return jsonBatchQueries(req.Queries), nil

	default:
		return "", fmt.Errorf("record: unhandled request opcode %v", op)
	}
}

// ProcessResp decodes body as a response of the given opcode and renders its
// summary message.
func ProcessResp(op cql.RespOp, body []byte, timestampNs uint64) (Response, error) {
	msg, err := processRespMsg(op, body)
	if err != nil {
		return Response{}, err
	}
	return Response{Op: op, TimestampNs: timestampNs, Msg: msg}, nil
}

func processRespMsg(op cql.RespOp, body []byte) (string, error) {
	switch op {
	case cql.RespError:
		resp, err := cql.ParseErrorResp(body)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[%d] %s", resp.Code, resp.Message), nil

	case cql.RespReady:
		if _, err := cql.ParseReadyResp(body); err != nil {
			return "", err
		}
		return "", nil

	case cql.RespSupported:
		resp, err := cql.ParseSupportedResp(body)
		if err != nil {
			return "", err
		}
		return jsonStringMultimap(resp.Options), nil

	case cql.RespAuthenticate:
		resp, err := cql.ParseAuthenticateResp(body)
		if err != nil {
			return "", err
		}
		return resp.AuthenticatorName, nil

	case cql.RespAuthChallenge:
		resp, err := cql.ParseAuthChallengeResp(body)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(resp.Token), nil

	case cql.RespAuthSuccess:
		resp, err := cql.ParseAuthSuccessResp(body)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(resp.Token), nil

	case cql.RespResult:
		resp, err := cql.ParseResultResp(body)
		if err != nil {
			return "", err
		}
		return resultMsg(resp), nil

	case cql.RespEvent:
		resp, err := cql.ParseEventResp(body)
		if err != nil {
			return "", err
		}
		return eventMsg(resp), nil

	default:
		return "", fmt.Errorf("record: unhandled response opcode %v", op)
	}
}

func resultMsg(resp cql.ResultResp) string {
	switch resp.Kind {
	case cql.ResultVoid:
		return "Response type = VOID"
	case cql.ResultRows:
		names := make([]string, len(resp.Rows.Metadata.ColSpecs))
		for i, col := range resp.Rows.Metadata.ColSpecs {
			names[i] = col.Name
		}
		return fmt.Sprintf("Response type = ROWS\nNumber of columns = %d\n%s\nNumber of rows = %d",
			len(names), jsonStringList(names), resp.Rows.RowCount)
	case cql.ResultSetKeyspace:
		return fmt.Sprintf("Response type = SET_KEYSPACE\nKeyspace = %s", resp.SetKeyspace.KeyspaceName)
	case cql.ResultPrepared:
		return "Response type = PREPARED"
	case cql.ResultSchemaChange:
		return "Response type = SCHEMA_CHANGE"
	default:
		return fmt.Sprintf("Response type = UNKNOWN(%d)", resp.Kind)
	}
}

func eventMsg(resp cql.EventResp) string {
	switch resp.EventType {
	case "TOPOLOGY_CHANGE", "STATUS_CHANGE":
		addr := net.JoinHostPort(resp.Topology.Addr, fmt.Sprint(resp.Topology.Port))
		return fmt.Sprintf("%s %s %s", resp.EventType, resp.Topology.ChangeType, addr)
	case "SCHEMA_CHANGE":
		return fmt.Sprintf("SCHEMA_CHANGE %s keyspace=%s name=%s",
			resp.Schema.ChangeType, resp.Schema.Keyspace, resp.Schema.Name)
	default:
		return resp.EventType
	}
}

func jsonStringMap(pairs [][2]string) string {
	m := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		m[kv[0]] = kv[1]
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func jsonStringMultimap(entries []cql.StringMultimapEntry) string {
	m := make(map[string][]string, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Values
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func jsonStringList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func jsonHexValues(values []cql.BoundValue) string {
	out := make([]string, len(values))
	for i, v := range values {
		switch v.Presence {
		case cql.ValueNull:
			out[i] = "NULL"
		case cql.ValueNotSet:
			out[i] = "NOT_SET"
		default:
			out[i] = hex.EncodeToString(v.Raw)
		}
	}
	return jsonStringList(out)
}

func jsonBatchQueries(queries []cql.BatchQueryOrID) string {
	parts := make([]string, len(queries))
	for i, q := range queries {
		if q.Kind == 0 {
			parts[i] = fmt.Sprintf(`{query=%q}`, q.Query)
		} else {
			parts[i] = fmt.Sprintf(`{id=%q}`, strings.ToUpper(hex.EncodeToString(q.PreparedID)))
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
