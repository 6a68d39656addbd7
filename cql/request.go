package cql

import "fmt"

// QueryParameters is the flags-driven tail shared by QUERY and EXECUTE
// request bodies.
type QueryParameters struct {
	Consistency uint16
	Flags       byte
	Names       []string // present only if the with-names-for-values flag is set
	Values      []BoundValue
	PageSize    int32
	HasPageSize bool
	PagingState []byte
	HasPaging   bool
	SerialConsistency    uint16
	HasSerialConsistency bool
	Timestamp            int64
	HasTimestamp         bool
}

// BoundValue is one [value] from a QUERY/EXECUTE parameter list, kept as raw
// bytes: typed casting would require correlating with the PREPARE that
// declared each column's type, which is explicitly deferred.
type BoundValue struct {
	Name    string // empty unless withNamesForValues is set
	Raw     []byte
	Presence ValuePresence
}

const (
	flagValues               = 0x01
	flagSkipMetadata         = 0x02
	flagPageSize             = 0x04
	flagWithPagingState      = 0x08
	flagWithSerialConsistency = 0x10
	flagWithDefaultTimestamp = 0x20
	flagWithNamesForValues   = 0x40
)

func parseQueryParameters(c *Cursor) (QueryParameters, error) {
	var qp QueryParameters

	consistency, err := c.Short()
	if err != nil {
		return qp, fmt.Errorf("consistency: %w", err)
	}
	qp.Consistency = consistency

	flags, err := c.Byte()
	if err != nil {
		return qp, fmt.Errorf("flags: %w", err)
	}
	qp.Flags = flags

	if flags&flagValues != 0 {
		n, err := c.Short()
		if err != nil {
			return qp, fmt.Errorf("value count: %w", err)
		}
		withNames := flags&flagWithNamesForValues != 0
		qp.Values = make([]BoundValue, 0, n)
		for i := 0; i < int(n); i++ {
			var name string
			if withNames {
				name, err = c.String()
				if err != nil {
					return qp, fmt.Errorf("value[%d] name: %w", i, err)
				}
			}
			raw, presence, err := c.Value()
			if err != nil {
				return qp, fmt.Errorf("value[%d]: %w", i, err)
			}
			qp.Values = append(qp.Values, BoundValue{Name: name, Raw: raw, Presence: presence})
		}
	}

	if flags&flagPageSize != 0 {
		qp.PageSize, err = c.Int()
		if err != nil {
			return qp, fmt.Errorf("page size: %w", err)
		}
		qp.HasPageSize = true
	}

	if flags&flagWithPagingState != 0 {
		pagingState, ok, err := c.Bytes()
		if err != nil {
			return qp, fmt.Errorf("paging state: %w", err)
		}
		if ok {
			qp.PagingState = pagingState
		}
		qp.HasPaging = true
	}

	if flags&flagWithSerialConsistency != 0 {
		qp.SerialConsistency, err = c.Short()
		if err != nil {
			return qp, fmt.Errorf("serial consistency: %w", err)
		}
		qp.HasSerialConsistency = true
	}

	if flags&flagWithDefaultTimestamp != 0 {
		qp.Timestamp, err = c.Long()
		if err != nil {
			return qp, fmt.Errorf("timestamp: %w", err)
		}
		qp.HasTimestamp = true
	}

	return qp, nil
}

// StartupReq is the parsed STARTUP request body.
type StartupReq struct {
	Options [][2]string
}

func ParseStartupReq(body []byte) (StartupReq, error) {
	c := NewCursor(body)
	opts, err := c.StringMap()
	if err != nil {
		return StartupReq{}, fmt.Errorf("cql: startup options: %w", err)
	}
	return StartupReq{Options: opts}, nil
}

// AuthResponseReq is the parsed AUTH_RESPONSE request body.
type AuthResponseReq struct {
	Token []byte
}

func ParseAuthResponseReq(body []byte) (AuthResponseReq, error) {
	c := NewCursor(body)
	token, _, err := c.Bytes()
	if err != nil {
		return AuthResponseReq{}, fmt.Errorf("cql: auth response token: %w", err)
	}
	return AuthResponseReq{Token: token}, nil
}

// OptionsReq is the parsed OPTIONS request body; the body is always empty.
type OptionsReq struct{}

func ParseOptionsReq(body []byte) (OptionsReq, error) {
	if len(body) != 0 {
		return OptionsReq{}, fmt.Errorf("cql: OPTIONS body must be empty, got %d bytes", len(body))
	}
	return OptionsReq{}, nil
}

// QueryReq is the parsed QUERY request body.
type QueryReq struct {
	Query string
	QP    QueryParameters
}

func ParseQueryReq(body []byte) (QueryReq, error) {
	c := NewCursor(body)
	query, err := c.LongString()
	if err != nil {
		return QueryReq{}, fmt.Errorf("cql: query text: %w", err)
	}
	qp, err := parseQueryParameters(c)
	if err != nil {
		return QueryReq{}, fmt.Errorf("cql: query parameters: %w", err)
	}
	return QueryReq{Query: query, QP: qp}, nil
}

// PrepareReq is the parsed PREPARE request body.
type PrepareReq struct {
	Query string
}

func ParsePrepareReq(body []byte) (PrepareReq, error) {
	c := NewCursor(body)
	query, err := c.LongString()
	if err != nil {
		return PrepareReq{}, fmt.Errorf("cql: prepare query: %w", err)
	}
	return PrepareReq{Query: query}, nil
}

// ExecuteReq is the parsed EXECUTE request body.
type ExecuteReq struct {
	PreparedID []byte
	QP         QueryParameters
}

func ParseExecuteReq(body []byte) (ExecuteReq, error) {
	c := NewCursor(body)
	id, err := c.ShortBytes()
	if err != nil {
		return ExecuteReq{}, fmt.Errorf("cql: prepared id: %w", err)
	}
	qp, err := parseQueryParameters(c)
	if err != nil {
		return ExecuteReq{}, fmt.Errorf("cql: execute parameters: %w", err)
	}
	return ExecuteReq{PreparedID: id, QP: qp}, nil
}

// BatchQueryOrID is one statement in a BATCH request: either a query string
// (Kind==0) or a prepared statement id (Kind==1).
type BatchQueryOrID struct {
	Kind       byte
	Query      string
	PreparedID []byte
	Values     []BoundValue
}

// BatchReq is the parsed BATCH request body.
type BatchReq struct {
	BatchType            byte
	Queries               []BatchQueryOrID
	Consistency           uint16
	Flags                 byte
	SerialConsistency     uint16
	HasSerialConsistency  bool
	Timestamp             int64
	HasTimestamp          bool
}

func ParseBatchReq(body []byte) (BatchReq, error) {
	c := NewCursor(body)
	var req BatchReq

	batchType, err := c.Byte()
	if err != nil {
		return req, fmt.Errorf("cql: batch type: %w", err)
	}
	req.BatchType = batchType

	n, err := c.Short()
	if err != nil {
		return req, fmt.Errorf("cql: batch query count: %w", err)
	}

	req.Queries = make([]BatchQueryOrID, 0, n)
	for i := 0; i < int(n); i++ {
		kind, err := c.Byte()
		if err != nil {
			return req, fmt.Errorf("cql: batch[%d] kind: %w", i, err)
		}
		q := BatchQueryOrID{Kind: kind}
		switch kind {
		case 0:
			q.Query, err = c.LongString()
			if err != nil {
				return req, fmt.Errorf("cql: batch[%d] query: %w", i, err)
			}
		case 1:
			q.PreparedID, err = c.ShortBytes()
			if err != nil {
				return req, fmt.Errorf("cql: batch[%d] prepared id: %w", i, err)
			}
		default:
			return req, fmt.Errorf("cql: batch[%d] unknown kind %d", i, kind)
		}

		valueCount, err := c.Short()
		if err != nil {
			return req, fmt.Errorf("cql: batch[%d] value count: %w", i, err)
		}
		q.Values = make([]BoundValue, 0, valueCount)
		for j := 0; j < int(valueCount); j++ {
			raw, presence, err := c.Value()
			if err != nil {
				return req, fmt.Errorf("cql: batch[%d] value[%d]: %w", i, j, err)
			}
			q.Values = append(q.Values, BoundValue{Raw: raw, Presence: presence})
		}
		req.Queries = append(req.Queries, q)
	}

	req.Consistency, err = c.Short()
	if err != nil {
		return req, fmt.Errorf("cql: batch consistency: %w", err)
	}
	req.Flags, err = c.Byte()
	if err != nil {
		return req, fmt.Errorf("cql: batch flags: %w", err)
	}
	if req.Flags&flagWithSerialConsistency != 0 {
		req.SerialConsistency, err = c.Short()
		if err != nil {
			return req, fmt.Errorf("cql: batch serial consistency: %w", err)
		}
		req.HasSerialConsistency = true
	}
	if req.Flags&flagWithDefaultTimestamp != 0 {
		req.Timestamp, err = c.Long()
		if err != nil {
			return req, fmt.Errorf("cql: batch timestamp: %w", err)
		}
		req.HasTimestamp = true
	}

	return req, nil
}

// RegisterReq is the parsed REGISTER request body.
type RegisterReq struct {
	EventTypes []string
}

func ParseRegisterReq(body []byte) (RegisterReq, error) {
	c := NewCursor(body)
	types, err := c.StringList()
	if err != nil {
		return RegisterReq{}, fmt.Errorf("cql: register event types: %w", err)
	}
	return RegisterReq{EventTypes: types}, nil
}
