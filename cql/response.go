package cql

import "fmt"

// ErrorResp is the parsed ERROR response body.
type ErrorResp struct {
	Code    int32
	Message string
}

func ParseErrorResp(body []byte) (ErrorResp, error) {
	c := NewCursor(body)
	code, err := c.Int()
	if err != nil {
		return ErrorResp{}, fmt.Errorf("cql: error code: %w", err)
	}
	msg, err := c.String()
	if err != nil {
		return ErrorResp{}, fmt.Errorf("cql: error message: %w", err)
	}
	return ErrorResp{Code: code, Message: msg}, nil
}

// ReadyResp is the parsed READY response body; it is always empty.
type ReadyResp struct{}

func ParseReadyResp(body []byte) (ReadyResp, error) {
	if len(body) != 0 {
		return ReadyResp{}, fmt.Errorf("cql: READY body must be empty, got %d bytes", len(body))
	}
	return ReadyResp{}, nil
}

// AuthenticateResp is the parsed AUTHENTICATE response body.
type AuthenticateResp struct {
	AuthenticatorName string
}

func ParseAuthenticateResp(body []byte) (AuthenticateResp, error) {
	c := NewCursor(body)
	name, err := c.String()
	if err != nil {
		return AuthenticateResp{}, fmt.Errorf("cql: authenticator name: %w", err)
	}
	return AuthenticateResp{AuthenticatorName: name}, nil
}

// SupportedResp is the parsed SUPPORTED response body.
type SupportedResp struct {
	Options []StringMultimapEntry
}

func ParseSupportedResp(body []byte) (SupportedResp, error) {
	c := NewCursor(body)
	mm, err := c.StringMultimap()
	if err != nil {
		return SupportedResp{}, fmt.Errorf("cql: supported options: %w", err)
	}
	return SupportedResp{Options: mm}, nil
}

// AuthChallengeResp is the parsed AUTH_CHALLENGE response body.
type AuthChallengeResp struct {
	Token []byte
}

func ParseAuthChallengeResp(body []byte) (AuthChallengeResp, error) {
	c := NewCursor(body)
	token, _, err := c.Bytes()
	if err != nil {
		return AuthChallengeResp{}, fmt.Errorf("cql: auth challenge token: %w", err)
	}
	return AuthChallengeResp{Token: token}, nil
}

// AuthSuccessResp is the parsed AUTH_SUCCESS response body.
type AuthSuccessResp struct {
	Token []byte
}

func ParseAuthSuccessResp(body []byte) (AuthSuccessResp, error) {
	c := NewCursor(body)
	token, _, err := c.Bytes()
	if err != nil {
		return AuthSuccessResp{}, fmt.Errorf("cql: auth success token: %w", err)
	}
	return AuthSuccessResp{Token: token}, nil
}

// ColumnType identifies the wire type of one column spec. Only the shape
// needed to correctly advance the cursor is modeled; typed value rendering
// is a deferred future extension (see BoundValue doc).
type ColumnType struct {
	ID       uint16
	Elem     *ColumnType   // list/set element type, or map value type
	Key      *ColumnType   // map key type
	UDTName  string        // non-empty for a user-defined type
	UDTKS    string        // keyspace of a user-defined type
	Fields   []ColumnType  // UDT field types or tuple element types
	FieldNames []string    // UDT field names, parallel to Fields
	Custom   string        // class name for a CUSTOM type
}

const (
	typeCustom    uint16 = 0x0000
	typeList      uint16 = 0x0020
	typeMap       uint16 = 0x0021
	typeSet       uint16 = 0x0022
	typeUDT       uint16 = 0x0030
	typeTuple     uint16 = 0x0031
)

func parseColumnType(c *Cursor) (ColumnType, error) {
	id, err := c.Short()
	if err != nil {
		return ColumnType{}, fmt.Errorf("type id: %w", err)
	}
	t := ColumnType{ID: id}

	switch id {
	case typeCustom:
		name, err := c.String()
		if err != nil {
			return t, fmt.Errorf("custom class name: %w", err)
		}
		t.Custom = name
	case typeList, typeSet:
		elem, err := parseColumnType(c)
		if err != nil {
			return t, fmt.Errorf("element type: %w", err)
		}
		t.Elem = &elem
	case typeMap:
		key, err := parseColumnType(c)
		if err != nil {
			return t, fmt.Errorf("map key type: %w", err)
		}
		val, err := parseColumnType(c)
		if err != nil {
			return t, fmt.Errorf("map value type: %w", err)
		}
		t.Key = &key
		t.Elem = &val
	case typeUDT:
		ks, err := c.String()
		if err != nil {
			return t, fmt.Errorf("udt keyspace: %w", err)
		}
		name, err := c.String()
		if err != nil {
			return t, fmt.Errorf("udt name: %w", err)
		}
		n, err := c.Short()
		if err != nil {
			return t, fmt.Errorf("udt field count: %w", err)
		}
		t.UDTKS = ks
		t.UDTName = name
		t.Fields = make([]ColumnType, 0, n)
		t.FieldNames = make([]string, 0, n)
		for i := 0; i < int(n); i++ {
			fname, err := c.String()
			if err != nil {
				return t, fmt.Errorf("udt field[%d] name: %w", i, err)
			}
			ftype, err := parseColumnType(c)
			if err != nil {
				return t, fmt.Errorf("udt field[%d] type: %w", i, err)
			}
			t.FieldNames = append(t.FieldNames, fname)
			t.Fields = append(t.Fields, ftype)
		}
	case typeTuple:
		n, err := c.Short()
		if err != nil {
			return t, fmt.Errorf("tuple size: %w", err)
		}
		t.Fields = make([]ColumnType, 0, n)
		for i := 0; i < int(n); i++ {
			ft, err := parseColumnType(c)
			if err != nil {
				return t, fmt.Errorf("tuple element[%d]: %w", i, err)
			}
			t.Fields = append(t.Fields, ft)
		}
	}
	return t, nil
}

// ColumnSpec is one column of ROWS metadata.
type ColumnSpec struct {
	Keyspace string
	Table    string
	Name     string
	Type     ColumnType
}

const (
	rowsFlagGlobalTablesSpec uint32 = 0x0001
	rowsFlagHasMorePages     uint32 = 0x0002
	rowsFlagNoMetadata       uint32 = 0x0004
)

// RowsMetadata is the metadata block that precedes ROWS result data.
type RowsMetadata struct {
	Flags           uint32
	ColumnsCount    int32
	PagingState     []byte
	HasPagingState  bool
	GlobalKeyspace  string
	GlobalTable     string
	ColSpecs        []ColumnSpec
}

func parseRowsMetadata(c *Cursor) (RowsMetadata, error) {
	var m RowsMetadata
	flags, err := c.Int()
	if err != nil {
		return m, fmt.Errorf("metadata flags: %w", err)
	}
	m.Flags = uint32(flags)

	count, err := c.Int()
	if err != nil {
		return m, fmt.Errorf("columns count: %w", err)
	}
	m.ColumnsCount = count

	if m.Flags&rowsFlagHasMorePages != 0 {
		ps, ok, err := c.Bytes()
		if err != nil {
			return m, fmt.Errorf("paging state: %w", err)
		}
		if ok {
			m.PagingState = ps
		}
		m.HasPagingState = true
	}

	if m.Flags&rowsFlagNoMetadata != 0 {
		return m, nil
	}

	globalSpec := m.Flags&rowsFlagGlobalTablesSpec != 0
	if globalSpec {
		m.GlobalKeyspace, err = c.String()
		if err != nil {
			return m, fmt.Errorf("global keyspace: %w", err)
		}
		m.GlobalTable, err = c.String()
		if err != nil {
			return m, fmt.Errorf("global table: %w", err)
		}
	}

	m.ColSpecs = make([]ColumnSpec, 0, count)
	for i := 0; i < int(count); i++ {
		var spec ColumnSpec
		if !globalSpec {
			spec.Keyspace, err = c.String()
			if err != nil {
				return m, fmt.Errorf("col[%d] keyspace: %w", i, err)
			}
			spec.Table, err = c.String()
			if err != nil {
				return m, fmt.Errorf("col[%d] table: %w", i, err)
			}
		}
		spec.Name, err = c.String()
		if err != nil {
			return m, fmt.Errorf("col[%d] name: %w", i, err)
		}
		spec.Type, err = parseColumnType(c)
		if err != nil {
			return m, fmt.Errorf("col[%d] type: %w", i, err)
		}
		m.ColSpecs = append(m.ColSpecs, spec)
	}

	return m, nil
}

// ResultRowsResp is the RESULT/ROWS payload. Row values are not retained:
// only the count, matching the engine's lossy-summary design.
type ResultRowsResp struct {
	Metadata RowsMetadata
	RowCount int32
}

func parseResultRows(c *Cursor) (ResultRowsResp, error) {
	var r ResultRowsResp
	meta, err := parseRowsMetadata(c)
	if err != nil {
		return r, fmt.Errorf("rows metadata: %w", err)
	}
	r.Metadata = meta

	rowCount, err := c.Int()
	if err != nil {
		return r, fmt.Errorf("row count: %w", err)
	}
	r.RowCount = rowCount

	colCount := len(meta.ColSpecs)
	if meta.Flags&rowsFlagNoMetadata != 0 {
		colCount = int(meta.ColumnsCount)
	}
	for i := 0; i < int(rowCount); i++ {
		for j := 0; j < colCount; j++ {
			if _, _, err := c.Bytes(); err != nil {
				return r, fmt.Errorf("row[%d] col[%d]: %w", i, j, err)
			}
		}
	}
	return r, nil
}

// ResultSetKeyspaceResp is the RESULT/SET_KEYSPACE payload.
type ResultSetKeyspaceResp struct {
	KeyspaceName string
}

// ResultPreparedResp is the RESULT/PREPARED payload.
type ResultPreparedResp struct {
	PreparedID      []byte
	ResultMetadataID []byte
	Metadata        RowsMetadata
	ResultMetadata  RowsMetadata
}

// ResultSchemaChangeResp is the RESULT/SCHEMA_CHANGE payload.
type ResultSchemaChangeResp struct {
	ChangeType string
	Target     string
	Keyspace   string
	Name       string
	ArgTypes   []string
}

// ResultResp is the tagged-union RESULT response body: exactly one of the
// *Resp fields is meaningful, selected by Kind.
type ResultResp struct {
	Kind          ResultKind
	Rows          ResultRowsResp
	SetKeyspace   ResultSetKeyspaceResp
	Prepared      ResultPreparedResp
	SchemaChange  ResultSchemaChangeResp
}

func ParseResultResp(body []byte) (ResultResp, error) {
	c := NewCursor(body)
	kindRaw, err := c.Int()
	if err != nil {
		return ResultResp{}, fmt.Errorf("cql: result kind: %w", err)
	}
	kind := ResultKind(kindRaw)

	r := ResultResp{Kind: kind}
	switch kind {
	case ResultVoid:
		// no payload
	case ResultRows:
		rows, err := parseResultRows(c)
		if err != nil {
			return r, fmt.Errorf("cql: result rows: %w", err)
		}
		r.Rows = rows
	case ResultSetKeyspace:
		name, err := c.String()
		if err != nil {
			return r, fmt.Errorf("cql: set keyspace name: %w", err)
		}
		r.SetKeyspace = ResultSetKeyspaceResp{KeyspaceName: name}
	case ResultPrepared:
		id, err := c.ShortBytes()
		if err != nil {
			return r, fmt.Errorf("cql: prepared id: %w", err)
		}
		resultMetaID, err := c.ShortBytes()
		if err != nil {
			return r, fmt.Errorf("cql: prepared result metadata id: %w", err)
		}
		meta, err := parseRowsMetadata(c)
		if err != nil {
			return r, fmt.Errorf("cql: prepared bind metadata: %w", err)
		}
		resultMeta, err := parseRowsMetadata(c)
		if err != nil {
			return r, fmt.Errorf("cql: prepared result metadata: %w", err)
		}
		r.Prepared = ResultPreparedResp{
			PreparedID:       id,
			ResultMetadataID: resultMetaID,
			Metadata:         meta,
			ResultMetadata:   resultMeta,
		}
	case ResultSchemaChange:
		sc, err := parseSchemaChange(c)
		if err != nil {
			return r, fmt.Errorf("cql: schema change: %w", err)
		}
		r.SchemaChange = sc
	default:
		return r, fmt.Errorf("cql: unrecognized result kind %d", kind)
	}
	return r, nil
}

func parseSchemaChange(c *Cursor) (ResultSchemaChangeResp, error) {
	var sc ResultSchemaChangeResp
	var err error
	sc.ChangeType, err = c.String()
	if err != nil {
		return sc, fmt.Errorf("change type: %w", err)
	}
	sc.Target, err = c.String()
	if err != nil {
		return sc, fmt.Errorf("target: %w", err)
	}
	switch sc.Target {
	case "KEYSPACE":
		sc.Keyspace, err = c.String()
		if err != nil {
			return sc, fmt.Errorf("keyspace: %w", err)
		}
	case "TABLE", "TYPE":
		sc.Keyspace, err = c.String()
		if err != nil {
			return sc, fmt.Errorf("keyspace: %w", err)
		}
		sc.Name, err = c.String()
		if err != nil {
			return sc, fmt.Errorf("name: %w", err)
		}
	case "FUNCTION", "AGGREGATE":
		sc.Keyspace, err = c.String()
		if err != nil {
			return sc, fmt.Errorf("keyspace: %w", err)
		}
		sc.Name, err = c.String()
		if err != nil {
			return sc, fmt.Errorf("name: %w", err)
		}
		sc.ArgTypes, err = c.StringList()
		if err != nil {
			return sc, fmt.Errorf("arg types: %w", err)
		}
	default:
		return sc, fmt.Errorf("unknown schema change target %q", sc.Target)
	}
	return sc, nil
}

// EventTopologyOrStatus is the payload shared by TOPOLOGY_CHANGE and
// STATUS_CHANGE events.
type EventTopologyOrStatus struct {
	ChangeType string
	Addr       string
	Port       int32
}

// EventResp is the tagged-union EVENT response body.
type EventResp struct {
	EventType string
	Topology  EventTopologyOrStatus // valid when EventType is TOPOLOGY_CHANGE or STATUS_CHANGE
	Schema    ResultSchemaChangeResp // valid when EventType is SCHEMA_CHANGE
}

func ParseEventResp(body []byte) (EventResp, error) {
	c := NewCursor(body)
	eventType, err := c.String()
	if err != nil {
		return EventResp{}, fmt.Errorf("cql: event type: %w", err)
	}

	r := EventResp{EventType: eventType}
	switch eventType {
	case "TOPOLOGY_CHANGE", "STATUS_CHANGE":
		changeType, err := c.String()
		if err != nil {
			return r, fmt.Errorf("cql: event change type: %w", err)
		}
		ip, port, err := c.Inet()
		if err != nil {
			return r, fmt.Errorf("cql: event addr: %w", err)
		}
		r.Topology = EventTopologyOrStatus{ChangeType: changeType, Addr: ip.String(), Port: port}
	case "SCHEMA_CHANGE":
		sc, err := parseSchemaChange(c)
		if err != nil {
			return r, fmt.Errorf("cql: event schema change: %w", err)
		}
		r.Schema = sc
	default:
		return r, fmt.Errorf("cql: unknown event type %q", eventType)
	}
	return r, nil
}
