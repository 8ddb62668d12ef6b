package wire

import "fmt"

// BoundParam is one already-encoded parameter value for a Bind message.
type BoundParam struct {
	Value  []byte // encoded bytes, nil for SQL NULL
	Format int16  // FormatText or FormatBinary
}

// BuildStartupMessage builds the untagged startup payload (protocol
// version followed by null-terminated key/value pairs, terminated by an
// empty key).
func BuildStartupMessage(params map[string]string) []byte {
	buf := NewBuffer(64)
	buf.WriteInt32(ProtocolVersionNumber)
	for k, v := range params {
		buf.WriteString(k)
		buf.WriteString(v)
	}
	_ = buf.WriteByte(0)
	return buf.Bytes()
}

// BuildCancelRequest builds the untagged CancelRequest payload sent on a
// fresh auxiliary connection.
func BuildCancelRequest(pid, secretKey int32) []byte {
	buf := NewBuffer(16)
	buf.WriteInt32(CancelRequestCode)
	buf.WriteInt32(pid)
	buf.WriteInt32(secretKey)
	return buf.Bytes()
}

// BuildPasswordMessage builds a 'p' message payload carrying a cleartext
// or pre-hashed password response.
func BuildPasswordMessage(password string) []byte {
	buf := NewBuffer(len(password) + 1)
	buf.WriteString(password)
	return buf.Bytes()
}

// BuildParse builds a Parse ('P') message payload.
// name="" is the unnamed statement. paramTypeOIDs may be empty to let the
// server infer parameter types.
func BuildParse(name, sql string, paramTypeOIDs []uint32) []byte {
	buf := NewBuffer(len(sql) + 32)
	buf.WriteString(name)
	buf.WriteString(sql)
	buf.WriteInt16(int16(len(paramTypeOIDs))) // #nosec G115 -- bounded by the int16 parameter-count field (32767)
	for _, oid := range paramTypeOIDs {
		buf.WriteInt32(int32(oid)) // #nosec G115 -- OIDs fit in int32
	}
	return buf.Bytes()
}

// BuildBind builds a Bind ('B') message payload.
// portal="" and statement="" address the unnamed portal/statement.
func BuildBind(portal, statement string, params []BoundParam, resultFormats []int16) []byte {
	buf := NewBuffer(64 + len(params)*16)
	buf.WriteString(portal)
	buf.WriteString(statement)

	buf.WriteInt16(int16(len(params))) // #nosec G115
	for _, p := range params {
		buf.WriteInt16(p.Format)
	}

	buf.WriteInt16(int16(len(params))) // #nosec G115
	for _, p := range params {
		buf.WriteCountedBytes(p.Value)
	}

	buf.WriteInt16(int16(len(resultFormats))) // #nosec G115
	for _, f := range resultFormats {
		buf.WriteInt16(f)
	}
	return buf.Bytes()
}

// BuildDescribe builds a Describe ('D') message payload for a statement
// (target=TargetStatement) or a portal (target=TargetPortal).
func BuildDescribe(target byte, name string) []byte {
	buf := NewBuffer(len(name) + 2)
	_ = buf.WriteByte(target)
	buf.WriteString(name)
	return buf.Bytes()
}

// BuildExecute builds an Execute ('E') message payload. rowLimit=0 means
// "no limit"; a positive value requests at most that many rows, leaving
// the portal suspended if more remain.
func BuildExecute(portal string, rowLimit int32) []byte {
	buf := NewBuffer(len(portal) + 5)
	buf.WriteString(portal)
	buf.WriteInt32(rowLimit)
	return buf.Bytes()
}

// BuildClose builds a Close ('C') message payload for a statement or portal.
func BuildClose(target byte, name string) []byte {
	buf := NewBuffer(len(name) + 2)
	_ = buf.WriteByte(target)
	buf.WriteString(name)
	return buf.Bytes()
}

// BuildQuery builds a simple-query ('Q') message payload.
func BuildQuery(sql string) []byte {
	buf := NewBuffer(len(sql) + 1)
	buf.WriteString(sql)
	return buf.Bytes()
}

// FieldDescription mirrors one column of a RowDescription message.
type FieldDescription struct {
	Name                 string
	TableOID             uint32
	TableAttributeNumber int16
	DataTypeOID          uint32
	DataTypeSize         int16
	TypeModifier         int32
	Format               int16
}

// ParseRowDescription decodes a RowDescription ('T') message payload.
func ParseRowDescription(payload []byte) ([]FieldDescription, error) {
	buf := NewReaderBuffer(payload)
	n, err := buf.ReadInt16()
	if err != nil {
		return nil, fmt.Errorf("read field count: %w", err)
	}

	fields := make([]FieldDescription, 0, n)
	for i := int16(0); i < n; i++ {
		var f FieldDescription
		if f.Name, err = buf.ReadString(); err != nil {
			return nil, fmt.Errorf("read field %d name: %w", i, err)
		}
		if f.TableOID, err = buf.ReadUint32(); err != nil {
			return nil, fmt.Errorf("read field %d table oid: %w", i, err)
		}
		if f.TableAttributeNumber, err = buf.ReadInt16(); err != nil {
			return nil, fmt.Errorf("read field %d attnum: %w", i, err)
		}
		if f.DataTypeOID, err = buf.ReadUint32(); err != nil {
			return nil, fmt.Errorf("read field %d type oid: %w", i, err)
		}
		if f.DataTypeSize, err = buf.ReadInt16(); err != nil {
			return nil, fmt.Errorf("read field %d type size: %w", i, err)
		}
		if f.TypeModifier, err = buf.ReadInt32(); err != nil {
			return nil, fmt.Errorf("read field %d type modifier: %w", i, err)
		}
		if f.Format, err = buf.ReadInt16(); err != nil {
			return nil, fmt.Errorf("read field %d format: %w", i, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// ParseDataRow decodes a DataRow ('D') message payload into raw column
// values; nil marks SQL NULL.
func ParseDataRow(payload []byte) ([][]byte, error) {
	buf := NewReaderBuffer(payload)
	n, err := buf.ReadInt16()
	if err != nil {
		return nil, fmt.Errorf("read column count: %w", err)
	}
	values := make([][]byte, n)
	for i := int16(0); i < n; i++ {
		v, err := buf.ReadCountedBytes()
		if err != nil {
			return nil, fmt.Errorf("read column %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

// ErrorFields holds the decoded fields of an ErrorResponse/NoticeResponse.
type ErrorFields struct {
	Severity       string
	SQLState       string
	Message        string
	Detail         string
	Hint           string
	Position       string
	InternalQuery  string
	Where          string
	Schema         string
	Table          string
	Column         string
	DataTypeName   string
	ConstraintName string
	File           string
	Line           string
	Routine        string
}

// ParseErrorFields decodes an ErrorResponse/NoticeResponse payload: a
// sequence of (field-type byte, C-string) pairs, terminated by a zero byte.
func ParseErrorFields(payload []byte) (ErrorFields, error) {
	buf := NewReaderBuffer(payload)
	var f ErrorFields
	for {
		tag, err := buf.ReadByte()
		if err != nil {
			return f, fmt.Errorf("read field tag: %w", err)
		}
		if tag == 0 {
			return f, nil
		}
		value, err := buf.ReadString()
		if err != nil {
			return f, fmt.Errorf("read field value: %w", err)
		}
		switch tag {
		case FieldSeverity, FieldSeverityNonLocal:
			f.Severity = value
		case FieldCode:
			f.SQLState = value
		case FieldMessage:
			f.Message = value
		case FieldDetail:
			f.Detail = value
		case FieldHint:
			f.Hint = value
		case FieldPosition, FieldInternalPosition:
			f.Position = value
		case FieldInternalQuery:
			f.InternalQuery = value
		case FieldWhere:
			f.Where = value
		case FieldSchema:
			f.Schema = value
		case FieldTable:
			f.Table = value
		case FieldColumn:
			f.Column = value
		case FieldDataType:
			f.DataTypeName = value
		case FieldConstraint:
			f.ConstraintName = value
		case FieldFile:
			f.File = value
		case FieldLine:
			f.Line = value
		case FieldRoutine:
			f.Routine = value
		}
	}
}

// ParseParameterStatus decodes a ParameterStatus ('S') message payload.
func ParseParameterStatus(payload []byte) (name, value string, err error) {
	buf := NewReaderBuffer(payload)
	if name, err = buf.ReadString(); err != nil {
		return "", "", fmt.Errorf("read parameter name: %w", err)
	}
	if value, err = buf.ReadString(); err != nil {
		return "", "", fmt.Errorf("read parameter value: %w", err)
	}
	return name, value, nil
}

// ParseBackendKeyData decodes a BackendKeyData ('K') message payload.
func ParseBackendKeyData(payload []byte) (pid, secretKey int32, err error) {
	buf := NewReaderBuffer(payload)
	if pid, err = buf.ReadInt32(); err != nil {
		return 0, 0, fmt.Errorf("read pid: %w", err)
	}
	if secretKey, err = buf.ReadInt32(); err != nil {
		return 0, 0, fmt.Errorf("read secret key: %w", err)
	}
	return pid, secretKey, nil
}

// ParseReadyForQuery decodes a ReadyForQuery ('Z') message payload.
func ParseReadyForQuery(payload []byte) (txStatus byte, err error) {
	if len(payload) != 1 {
		return 0, ErrInvalidMessage
	}
	return payload[0], nil
}

// ParseCommandComplete decodes a CommandComplete ('C') message payload:
// the command tag, e.g. "INSERT 0 3", "UPDATE 2", "SELECT 5".
func ParseCommandComplete(payload []byte) (tag string, err error) {
	buf := NewReaderBuffer(payload)
	return buf.ReadString()
}

// ParseParameterDescription decodes a ParameterDescription ('t') message
// payload: the OID the server inferred for each parameter.
func ParseParameterDescription(payload []byte) ([]uint32, error) {
	buf := NewReaderBuffer(payload)
	n, err := buf.ReadInt16()
	if err != nil {
		return nil, fmt.Errorf("read parameter count: %w", err)
	}
	oids := make([]uint32, n)
	for i := int16(0); i < n; i++ {
		if oids[i], err = buf.ReadUint32(); err != nil {
			return nil, fmt.Errorf("read parameter %d oid: %w", i, err)
		}
	}
	return oids, nil
}
