package wire

// This file builds backend (server -> client) message payloads. The
// protocol engine never sends these itself — production traffic only
// ever comes from a real server — but a test harness standing in for
// the server needs to script exactly these frames, so the codec stays
// symmetric rather than parse-only.

// BuildAuthenticationOK builds an Authentication 'R' payload announcing
// AuthOK (no further authentication required).
func BuildAuthenticationOK() []byte {
	buf := NewBuffer(4)
	buf.WriteInt32(AuthOK)
	return buf.Bytes()
}

// BuildAuthenticationCleartext builds an Authentication 'R' payload
// requesting a cleartext password response.
func BuildAuthenticationCleartext() []byte {
	buf := NewBuffer(4)
	buf.WriteInt32(AuthCleartext)
	return buf.Bytes()
}

// BuildBackendKeyData builds a BackendKeyData 'K' payload.
func BuildBackendKeyData(pid, secretKey int32) []byte {
	buf := NewBuffer(8)
	buf.WriteInt32(pid)
	buf.WriteInt32(secretKey)
	return buf.Bytes()
}

// BuildParameterStatus builds a ParameterStatus 'S' payload.
func BuildParameterStatus(name, value string) []byte {
	buf := NewBuffer(len(name) + len(value) + 2)
	buf.WriteString(name)
	buf.WriteString(value)
	return buf.Bytes()
}

// BuildReadyForQuery builds a ReadyForQuery 'Z' payload.
func BuildReadyForQuery(txStatus byte) []byte {
	return []byte{txStatus}
}

// BuildParseComplete builds a ParseComplete '1' payload (always empty).
func BuildParseComplete() []byte { return nil }

// BuildBindComplete builds a BindComplete '2' payload (always empty).
func BuildBindComplete() []byte { return nil }

// BuildCloseComplete builds a CloseComplete '3' payload (always empty).
func BuildCloseComplete() []byte { return nil }

// BuildEmptyQueryResponse builds an EmptyQueryResponse 'I' payload
// (always empty).
func BuildEmptyQueryResponse() []byte { return nil }

// BuildRowDescription builds a RowDescription 'T' payload.
func BuildRowDescription(fields []FieldDescription) []byte {
	buf := NewBuffer(32 * (len(fields) + 1))
	buf.WriteInt16(int16(len(fields))) // #nosec G115 -- bounded by the wire field-count limit
	for _, f := range fields {
		buf.WriteString(f.Name)
		buf.WriteInt32(int32(f.TableOID)) // #nosec G115
		buf.WriteInt16(f.TableAttributeNumber)
		buf.WriteInt32(int32(f.DataTypeOID)) // #nosec G115
		buf.WriteInt16(f.DataTypeSize)
		buf.WriteInt32(f.TypeModifier)
		buf.WriteInt16(f.Format)
	}
	return buf.Bytes()
}

// BuildDataRow builds a DataRow 'D' payload. A nil entry in values
// encodes SQL NULL.
func BuildDataRow(values [][]byte) []byte {
	buf := NewBuffer(16 * (len(values) + 1))
	buf.WriteInt16(int16(len(values))) // #nosec G115
	for _, v := range values {
		buf.WriteCountedBytes(v)
	}
	return buf.Bytes()
}

// BuildCommandComplete builds a CommandComplete 'C' payload from a
// command tag, e.g. "SELECT 3", "INSERT 0 1".
func BuildCommandComplete(tag string) []byte {
	buf := NewBuffer(len(tag) + 1)
	buf.WriteString(tag)
	return buf.Bytes()
}

// BuildPortalSuspended builds a PortalSuspended 's' payload (always empty).
func BuildPortalSuspended() []byte { return nil }

// BuildParameterDescription builds a ParameterDescription 't' payload.
func BuildParameterDescription(oids []uint32) []byte {
	buf := NewBuffer(4*len(oids) + 2)
	buf.WriteInt16(int16(len(oids))) // #nosec G115
	for _, oid := range oids {
		buf.WriteInt32(int32(oid)) // #nosec G115
	}
	return buf.Bytes()
}

// BuildErrorResponse builds an ErrorResponse/NoticeResponse payload
// from the subset of fields callers typically need to script.
func BuildErrorResponse(f ErrorFields) []byte {
	buf := NewBuffer(64)
	writeField := func(tag byte, value string) {
		if value == "" {
			return
		}
		_ = buf.WriteByte(tag)
		buf.WriteString(value)
	}
	writeField(FieldSeverity, f.Severity)
	writeField(FieldCode, f.SQLState)
	writeField(FieldMessage, f.Message)
	writeField(FieldDetail, f.Detail)
	writeField(FieldHint, f.Hint)
	writeField(FieldWhere, f.Where)
	writeField(FieldTable, f.Table)
	writeField(FieldColumn, f.Column)
	writeField(FieldConstraint, f.ConstraintName)
	_ = buf.WriteByte(0)
	return buf.Bytes()
}
