package pgstmt

import (
	"strings"

	"github.com/riftdata/pgstmt/internal/oid"
	"github.com/riftdata/pgstmt/internal/params"
)

// inlineParams substitutes each "$n" placeholder in sql with its bound
// parameter's literal text, the way pgjdbc's simple-query mode does it
// (spec §4.6 item 4: "send Query(sql) with in-line literal substitution
// of parameters"), since the simple Query message carries no separate
// Bind step. It reports ok=false if any bound slot uses binary format,
// which cannot be rendered as SQL text, so the caller falls back to the
// extended protocol instead.
func inlineParams(sql string, pl *params.List) (string, bool) {
	slots := pl.Slots()
	for _, sl := range slots {
		if sl.Bound && sl.Format == params.FormatBinary {
			return "", false
		}
	}

	var out strings.Builder
	out.Grow(len(sql) + 16)
	inSingle, inDouble := false, false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case inSingle:
			out.WriteByte(c)
			if c == '\'' {
				inSingle = false
			}
		case inDouble:
			out.WriteByte(c)
			if c == '"' {
				inDouble = false
			}
		case c == '\'':
			inSingle = true
			out.WriteByte(c)
		case c == '"':
			inDouble = true
			out.WriteByte(c)
		case c == '$' && i+1 < len(sql) && sql[i+1] >= '1' && sql[i+1] <= '9':
			j := i + 1
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			n := 0
			for _, d := range sql[i+1 : j] {
				n = n*10 + int(d-'0')
			}
			out.WriteString(literalFor(slots, n))
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}
	return out.String(), true
}

// literalFor renders the nth (1-based) slot as a SQL literal: NULL for
// an unbound or nil-valued slot, otherwise a quoted string literal cast
// to its known type when the OID is one this package recognizes, so the
// server doesn't have to guess a bare string literal's type the way it
// would for an inferred-type parameter.
func literalFor(slots []params.Slot, n int) string {
	if n < 1 || n > len(slots) {
		return "NULL"
	}
	sl := slots[n-1]
	if !sl.Bound || sl.Value == nil {
		return "NULL"
	}
	escaped := strings.ReplaceAll(string(sl.Value), "'", "''")
	if name, ok := typeNameForCast(sl.OID); ok {
		return "'" + escaped + "'::" + name
	}
	return "'" + escaped + "'"
}

// typeNameForCast maps a subset of internal/oid's built-in type OIDs to
// the cast syntax simple-mode literal substitution appends, so e.g. an
// int4 parameter round-trips as "'3'::int4" instead of an untyped
// string literal the server would otherwise have to guess at.
func typeNameForCast(o uint32) (string, bool) {
	switch o {
	case oid.Bool:
		return "boolean", true
	case oid.Int2:
		return "int2", true
	case oid.Int4:
		return "int4", true
	case oid.Int8:
		return "int8", true
	case oid.Float4:
		return "float4", true
	case oid.Float8:
		return "float8", true
	case oid.Numeric:
		return "numeric", true
	case oid.Text, oid.Varchar:
		return "text", true
	case oid.Bytea:
		return "bytea", true
	case oid.Date:
		return "date", true
	case oid.Timestamp:
		return "timestamp", true
	case oid.Timestamptz:
		return "timestamptz", true
	case oid.Time:
		return "time", true
	case oid.Timetz:
		return "timetz", true
	case oid.UUID:
		return "uuid", true
	default:
		return "", false
	}
}
