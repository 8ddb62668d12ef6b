// Package oid names the PostgreSQL built-in type OIDs the engine needs to
// reason about: inferring a parameter's type when the caller hasn't
// declared one, and recognizing a handful of types (infinity-capable
// date/timestamp, bytea) that need special text-format handling.
//
// The OID values themselves come from github.com/jackc/pgx/v5/pgtype,
// the one real Postgres type table already in the dependency graph via
// the teacher's result encoding (internal/router/result.go); this
// package just gives the subset the rewriter/params/result layers touch
// a stable, documented name.
package oid

import "github.com/jackc/pgx/v5/pgtype"

const (
	Bool        = pgtype.BoolOID
	Bytea       = pgtype.ByteaOID
	Int2        = pgtype.Int2OID
	Int4        = pgtype.Int4OID
	Int8        = pgtype.Int8OID
	Text        = pgtype.TextOID
	Varchar     = pgtype.VarcharOID
	Float4      = pgtype.Float4OID
	Float8      = pgtype.Float8OID
	Numeric     = pgtype.NumericOID
	Date        = pgtype.DateOID
	Timestamp   = pgtype.TimestampOID
	Timestamptz = pgtype.TimestamptzOID
	Time        = pgtype.TimeOID
	Timetz      = pgtype.TimetzOID
	UUID        = pgtype.UUIDOID
	Unspecified = 0
)

// InferFromGoValue returns the OID the engine assigns to a bound
// parameter when the caller did not declare one, based on its Go type.
// Returning Unspecified lets the server infer the type itself, which is
// always a valid fallback.
func InferFromGoValue(v interface{}) uint32 {
	switch v.(type) {
	case nil:
		return Unspecified
	case bool:
		return Bool
	case int16:
		return Int2
	case int32, int:
		return Int4
	case int64:
		return Int8
	case float32:
		return Float4
	case float64:
		return Float8
	case string:
		return Text
	case []byte:
		return Bytea
	default:
		return Unspecified
	}
}

// SupportsInfinity reports whether the given OID is a date/timestamp
// family type that accepts the textual "infinity"/"-infinity" sentinels
// (spec.md S2).
func SupportsInfinity(typeOID uint32) bool {
	switch typeOID {
	case Date, Timestamp, Timestamptz:
		return true
	default:
		return false
	}
}
