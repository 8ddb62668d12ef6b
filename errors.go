package pgstmt

import (
	"errors"
	"fmt"

	"github.com/riftdata/pgstmt/internal/errkind"
	"github.com/riftdata/pgstmt/pkg/wire"
)

// Kind re-exports the engine's client-side error classification so
// callers can match on it without importing an internal package.
type Kind = errkind.Kind

const (
	KindSyntaxError            = errkind.SyntaxError
	KindMissingParameter       = errkind.MissingParameter
	KindInvalidParameterValue  = errkind.InvalidParameterValue
	KindInvalidParameterName   = errkind.InvalidParameterName
	KindStatementClosed        = errkind.StatementClosed
	KindCanceled               = errkind.Canceled
	KindTimeout                = errkind.Timeout
)

// Error represents an ErrorResponse the server sent, preserving its
// SQLSTATE verbatim the way lib/pq's pq.Error does (see other_examples
// lib-pq__error.go): callers that need to branch on a specific SQLSTATE
// (e.g. 23505 unique_violation) can do so without this package having
// to model every Postgres error code itself.
type Error struct {
	Severity string
	Code     string // five-character SQLSTATE
	Message  string
	Detail   string
	Hint     string
	Where    string
	Table    string
	Column   string
	Constraint string
}

// SQLState returns the five-character SQLSTATE code, satisfying
// internal/healretry.SQLStateError.
func (e *Error) SQLState() string { return e.Code }

func (e *Error) Error() string {
	return fmt.Sprintf("pgstmt: %s (%s)", e.Message, e.Code)
}

// ErrorWithDetail renders Severity, Message, Detail and Hint on
// separate lines, for diagnostic logging.
func (e *Error) ErrorWithDetail() string {
	s := fmt.Sprintf("%s: %s (%s)", e.Severity, e.Message, e.Code)
	if e.Detail != "" {
		s += "\nDETAIL: " + e.Detail
	}
	if e.Hint != "" {
		s += "\nHINT: " + e.Hint
	}
	return s
}

// NewErrorFromFields builds an Error from a parsed ErrorResponse.
func NewErrorFromFields(f wire.ErrorFields) *Error {
	return &Error{
		Severity:   f.Severity,
		Code:       f.SQLState,
		Message:    f.Message,
		Detail:     f.Detail,
		Hint:       f.Hint,
		Where:      f.Where,
		Table:      f.Table,
		Column:     f.Column,
		Constraint: f.ConstraintName,
	}
}

// IsQueryCanceled reports whether err is the server's report of a
// successfully canceled execution (SQLSTATE 57014).
func IsQueryCanceled(err error) bool {
	pe, ok := err.(*Error)
	return ok && pe.Code == wire.SQLStateQueryCanceled
}

// KindOf returns the client-side classification of a local (non-server)
// error raised by this package — MISSING_PARAMETER, a closed-statement
// access, QUERY_CANCELED, STATEMENT_CANCELED_BY_TIMEOUT, and so on — and
// whether err carries one at all. A server-reported *Error (SQLSTATE
// preserved verbatim) is not a Kind and reports ok=false; callers
// distinguish that case with a type assertion to *Error instead.
func KindOf(err error) (Kind, bool) {
	var ke *errkind.Error
	if errors.As(err, &ke) {
		return ke.Kind, true
	}
	return 0, false
}
