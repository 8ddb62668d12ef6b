// Package healretry classifies which server errors are worth exactly
// one retry after closing and re-preparing the offending CachedQuery:
// a stale prepared plan or a parameter-type mismatch against a cached
// plan. Everything else propagates to the caller unchanged.
//
// The predicate shape (IsRetryable func(error) bool) is adapted from
// github.com/Icinga/icinga-go-library's retry.IsRetryable, but this
// package does not import retry.WithBackoff: that helper loops with
// backoff until a timeout, while spec §4.5 calls for exactly one retry,
// no backoff, no multi-attempt loop.
package healretry

import (
	"errors"

	"github.com/riftdata/pgstmt/pkg/wire"
)

// SQLSTATEs a fresh Parse is expected to heal. 42P05
// (duplicate_prepared_statement) and 26000 (invalid_sql_statement_name)
// surface when the cached plan's server-side name has gone stale —
// typically because the connection was reset or the name was reused
// before a deferred Close caught up. 0A000 (feature_not_supported) is
// what the server returns when a previously prepared plan's inferred
// parameter types no longer match the literal being bound, which a
// fresh Parse resolves by re-inferring types from scratch.
var healableSQLStates = map[string]bool{
	"26000": true,
	"42P05": true,
	"0A000": true,
}

// SQLStateError is implemented by errors carrying a server SQLSTATE;
// pgstmt.Error (defined in the top-level package) satisfies it.
type SQLStateError interface {
	error
	SQLState() string
}

// WillHeal reports whether err is a SQLSTATE known to be fixed by
// closing and re-preparing the statement once.
func WillHeal(err error) bool {
	var se SQLStateError
	if errors.As(err, &se) {
		return healableSQLStates[se.SQLState()]
	}
	return false
}

// IsQueryCanceled reports whether err is the server's report of a
// successful cancellation (SQLSTATE 57014), distinct from a retryable
// failure.
func IsQueryCanceled(err error) bool {
	var se SQLStateError
	if errors.As(err, &se) {
		return se.SQLState() == wire.SQLStateQueryCanceled
	}
	return false
}
