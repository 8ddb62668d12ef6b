package protoengine

import "github.com/riftdata/pgstmt/pkg/wire"

// ServerError wraps an ErrorResponse's fields. It implements
// healretry.SQLStateError so the executor can classify it without this
// package importing the top-level pgstmt package (which imports
// protoengine, so the reverse would cycle); pgstmt.NewErrorFromFields
// converts the same wire.ErrorFields into the public pgstmt.Error type
// at the boundary where a result is handed back to the caller.
type ServerError struct {
	Fields wire.ErrorFields
}

func (e *ServerError) Error() string {
	return "pgstmt: " + e.Fields.Message + " (" + e.Fields.SQLState + ")"
}

func (e *ServerError) SQLState() string { return e.Fields.SQLState }
