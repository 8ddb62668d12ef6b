package protoengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/riftdata/pgstmt/internal/params"
	"github.com/riftdata/pgstmt/internal/resulthandler"
	"github.com/riftdata/pgstmt/internal/sessionparams"
	"github.com/riftdata/pgstmt/pkg/wire"
)

// Engine drives one connection's extended-query (and simple-query)
// state machine. All message I/O on a connection is serialized by mu,
// matching spec §5's "connection-level lock"; a Statement's own lock
// nests inside it.
type Engine struct {
	mu        sync.Mutex
	transport Transport
	session   *sessionparams.Map
	meta      ConnMeta
}

// New creates an Engine bound to transport. Call Startup before
// issuing any Execute.
func New(transport Transport, session *sessionparams.Map) *Engine {
	return &Engine{transport: transport, session: session}
}

// Meta returns the backend PID/secret key learned during Startup.
func (e *Engine) Meta() ConnMeta { return e.meta }

// Session returns the connection's session parameter map.
func (e *Engine) Session() *sessionparams.Map { return e.session }

// Prepare sends a standalone Parse for name naming a CachedQuery on the
// server, separate from any Bind/Execute round trip. Conn.prepareNamed
// calls this once a query crosses the cache's promotion threshold, so the *next*
// execution can address the name directly and omit Parse entirely
// (spec.md S5).
func (e *Engine) Prepare(ctx context.Context, name, sql string, paramTypeOIDs []uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.transport.Send(ctx, wire.MsgParse, wire.BuildParse(name, sql, paramTypeOIDs)); err != nil {
		return fmt.Errorf("protoengine: send parse: %w", err)
	}
	if err := e.transport.Send(ctx, wire.MsgSync, nil); err != nil {
		return fmt.Errorf("protoengine: send sync: %w", err)
	}
	_, err := e.drive(ctx, nil, "")
	return err
}

// Startup performs the v3 startup sequence and trust/cleartext
// authentication only: SCRAM and MD5 are out of scope (non-goal), so an
// Authentication request other than AuthOK or AuthCleartext (answered
// once with password) is reported as an error.
func (e *Engine) Startup(ctx context.Context, startupParams map[string]string, password string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg := wire.BuildStartupMessage(startupParams)
	if err := e.transport.Send(ctx, wire.MsgStartup, msg); err != nil {
		return fmt.Errorf("protoengine: send startup: %w", err)
	}

	for {
		msgType, payload, err := e.transport.Recv(ctx)
		if err != nil {
			return fmt.Errorf("protoengine: recv during startup: %w", err)
		}
		switch msgType {
		case wire.MsgAuthentication:
			buf := wire.NewReaderBuffer(payload)
			authType, _ := buf.ReadInt32()
			switch authType {
			case wire.AuthOK:
				// continue reading ParameterStatus/BackendKeyData/ReadyForQuery
			case wire.AuthCleartext:
				if err := e.transport.Send(ctx, wire.MsgPassword, wire.BuildPasswordMessage(password)); err != nil {
					return fmt.Errorf("protoengine: send password: %w", err)
				}
			default:
				return fmt.Errorf("protoengine: unsupported authentication method %d", authType)
			}
		case wire.MsgParameterStatus:
			name, value, err := wire.ParseParameterStatus(payload)
			if err != nil {
				return err
			}
			e.session.Set(name, value)
		case wire.MsgBackendKeyData:
			pid, secretKey, err := wire.ParseBackendKeyData(payload)
			if err != nil {
				return err
			}
			e.meta = ConnMeta{PID: pid, SecretKey: secretKey}
		case wire.MsgErrorResponse:
			fields, err := wire.ParseErrorFields(payload)
			if err != nil {
				return err
			}
			return &ServerError{Fields: fields}
		case wire.MsgReadyForQuery:
			return nil
		}
	}
}

// Request describes one extended-query execution.
type Request struct {
	StatementName string // "" for unnamed; Parse is sent only when NeedsParse is set
	PortalName    string
	SQL           string // Parse text; required when NeedsParse
	NeedsParse    bool
	ParamTypeOIDs []uint32
	Params        []params.Slot
	ResultFormats []int16
	RowLimit      int32 // 0 = unlimited; >0 enables cursor/PortalSuspended behavior
	Describe      bool
}

// Execute drives one Parse(optional)/Bind/Describe(optional)/Execute/Sync
// round trip, dispatching the reply stream to h. It returns a cursor
// handle when the server reports PortalSuspended (RowLimit>0 and more
// rows remain).
func (e *Engine) Execute(ctx context.Context, req Request, h resulthandler.Handler) (*resulthandler.CursorHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.NeedsParse {
		if err := e.transport.Send(ctx, wire.MsgParse, wire.BuildParse(req.StatementName, req.SQL, req.ParamTypeOIDs)); err != nil {
			return nil, fmt.Errorf("protoengine: send parse: %w", err)
		}
	}

	bound := make([]wire.BoundParam, len(req.Params))
	for i, p := range req.Params {
		bound[i] = wire.BoundParam{Value: p.Value, Format: p.Format}
	}
	if err := e.transport.Send(ctx, wire.MsgBind, wire.BuildBind(req.PortalName, req.StatementName, bound, req.ResultFormats)); err != nil {
		return nil, fmt.Errorf("protoengine: send bind: %w", err)
	}

	if req.Describe {
		if err := e.transport.Send(ctx, wire.MsgDescribe, wire.BuildDescribe(wire.TargetPortal, req.PortalName)); err != nil {
			return nil, fmt.Errorf("protoengine: send describe: %w", err)
		}
	}

	if err := e.transport.Send(ctx, wire.MsgExecute, wire.BuildExecute(req.PortalName, req.RowLimit)); err != nil {
		return nil, fmt.Errorf("protoengine: send execute: %w", err)
	}
	if err := e.transport.Send(ctx, wire.MsgSync, nil); err != nil {
		return nil, fmt.Errorf("protoengine: send sync: %w", err)
	}

	return e.drive(ctx, h, req.PortalName)
}

// Fetch issues a further Execute+Sync against an already-bound,
// suspended portal, for cursor-mode result sets.
func (e *Engine) Fetch(ctx context.Context, portalName string, rowLimit int32, h resulthandler.Handler) (*resulthandler.CursorHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.transport.Send(ctx, wire.MsgExecute, wire.BuildExecute(portalName, rowLimit)); err != nil {
		return nil, fmt.Errorf("protoengine: send execute: %w", err)
	}
	if err := e.transport.Send(ctx, wire.MsgSync, nil); err != nil {
		return nil, fmt.Errorf("protoengine: send sync: %w", err)
	}
	return e.drive(ctx, h, portalName)
}

// ExecuteSimple sends a simple-query Query(sql) message and dispatches
// every statement's reply (possibly several, for a multi-statement
// string) to h.
func (e *Engine) ExecuteSimple(ctx context.Context, sql string, h resulthandler.Handler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.transport.Send(ctx, wire.MsgQuery, wire.BuildQuery(sql)); err != nil {
		return fmt.Errorf("protoengine: send query: %w", err)
	}
	_, err := e.drive(ctx, h, "")
	return err
}

// DescribeStatement sends Parse(name, sql) (when sql is non-empty; pass
// "" to describe an already-parsed name)/Describe(Statement, name)/Sync
// and reports the parameter type OIDs and result row shape the server
// infers, without ever sending Bind/Execute — DESCRIBE_ONLY (spec §4.5),
// used to learn a statement's shape ahead of running it.
func (e *Engine) DescribeStatement(ctx context.Context, name, sql string, paramTypeOIDs []uint32) ([]uint32, []wire.FieldDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sql != "" {
		if err := e.transport.Send(ctx, wire.MsgParse, wire.BuildParse(name, sql, paramTypeOIDs)); err != nil {
			return nil, nil, fmt.Errorf("protoengine: send parse: %w", err)
		}
	}
	if err := e.transport.Send(ctx, wire.MsgDescribe, wire.BuildDescribe(wire.TargetStatement, name)); err != nil {
		return nil, nil, fmt.Errorf("protoengine: send describe: %w", err)
	}
	if err := e.transport.Send(ctx, wire.MsgSync, nil); err != nil {
		return nil, nil, fmt.Errorf("protoengine: send sync: %w", err)
	}

	var (
		paramOIDs []uint32
		fields    []wire.FieldDescription
		firstErr  error
	)
	for {
		msgType, payload, err := e.transport.Recv(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("protoengine: recv: %w", err)
		}
		switch msgType {
		case wire.MsgParseComplete:
			// acknowledgement carrying no payload worth surfacing

		case wire.MsgParameterDescription:
			paramOIDs, err = wire.ParseParameterDescription(payload)
			if err != nil {
				return nil, nil, err
			}

		case wire.MsgRowDescription:
			fields, err = wire.ParseRowDescription(payload)
			if err != nil {
				return nil, nil, err
			}

		case wire.MsgNoData:
			fields = nil

		case wire.MsgParameterStatus:
			n, v, err := wire.ParseParameterStatus(payload)
			if err != nil {
				return nil, nil, err
			}
			e.session.Set(n, v)

		case wire.MsgErrorResponse:
			f, err := wire.ParseErrorFields(payload)
			if err != nil {
				return nil, nil, err
			}
			if firstErr == nil {
				firstErr = &ServerError{Fields: f}
			}

		case wire.MsgReadyForQuery:
			return paramOIDs, fields, firstErr
		}
	}
}

// Close sends a Close message for a server-prepared statement name,
// used to tear down a name the query cache evicted.
func (e *Engine) Close(ctx context.Context, target byte, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.transport.Send(ctx, wire.MsgClose, wire.BuildClose(target, name)); err != nil {
		return fmt.Errorf("protoengine: send close: %w", err)
	}
	if err := e.transport.Send(ctx, wire.MsgSync, nil); err != nil {
		return fmt.Errorf("protoengine: send sync: %w", err)
	}
	_, err := e.drive(ctx, nil, "")
	return err
}

// Cancel dispatches an out-of-band CancelRequest on a fresh secondary
// connection, per spec §4.6: the main connection is never touched by
// the canceller. Call only after cancelstate.CancelState.Cancel()
// reported it won the race.
func (e *Engine) Cancel(ctx context.Context) error {
	aux, err := e.transport.OpenAuxiliary(ctx)
	if err != nil {
		return fmt.Errorf("protoengine: open auxiliary connection: %w", err)
	}
	defer aux.Close()
	return aux.SendCancelRequest(ctx, e.meta.PID, e.meta.SecretKey)
}

// drive reads the reply stream until ReadyForQuery, dispatching each
// frame to h (which may be nil for Close's Parse-less round trip) and
// applying ParameterStatus updates to the session map regardless of h.
func (e *Engine) drive(ctx context.Context, h resulthandler.Handler, portalName string) (*resulthandler.CursorHandle, error) {
	var (
		fields    []wire.FieldDescription
		rows      []resulthandler.Row
		firstErr  error
		cursor    *resulthandler.CursorHandle
	)

	for {
		msgType, payload, err := e.transport.Recv(ctx)
		if err != nil {
			return nil, fmt.Errorf("protoengine: recv: %w", err)
		}

		switch msgType {
		case wire.MsgParseComplete, wire.MsgBindComplete, wire.MsgCloseComplete:
			// acknowledgements carrying no payload worth surfacing

		case wire.MsgParameterDescription:
			// described parameter type OIDs; ignored here. DescribeStatement
			// reads them in its own loop; the executions driven through this
			// loop take their types from the rewriter/caller.

		case wire.MsgRowDescription:
			fields, err = wire.ParseRowDescription(payload)
			if err != nil {
				return nil, err
			}
			rows = nil

		case wire.MsgDataRow:
			values, err := wire.ParseDataRow(payload)
			if err != nil {
				return nil, err
			}
			rows = append(rows, resulthandler.Row(values))

		case wire.MsgCommandComplete:
			tag, err := wire.ParseCommandComplete(payload)
			if err != nil {
				return nil, err
			}
			if len(rows) > 0 || fields != nil {
				if h != nil {
					if err := h.OnRows(fields, rows, nil); err != nil && firstErr == nil {
						firstErr = err
					}
				}
				fields, rows = nil, nil
			}
			updateCount, insertOID := parseCommandTag(tag)
			if h != nil {
				if err := h.OnCommandStatus(tag, updateCount, insertOID); err != nil && firstErr == nil {
					firstErr = err
				}
			}

		case wire.MsgPortalSuspended:
			if len(rows) > 0 || fields != nil {
				if h != nil {
					if err := h.OnRows(fields, rows, &resulthandler.CursorHandle{PortalName: portalName, Suspended: true}); err != nil && firstErr == nil {
						firstErr = err
					}
				}
			}
			cursor = &resulthandler.CursorHandle{PortalName: portalName, Suspended: true}
			fields, rows = nil, nil

		case wire.MsgEmptyQueryResponse:
			if h != nil {
				if err := h.OnCommandStatus("", 0, 0); err != nil && firstErr == nil {
					firstErr = err
				}
			}

		case wire.MsgNoticeResponse:
			w, err := wire.ParseErrorFields(payload)
			if err != nil {
				return nil, err
			}
			if h != nil {
				if err := h.OnWarning(w); err != nil && firstErr == nil {
					firstErr = err
				}
			}

		case wire.MsgParameterStatus:
			name, value, err := wire.ParseParameterStatus(payload)
			if err != nil {
				return nil, err
			}
			e.session.Set(name, value)

		case wire.MsgErrorResponse:
			f, err := wire.ParseErrorFields(payload)
			if err != nil {
				return nil, err
			}
			serverErr := &ServerError{Fields: f}
			if h != nil {
				if err := h.OnError(serverErr); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			if firstErr == nil {
				firstErr = serverErr
			}

		case wire.MsgReadyForQuery:
			return cursor, firstErr
		}
	}
}

// parseCommandTag extracts the row/update count from a CommandComplete
// tag like "INSERT 0 1", "UPDATE 3", "DELETE 2", "SELECT 5". The OID
// field is only ever non-zero for single-row INSERTs under protocols
// old enough to report it; modern servers always send 0 and rely on
// RETURNING instead, which this engine's rewriter already arranges for
// generated-keys requests.
func parseCommandTag(tag string) (updateCount int64, insertOID uint32) {
	fields := splitSpaces(tag)
	switch len(fields) {
	case 2: // "UPDATE n", "DELETE n", "SELECT n"
		n, _ := parseInt(fields[1])
		return n, 0
	case 3: // "INSERT oid n"
		oid, _ := parseInt(fields[1])
		n, _ := parseInt(fields[2])
		return n, uint32(oid)
	default:
		return 0, 0
	}
}

func splitSpaces(s string) []string {
	var out []string
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

func parseInt(s string) (int64, error) {
	var n int64
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		n = n*10 + int64(s[i]-'0')
	}
	return n, nil
}
