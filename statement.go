package pgstmt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riftdata/pgstmt/internal/cache"
	"github.com/riftdata/pgstmt/internal/cancelstate"
	"github.com/riftdata/pgstmt/internal/errkind"
	"github.com/riftdata/pgstmt/internal/healretry"
	"github.com/riftdata/pgstmt/internal/params"
	"github.com/riftdata/pgstmt/internal/pglog"
	"github.com/riftdata/pgstmt/internal/protoengine"
	"github.com/riftdata/pgstmt/internal/resulthandler"
	"github.com/riftdata/pgstmt/internal/rewrite"
	"github.com/riftdata/pgstmt/pkg/wire"
)

// Statement is the user-facing executor (spec §4.5): it owns batch
// state, cancellation state, a timeout timer, the most recent result
// chain, and the generated-keys result, and orchestrates the rewriter,
// cache, protocol engine, and result handler to run it.
//
// A Statement is safe to share across goroutines only to the extent
// that its own lock allows: it never holds two concurrent in-flight
// executions (spec §3), and Cancel deliberately never takes that lock
// so it can interrupt one.
type Statement struct {
	conn *Conn
	mu   sync.Mutex

	cancel cancelstate.CancelState

	style                 rewrite.PlaceholderStyle
	escapeProcessing      bool
	useParameterized      bool
	generateKeysRequested bool
	generatedKeyColumns   []string

	prepareThreshold int64
	fetchSize        int
	maxRows          int
	timeout          time.Duration
	adaptiveFetch    bool
	rewriteBatched   bool
	autoCommit       bool
	closeOnCompletionArmed bool

	cached *cache.CachedQuery
	params *params.List

	batch []batchEntry

	resultChain   *resulthandler.ResultEnvelope
	current       *resulthandler.ResultEnvelope
	generatedKeys *resulthandler.ResultEnvelope

	// describedParamOIDs/describedFields hold the most recent
	// DescribeOnly result (Describe), captured outside the normal
	// result chain since a describe round trip never produces rows or
	// a command status.
	describedParamOIDs []uint32
	describedFields    []wire.FieldDescription

	closed     bool
	closeLatch int32 // single-shot CAS guard against ResultSet.Close -> Statement.Close reentrancy

	timerMu   sync.Mutex
	timer     *time.Timer
	timerGen  uint64
	timedOut  int32 // atomic; set by the timer callback before it cancels, so the
	                // eventual QUERY_CANCELED can be reported as STATEMENT_CANCELED_BY_TIMEOUT
}

// SetPlaceholderStyle selects which placeholder syntaxes subsequent
// rewrites recognize.
func (s *Statement) SetPlaceholderStyle(style rewrite.PlaceholderStyle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style = style
}

// SetEscapeProcessing toggles JDBC-style '??' -> '?' escaping.
func (s *Statement) SetEscapeProcessing(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escapeProcessing = enabled
}

// SetQueryTimeout bounds how long an execution may run before the
// Statement cancels it itself, surfacing STATEMENT_CANCELED_BY_TIMEOUT.
// Zero disables the timeout.
func (s *Statement) SetQueryTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// SetFetchSize sets the number of rows requested per Execute when
// cursor mode (ForwardCursor) is in effect. Zero requests all rows in
// one Execute.
func (s *Statement) SetFetchSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchSize = n
}

// SetMaxRows caps the number of rows a query result ever exposes to the
// caller. Zero means unlimited.
func (s *Statement) SetMaxRows(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxRows = n
}

// SetPrepareThreshold stores k on the Statement, a negative k as 1. The
// stored value is not read when executing: promotion to a server-side
// prepared statement follows the connection cache's threshold, taken
// from Config.PrepareThreshold, and the result transfer format is not
// changed by this call.
func (s *Statement) SetPrepareThreshold(k int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k < 0 {
		k = 1
	}
	s.prepareThreshold = k
}

// SetAdaptiveFetch toggles doubling the cursor fetch size after each
// Fetch round, up to a cap of 65536 rows (see drainCursor). Row sizes
// are not consulted.
func (s *Statement) SetAdaptiveFetch(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adaptiveFetch = enabled
}

// SetAutoCommit records whether this connection is in autocommit mode.
// It is not itself a transaction control call — transaction management
// is out of scope here — but the value feeds the ForwardCursor flag
// decision in runSubQuery (a cursor only makes sense inside an open
// transaction).
func (s *Statement) SetAutoCommit(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoCommit = enabled
}

// CloseOnCompletion arms the statement to close itself once every
// result set it owns has been closed.
func (s *Statement) CloseOnCompletion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeOnCompletionArmed = true
}

// Close releases the statement: it releases its borrowed CachedQuery
// (if any) back to the cache and marks the statement unusable. Close is
// idempotent; ResultSet.Close calling back into Close through
// closeOnCompletion is broken by closeLatch.
func (s *Statement) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closeLatch, 0, 1) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cached != nil {
		s.conn.cache.Release(s.cached)
		s.cached = nil
	}
	return nil
}

func (s *Statement) checkOpen() error {
	if s.closed {
		return errkind.New(errkind.StatementClosed, "statement is closed")
	}
	return nil
}

// maybeAutoClose implements closeOnCompletion's self-close once no
// owned result set remains open, called after the caller closes a
// result envelope.
func (s *Statement) maybeAutoClose() {
	if !s.closeOnCompletionArmed {
		return
	}
	for e := s.resultChain; e != nil; e = e.Next {
		if !e.Closed() {
			return
		}
	}
	go func() { _ = s.Close() }()
}

// --- unbound execution (executeText / executeUpdate / executeQuery) ---

// ExecuteText runs sql — possibly several ';'-separated sub-statements —
// with no bound parameters, and builds the result chain from every
// sub-statement's reply.
func (s *Statement) ExecuteText(ctx context.Context, sql string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	cq, err := s.borrowRewrite(sql, false, nil)
	if err != nil {
		return err
	}
	defer s.swapCached(cq)

	pl := params.New(cq.Rewritten.SlotCount, cq.Rewritten.NamedSlots)
	h := resulthandler.NewSingleResultHandler()
	if err := s.executeRewritten(ctx, cq, pl, 0, h); err != nil {
		return err
	}
	s.setChain(h.Chain())
	return nil
}

// ExecuteUpdate runs sql expecting only command-status events (no row
// sets) and returns the combined update count and, for a single-row
// INSERT, its OID.
func (s *Statement) ExecuteUpdate(ctx context.Context, sql string) (int64, uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, 0, err
	}

	cq, err := s.borrowRewrite(sql, false, nil)
	if err != nil {
		return 0, 0, err
	}
	defer s.swapCached(cq)

	pl := params.New(cq.Rewritten.SlotCount, cq.Rewritten.NamedSlots)
	h := resulthandler.NewUpdateHandler()
	if err := s.executeRewritten(ctx, cq, pl, NoResults, h); err != nil {
		return 0, 0, err
	}
	if h.Err != nil {
		return 0, 0, h.Err
	}
	return h.UpdateCount, h.InsertOID, nil
}

// ExecuteQuery runs sql expecting at least one row-returning result and
// returns the head of the result chain.
func (s *Statement) ExecuteQuery(ctx context.Context, sql string) (*resulthandler.ResultEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	cq, err := s.borrowRewrite(sql, false, nil)
	if err != nil {
		return nil, err
	}
	defer s.swapCached(cq)

	pl := params.New(cq.Rewritten.SlotCount, cq.Rewritten.NamedSlots)
	h := resulthandler.NewSingleResultHandler()
	if err := s.executeRewritten(ctx, cq, pl, 0, h); err != nil {
		return nil, err
	}
	s.setChain(h.Chain())
	if s.resultChain == nil || s.resultChain.Kind != resulthandler.RowsEnvelope {
		return nil, errkind.New(errkind.Unknown, "NO_DATA: query produced no row-returning result")
	}
	return s.resultChain, nil
}

// --- prepared execution ---

// Prepare rewrites sql and borrows (or creates) its CachedQuery,
// resetting the statement's bound parameter list to match. Bind values
// with Params() before calling ExecutePrepared or AddBatchParams.
func (s *Statement) Prepare(sql string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	cq, err := s.borrowRewrite(sql, s.generateKeysRequested, s.generatedKeyColumns)
	if err != nil {
		return err
	}
	s.swapCached(cq)
	s.params = params.New(cq.Rewritten.SlotCount, cq.Rewritten.NamedSlots)
	return nil
}

// Params returns the parameter list for the currently prepared query.
// Returns nil if Prepare has not been called.
func (s *Statement) Params() *params.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// RequestGeneratedKeys arms automatic RETURNING generation for the next
// Prepare call, per spec §4.5. columns, if non-empty, projects specific
// columns instead of "RETURNING *"; returning by column index rather
// than name is NOT_IMPLEMENTED, per spec §7.
func (s *Statement) RequestGeneratedKeys(columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateKeysRequested = true
	s.generatedKeyColumns = columns
}

// ExecutePrepared runs the currently bound CachedQuery with the
// parameters set via Params(). Generated keys, if requested, are
// captured separately and reachable via GetGeneratedKeys.
func (s *Statement) ExecutePrepared(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.cached == nil || s.params == nil {
		return errkind.New(errkind.StatementClosed, "ExecutePrepared called before Prepare")
	}
	if err := s.params.Validate(); err != nil {
		return err
	}

	var flags ExecFlags
	if s.generateKeysRequested {
		flags |= BothRowsAndStatus | NoBinaryTransfer
		h := resulthandler.NewGeneratedKeysHandler()
		if err := s.executeRewritten(ctx, s.cached, s.params, flags, h); err != nil {
			return err
		}
		keys, rest := h.Split()
		s.generatedKeys = keys
		s.setChain(rest)
		return nil
	}

	h := resulthandler.NewSingleResultHandler()
	if err := s.executeRewritten(ctx, s.cached, s.params, flags, h); err != nil {
		return err
	}
	s.setChain(h.Chain())
	return nil
}

// Describe sends Parse(if the statement isn't already server-prepared)/
// Describe(statement)/Sync and reports the parameter type OIDs and
// result-row shape the server infers for the currently prepared
// statement, without ever sending Bind or Execute (ExecFlags'
// DescribeOnly, spec §4.5) — useful for learning a statement's shape
// ahead of binding parameters against it. For a composite (multi
// sub-statement) CachedQuery, only the last sub-statement's shape is
// reported.
func (s *Statement) Describe(ctx context.Context) ([]uint32, []wire.FieldDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}
	if s.cached == nil || s.params == nil {
		return nil, nil, errkind.New(errkind.StatementClosed, "Describe called before Prepare")
	}

	h := resulthandler.NewSingleResultHandler()
	if err := s.executeRewritten(ctx, s.cached, s.params, DescribeOnly, h); err != nil {
		return nil, nil, err
	}
	return s.describedParamOIDs, s.describedFields, nil
}

// GetGeneratedKeys returns the generated-keys result captured by the
// most recent ExecutePrepared call, or an empty envelope if none was
// requested. ExecuteBatch does not capture generated keys.
func (s *Statement) GetGeneratedKeys() *resulthandler.ResultEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generatedKeys == nil {
		return &resulthandler.ResultEnvelope{Kind: resulthandler.RowsEnvelope}
	}
	return s.generatedKeys
}

// --- result chain navigation ---

func (s *Statement) setChain(head *resulthandler.ResultEnvelope) {
	s.resultChain = head
	s.current = head
}

// GetMoreResults advances the result chain, disposing of the current
// envelope according to mode, and reports whether another result is
// available.
func (s *Statement) GetMoreResults(mode MoreResultsMode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	switch mode {
	case CloseCurrent:
		if s.current != nil {
			s.current.Close()
		}
	case CloseAll:
		for e := s.resultChain; e != nil && e != s.current; e = e.Next {
			e.Close()
		}
		if s.current != nil {
			s.current.Close()
		}
	case KeepCurrent:
	}

	if s.current == nil {
		return false, nil
	}
	s.current = s.current.Next
	s.maybeAutoClose()
	return s.current != nil, nil
}

// --- cancellation ---

// Cancel requests cancellation of the Statement's in-flight execution,
// per spec §4.5/§4.6. It never takes s.mu, so it can interrupt an
// execution that is holding it.
func (s *Statement) Cancel() error {
	if !s.cancel.Cancel() {
		return nil // IDLE, or another Cancel already won the race
	}
	if err := s.conn.engine.Cancel(context.Background()); err != nil {
		pglog.Default().Warn("cancel request failed", "error", err)
		return err
	}
	return nil
}

// --- internals ---

func (s *Statement) borrowRewrite(sql string, generateKeys bool, generatedKeyColumns []string) (*cache.CachedQuery, error) {
	key := cache.NewCacheKey(sql, s.style, s.escapeProcessing, s.useParameterized, generatedKeyColumns)
	return s.conn.cache.Borrow(key, func() (*rewrite.Result, error) {
		return rewrite.Rewrite(sql, rewrite.Options{
			Style:                  s.style,
			EnableEscapeProcessing: s.escapeProcessing,
			UseParameterized:       s.useParameterized,
			GenerateKeys:           generateKeys,
			GeneratedKeyColumns:    generatedKeyColumns,
		})
	})
}

// swapCached releases any previously borrowed CachedQuery and adopts cq
// as the statement's current one.
func (s *Statement) swapCached(cq *cache.CachedQuery) {
	if s.cached != nil && s.cached != cq {
		s.conn.cache.Release(s.cached)
	}
	s.cached = cq
}

// isComposite reports whether cq spans more than one semicolon-delimited
// sub-statement, which disables the heal-on-retry policy (spec §4.5).
func isComposite(cq *cache.CachedQuery) bool {
	return len(cq.Rewritten.SubQueries) > 1
}

// executeRewritten drives every sub-statement of cq in order against h,
// handling named/unnamed promotion and the single heal-on-retry for
// non-composite queries. It stops at the first sub-statement error: the
// server's transaction is left aborted, so later sub-statements would
// fail regardless.
func (s *Statement) executeRewritten(ctx context.Context, cq *cache.CachedQuery, pl *params.List, flags ExecFlags, h resulthandler.Handler) error {
	if !s.cancel.StartExecute() {
		return errkind.New(errkind.StatementClosed, "a prior execution is still in flight on this statement")
	}
	s.armTimeout()
	defer func() {
		s.disarmTimeout()
		// CancelAck is a no-op unless a Cancel() actually won the
		// IN_QUERY->CANCELING race: that covers both the normal case
		// (the server's QUERY_CANCELED was already recognized above)
		// and the race spec §5 describes, where the cancel lost to the
		// query completing normally and must still be absorbed so the
		// ExecuteDone below doesn't block forever waiting for an ack
		// that otherwise never comes.
		s.cancel.CancelAck()
		s.cancel.ExecuteDone()
	}()

	composite := isComposite(cq)

	for i := range cq.Rewritten.SubQueries {
		sq := &cq.Rewritten.SubQueries[i]
		if sq.IsEmpty {
			continue
		}

		err := s.runSubQuery(ctx, cq, sq, pl, flags, h)
		if err != nil && !composite {
			if healretry.WillHeal(err) {
				if name := cq.ClearPrepared(); name != "" {
					_ = s.conn.engine.Close(ctx, wire.TargetStatement, name)
				}
				err = s.runSubQuery(ctx, cq, sq, pl, flags, h)
			}
		}
		if err != nil {
			if healretry.IsQueryCanceled(err) {
				return s.canceledError()
			}
			return toPublicError(err)
		}
	}
	return nil
}

// canceledError reports QUERY_CANCELED, or STATEMENT_CANCELED_BY_TIMEOUT
// when the cancellation now completing was the query-timeout timer's
// doing rather than an explicit caller Cancel() (spec §7, §8 property 7).
func (s *Statement) canceledError() error {
	if atomic.LoadInt32(&s.timedOut) != 0 {
		return errkind.New(errkind.Timeout, "query canceled by timeout")
	}
	return errkind.New(errkind.Canceled, "query canceled")
}

// toPublicError converts the engine's internal server-error type into
// the public pgstmt.Error so callers can match SQLSTATEs without
// reaching into an internal package. Client-side errors (errkind.Error)
// and anything else pass through unchanged.
func toPublicError(err error) error {
	if se, ok := err.(*protoengine.ServerError); ok {
		return NewErrorFromFields(se.Fields)
	}
	return err
}

// runSubQuery executes one sub-statement, choosing the named or
// unnamed path and handling promotion once the cache's execution
// threshold is crossed.
func (s *Statement) runSubQuery(ctx context.Context, cq *cache.CachedQuery, sq *rewrite.SubQuery, pl *params.List, flags ExecFlags, h resulthandler.Handler) error {
	if flags.has(DescribeOnly) {
		oids, fields, err := s.describeSubQuery(ctx, cq, sq, pl)
		if err != nil {
			return err
		}
		s.describedParamOIDs = oids
		s.describedFields = fields
		return nil
	}

	if !cq.Prepared && s.wantsSimpleQuery(flags) {
		if sql, ok := inlineParams(sq.SQL, pl); ok {
			return s.conn.engine.ExecuteSimple(ctx, sql, h)
		}
	}

	oids := paramOIDs(pl)

	req := protoengine.Request{
		PortalName:    "",
		ParamTypeOIDs: oids,
		Params:        pl.Slots(),
		ResultFormats: resultFormats(flags),
		Describe:      flags.has(ForceDescribePortal),
	}

	if cq.Prepared {
		req.StatementName = cq.PreparedName
		req.NeedsParse = false
	} else {
		req.StatementName = ""
		req.NeedsParse = true
		req.SQL = sq.SQL
	}

	useCursor := flags.has(ForwardCursor) && s.fetchSize > 0 && !s.autoCommit
	if useCursor {
		req.RowLimit = int32(s.fetchSize)
	} else if s.maxRows > 0 {
		req.RowLimit = int32(s.maxRows)
	}

	cursor, err := s.conn.engine.Execute(ctx, req, h)
	if err != nil {
		return err
	}

	if cursor != nil && cursor.Suspended && useCursor {
		if err := s.drainCursor(ctx, cursor, h); err != nil {
			return err
		}
	}

	if !flags.has(Oneshot) && !cq.Prepared {
		if s.conn.cache.RecordExecution(cq) {
			if err := s.conn.prepareNamed(ctx, cq, sq.SQL, oids); err != nil {
				pglog.Default().Warn("promotion to server-prepared statement failed", "error", err)
			}
		}
	}
	return nil
}

// describeSubQuery issues the DescribeOnly round trip runSubQuery routes
// to when its flags carry that bit: Describe(statement) against either
// the server-prepared name or a fresh unnamed Parse, with no Bind or
// Execute ever sent.
func (s *Statement) describeSubQuery(ctx context.Context, cq *cache.CachedQuery, sq *rewrite.SubQuery, pl *params.List) ([]uint32, []wire.FieldDescription, error) {
	if cq.Prepared {
		return s.conn.engine.DescribeStatement(ctx, cq.PreparedName, "", nil)
	}
	return s.conn.engine.DescribeStatement(ctx, "", sq.SQL, paramOIDs(pl))
}

// wantsSimpleQuery reports whether this execution should route through
// the simple Query message (ExecuteAsSimple, or Config.PreferQueryMode
// set to "simple") rather than the extended Parse/Bind/Execute sequence.
func (s *Statement) wantsSimpleQuery(flags ExecFlags) bool {
	return flags.has(ExecuteAsSimple) || s.conn.cfg.PreferQueryMode == PreferQueryModeSimple
}

// drainCursor fetches the remainder of a suspended portal, doubling the
// fetch size each round when adaptiveFetch is set, up to a cap.
func (s *Statement) drainCursor(ctx context.Context, cursor *resulthandler.CursorHandle, h resulthandler.Handler) error {
	const adaptiveCap = 1 << 16
	size := s.fetchSize
	for cursor != nil && cursor.Suspended {
		next, err := s.conn.engine.Fetch(ctx, cursor.PortalName, int32(size), h)
		if err != nil {
			return err
		}
		cursor = next
		if s.adaptiveFetch && size < adaptiveCap {
			size *= 2
			if size > adaptiveCap {
				size = adaptiveCap
			}
		}
	}
	return nil
}

func paramOIDs(pl *params.List) []uint32 {
	slots := pl.Slots()
	out := make([]uint32, len(slots))
	for i, sl := range slots {
		out[i] = sl.OID
	}
	return out
}

func resultFormats(flags ExecFlags) []int16 {
	if flags.has(NoBinaryTransfer) {
		return []int16{wire.FormatText}
	}
	return []int16{wire.FormatBinary}
}

// --- timeout ---

func (s *Statement) armTimeout() {
	atomic.StoreInt32(&s.timedOut, 0)
	if s.timeout <= 0 {
		return
	}
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(s.timeout, func() {
		s.timerMu.Lock()
		current := s.timerGen == gen
		s.timerMu.Unlock()
		if !current {
			return // execution already completed; this firing is stale
		}
		if s.cancel.Cancel() {
			atomic.StoreInt32(&s.timedOut, 1)
			_ = s.conn.engine.Cancel(context.Background())
		}
	})
}

func (s *Statement) disarmTimeout() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.timerGen++ // invalidates any in-flight timer firing
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
