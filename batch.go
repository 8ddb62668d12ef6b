package pgstmt

import (
	"context"
	"fmt"

	"github.com/riftdata/pgstmt/internal/cache"
	"github.com/riftdata/pgstmt/internal/errkind"
	"github.com/riftdata/pgstmt/internal/healretry"
	"github.com/riftdata/pgstmt/internal/params"
	"github.com/riftdata/pgstmt/internal/pglog"
	"github.com/riftdata/pgstmt/internal/protoengine"
	"github.com/riftdata/pgstmt/internal/resulthandler"
	"github.com/riftdata/pgstmt/internal/rewrite"
	"github.com/riftdata/pgstmt/pkg/wire"
)

// maxBindParameters is the server's hard limit on the number of
// parameters a single Bind may carry (int16 count field); batch merge
// groups are capped so the spliced VALUES list never needs more.
const maxBindParameters = 32767

// batchAutoSavepoint is the SAVEPOINT name ExecuteBatch issues when
// autoSave guards an entry, reused by name across entries: a successful
// entry releases it before the next SAVEPOINT replaces it, so only a
// failed entry's savepoint can outlive its ROLLBACK TO, and only until
// the surrounding transaction ends.
const batchAutoSavepoint = "pgstmt_autosave"

// batchEntry is one queued unit of work added by AddBatchSQL or
// AddBatchParams: a borrowed CachedQuery plus the parameters bound
// against it. Entries from AddBatchSQL carry an empty (already-valid)
// params list since raw SQL has nothing to bind.
type batchEntry struct {
	cq     *cache.CachedQuery
	params *params.List
}

// BatchUpdateError reports a batch execution that failed partway
// through, mirroring java.sql.BatchUpdateException: UpdateCounts holds
// one entry per queued batch item (resulthandler.ExecuteFailed for an
// entry that failed or never ran because an earlier one aborted the
// transaction), and Err is the first failure.
type BatchUpdateError struct {
	UpdateCounts      []int64
	FirstFailureIndex int
	Err               error
}

func (e *BatchUpdateError) Error() string {
	return fmt.Sprintf("pgstmt: batch entry %d failed: %v", e.FirstFailureIndex, e.Err)
}

func (e *BatchUpdateError) Unwrap() error { return e.Err }

// AddBatchSQL queues sql as a standalone batch entry, the
// unparameterized java.sql.Statement.addBatch(String) shape. It is
// rewritten (and cached) immediately so a syntax error surfaces at
// queue time rather than at ExecuteBatch.
func (s *Statement) AddBatchSQL(sql string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	cq, err := s.borrowRewrite(sql, false, nil)
	if err != nil {
		return err
	}
	pl := params.New(cq.Rewritten.SlotCount, cq.Rewritten.NamedSlots)
	s.batch = append(s.batch, batchEntry{cq: cq, params: pl})
	return nil
}

// AddBatchParams snapshots the parameters currently bound via Params()
// against the statement most recently set up with Prepare, queuing them
// as one prepared batch entry. The caller is free to keep mutating
// Params() afterward to build the next entry; AddBatchParams clones.
func (s *Statement) AddBatchParams() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.cached == nil || s.params == nil {
		return errkind.New(errkind.StatementClosed, "AddBatchParams called before Prepare")
	}
	if err := s.params.Validate(); err != nil {
		return err
	}

	// Re-borrow independently of s.cached: a later Prepare call may swap
	// s.cached out and release its borrow while this entry is still
	// queued. The entry already exists, so the build closure never runs.
	cq, err := s.conn.cache.Borrow(s.cached.Key, func() (*rewrite.Result, error) {
		return s.cached.Rewritten, nil
	})
	if err != nil {
		return err
	}
	s.batch = append(s.batch, batchEntry{cq: cq, params: s.params.Clone()})
	return nil
}

// ClearBatch discards every queued batch entry without executing them,
// releasing each entry's borrow on its CachedQuery.
func (s *Statement) ClearBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.batch {
		s.conn.cache.Release(e.cq)
	}
	s.batch = nil
}

// ExecuteBatch runs every queued entry in order, splicing consecutive
// rewritable-INSERT entries sharing the same CachedQuery into merged
// Binds when rewriteBatchedInserts is enabled (spec §4.5). By default
// (Config.AutoSave "never") it stops at the first failing entry,
// matching java.sql.Statement.executeBatch's default (non-continue-on-
// error) behavior: the server's transaction is left aborted, so later
// entries could not have succeeded anyway. With AutoSave set to
// "conservative" or "always" and autoCommit off, each guarded entry
// runs under a SAVEPOINT so a failure rolls back only that entry and
// the remaining ones still run.
func (s *Statement) ExecuteBatch(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(s.batch) == 0 {
		return nil, nil
	}

	batch := s.batch
	s.batch = nil

	if !s.cancel.StartExecute() {
		return nil, errkind.New(errkind.StatementClosed, "a prior execution is still in flight on this statement")
	}
	s.armTimeout()
	defer func() {
		s.disarmTimeout()
		// See executeRewritten's matching comment: absorbs both a
		// recognized QUERY_CANCELED and a Cancel() that lost the race
		// to normal completion, so ExecuteDone never blocks forever.
		s.cancel.CancelAck()
		s.cancel.ExecuteDone()
		for _, e := range batch {
			s.conn.cache.Release(e.cq)
		}
	}()

	bh := resulthandler.NewBatchHandler(len(batch))

	var firstErr error
	i := 0
	for i < len(batch) {
		groupEnd := s.mergeGroupEnd(batch, i)
		bh.NoteMergedGroup(i, groupEnd)

		guarded := s.autoSaveEnabled(i, len(batch))
		if guarded {
			if err := s.setAutoSavepoint(ctx); err != nil {
				// Couldn't even establish the savepoint; fall back to the
				// unguarded, abort-the-rest behavior below.
				guarded = false
			}
		}

		var err error
		if groupEnd-i > 1 {
			err = s.executeMergedGroup(ctx, batch[i:groupEnd], bh)
		} else {
			err = s.executeBatchEntry(ctx, batch[i], bh)
		}

		if err != nil {
			if healretry.IsQueryCanceled(err) {
				err = s.canceledError()
			} else {
				err = toPublicError(err)
			}
			for j := i; j < groupEnd; j++ {
				bh.UpdateCounts[j] = resulthandler.ExecuteFailed
			}
			if bh.FirstFailureIndex == -1 {
				bh.FirstFailureIndex = i
			}
			if firstErr == nil {
				firstErr = err
			}

			// autoSave=never (or autoCommit), or the rollback itself
			// failed: the transaction is left aborted, so every later
			// entry could not have succeeded anyway (spec §4.5).
			if !guarded || s.rollbackToAutoSavepoint(ctx) != nil {
				for j := groupEnd; j < len(batch); j++ {
					bh.UpdateCounts[j] = resulthandler.ExecuteFailed
				}
				return bh.UpdateCounts, &BatchUpdateError{
					UpdateCounts:      bh.UpdateCounts,
					FirstFailureIndex: bh.FirstFailureIndex,
					Err:               firstErr,
				}
			}
		} else if guarded {
			if err := s.releaseAutoSavepoint(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		i = groupEnd
	}

	if firstErr != nil {
		return bh.UpdateCounts, &BatchUpdateError{
			UpdateCounts:      bh.UpdateCounts,
			FirstFailureIndex: bh.FirstFailureIndex,
			Err:               firstErr,
		}
	}
	return bh.UpdateCounts, nil
}

// autoSaveEnabled reports whether entry i of an n-entry batch should run
// under a SAVEPOINT (Config.AutoSave, spec §4.5). Savepoints only matter
// when entries share one open transaction: with autoCommit on, each
// entry already runs (and fails) in its own implicit transaction, so a
// failure can't abort anything downstream and a savepoint buys nothing.
// AutoSaveAlways guards every entry; AutoSaveConservative skips the
// batch's last entry, since nothing after it needs protecting.
func (s *Statement) autoSaveEnabled(i, n int) bool {
	if s.autoCommit {
		return false
	}
	switch s.conn.cfg.AutoSave {
	case AutoSaveAlways:
		return true
	case AutoSaveConservative:
		return i < n-1
	default:
		return false
	}
}

func (s *Statement) setAutoSavepoint(ctx context.Context) error {
	return s.conn.engine.ExecuteSimple(ctx, "SAVEPOINT "+batchAutoSavepoint, resulthandler.NewUpdateHandler())
}

func (s *Statement) rollbackToAutoSavepoint(ctx context.Context) error {
	return s.conn.engine.ExecuteSimple(ctx, "ROLLBACK TO SAVEPOINT "+batchAutoSavepoint, resulthandler.NewUpdateHandler())
}

func (s *Statement) releaseAutoSavepoint(ctx context.Context) error {
	return s.conn.engine.ExecuteSimple(ctx, "RELEASE SAVEPOINT "+batchAutoSavepoint, resulthandler.NewUpdateHandler())
}

// mergeGroupEnd returns the exclusive end index of the run of entries
// starting at i that can be spliced into one merged Bind: consecutive
// entries backed by the same CachedQuery whose sole
// sub-statement is a rewritable INSERT, bounded so the merged
// parameter count never exceeds maxBindParameters.
func (s *Statement) mergeGroupEnd(batch []batchEntry, i int) int {
	first := batch[i]
	if !s.rewriteBatched || !isMergeable(first) {
		return i + 1
	}
	nParams := first.cq.Rewritten.SlotCount
	maxGroup := len(batch)
	if nParams > 0 {
		maxGroup = maxBindParameters / nParams
		if maxGroup < 1 {
			maxGroup = 1
		}
	}

	j := i + 1
	for j < len(batch) && j-i < maxGroup {
		e := batch[j]
		if !isMergeable(e) || e.cq != first.cq {
			break
		}
		j++
	}
	return j
}

func isMergeable(e batchEntry) bool {
	if e.cq == nil || e.params == nil {
		return false
	}
	sqs := e.cq.Rewritten.SubQueries
	return len(sqs) == 1 && sqs[0].IsRewritableInsert
}

// executeMergedGroup splices group's VALUES tuples into one Bind whose
// parameter list is the concatenation of every entry's bound slots, in
// order. A merged group is always sent unnamed: its SQL text is unique
// to this group's size, so there is nothing worth promoting to a
// server-prepared name.
func (s *Statement) executeMergedGroup(ctx context.Context, group []batchEntry, bh *resulthandler.BatchHandler) error {
	first := group[0]
	sq := first.cq.Rewritten.SubQueries[0]
	nParams := first.cq.Rewritten.SlotCount

	sqlText := sq.InsertPrefix + sq.ValuesClause
	var allSlots []params.Slot
	var allOIDs []uint32
	for idx, e := range group {
		if idx > 0 {
			sqlText += ", " + rewrite.RenumberValuesClause(sq.ValuesClause, nParams, idx)
		}
		slots := e.params.Slots()
		allSlots = append(allSlots, slots...)
		for _, sl := range slots {
			allOIDs = append(allOIDs, sl.OID)
		}
	}

	req := protoengine.Request{
		SQL:           sqlText,
		NeedsParse:    true,
		ParamTypeOIDs: allOIDs,
		Params:        allSlots,
		ResultFormats: []int16{wire.FormatText},
	}
	_, err := s.conn.engine.Execute(ctx, req, bh)
	return err
}

// executeBatchEntry runs one non-merged batch entry: it reuses (or
// promotes, exactly like runSubQuery) its CachedQuery's server-prepared
// name, with the same single heal-on-retry for a stale plan.
func (s *Statement) executeBatchEntry(ctx context.Context, e batchEntry, bh *resulthandler.BatchHandler) error {
	cq := e.cq
	oids := paramOIDs(e.params)
	composite := isComposite(cq)

	run := func() error {
		for i := range cq.Rewritten.SubQueries {
			sq := &cq.Rewritten.SubQueries[i]
			if sq.IsEmpty {
				continue
			}
			req := protoengine.Request{
				ParamTypeOIDs: oids,
				Params:        e.params.Slots(),
				ResultFormats: []int16{wire.FormatText},
			}
			if cq.Prepared {
				req.StatementName = cq.PreparedName
			} else {
				req.NeedsParse = true
				req.SQL = sq.SQL
			}
			if _, err := s.conn.engine.Execute(ctx, req, bh); err != nil {
				return err
			}
			if !cq.Prepared {
				if s.conn.cache.RecordExecution(cq) {
					if err := s.conn.prepareNamed(ctx, cq, sq.SQL, oids); err != nil {
						pglog.Default().Warn("promotion to server-prepared statement failed", "error", err)
					}
				}
			}
		}
		return nil
	}

	err := run()
	if err != nil && !composite && healretry.WillHeal(err) {
		if name := cq.ClearPrepared(); name != "" {
			_ = s.conn.engine.Close(ctx, wire.TargetStatement, name)
		}
		err = run()
	}
	return err
}
