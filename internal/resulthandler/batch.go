package resulthandler

import "github.com/riftdata/pgstmt/pkg/wire"

// Sentinel update counts for batch entries, matching the
// SUCCESS_NO_INFO / EXECUTE_FAILED convention every JDBC-family driver
// uses for java.sql.Statement.executeBatch results.
const (
	SuccessNoInfo int64 = -2
	ExecuteFailed int64 = -3
)

// BatchHandler tracks per-entry command status across a batch
// execution, building the equivalent of a BatchUpdateException: the
// per-entry update counts and the index of the first failure.
type BatchHandler struct {
	UpdateCounts      []int64
	Errors            []error
	FirstFailureIndex int

	current    int
	groupStart int // first entry of the group current belongs to
}

// NewBatchHandler creates a handler sized for n batch entries.
func NewBatchHandler(n int) *BatchHandler {
	counts := make([]int64, n)
	for i := range counts {
		counts[i] = SuccessNoInfo
	}
	return &BatchHandler{
		UpdateCounts:      counts,
		Errors:            make([]error, n),
		FirstFailureIndex: -1,
	}
}

// AdvanceEntry moves the handler to the next batch entry, as a group of
// one; call it between executing consecutive unmerged entries. Merged
// groups are positioned with NoteMergedGroup instead.
func (h *BatchHandler) AdvanceEntry() {
	h.current++
	h.groupStart = h.current
}

// NoteMergedGroup records that a run of entries [from, to) was executed
// together in one splice; since the server reports only a single
// command tag for the whole group, each entry in the range is marked
// SUCCESS_NO_INFO unless the group later fails.
func (h *BatchHandler) NoteMergedGroup(from, to int) {
	h.groupStart = from
	h.current = from
	for i := from; i < to && i < len(h.UpdateCounts); i++ {
		h.UpdateCounts[i] = SuccessNoInfo
	}
	h.current = to - 1
}

func (h *BatchHandler) OnRows(fields []wire.FieldDescription, rows []Row, cursor *CursorHandle) error {
	return nil
}

func (h *BatchHandler) OnCommandStatus(tag string, updateCount int64, insertOID uint32) error {
	if h.current != h.groupStart {
		return nil // a merged group's single tag is not attributed to any one entry
	}
	if h.current >= 0 && h.current < len(h.UpdateCounts) {
		h.UpdateCounts[h.current] = updateCount
	}
	return nil
}

func (h *BatchHandler) OnWarning(w wire.ErrorFields) error { return nil }

// OnError marks the current entry (and, for a merged group, every entry
// in it) as failed. The first call sets FirstFailureIndex.
func (h *BatchHandler) OnError(err error) error {
	for i := h.groupStart; i <= h.current; i++ {
		if i >= 0 && i < len(h.UpdateCounts) {
			h.UpdateCounts[i] = ExecuteFailed
			h.Errors[i] = err
		}
	}
	if h.FirstFailureIndex == -1 {
		h.FirstFailureIndex = h.groupStart
	}
	return nil
}
