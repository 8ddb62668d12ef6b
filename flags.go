package pgstmt

// ExecFlags is the bitmask of per-execution hints Statement passes down
// to the protocol engine, spec §4.5.
type ExecFlags uint16

const (
	// NoResults tells the engine the caller discards any row set
	// (executeUpdate-shaped calls).
	NoResults ExecFlags = 1 << iota
	// Oneshot skips cache promotion bookkeeping for this execution even
	// if the CachedQuery would otherwise cross its threshold.
	Oneshot
	// ForwardCursor requests portal-suspend/resume fetching: used when
	// fetchSize > 0, autocommit is off, and the result set is not
	// scrollable/holdable.
	ForwardCursor
	// BothRowsAndStatus is set when generated keys are requested: the
	// handler must retain both the row set and the command status for
	// the same sub-statement.
	BothRowsAndStatus
	// NoBinaryTransfer forces text-format results, needed for updateable
	// result sets and generated-keys batches.
	NoBinaryTransfer
	// ExecuteAsSimple routes the call through the simple Query message
	// instead of the extended-query sequence.
	ExecuteAsSimple
	// DescribeOnly sends Describe without Execute, to learn result
	// shape without running the statement.
	DescribeOnly
	// ForceDescribePortal always issues a Describe(portal) even when the
	// statement's shape is already known from a prior Describe.
	ForceDescribePortal
)

func (f ExecFlags) has(bit ExecFlags) bool { return f&bit != 0 }

// MoreResultsMode selects how GetMoreResults disposes of the current
// result envelope before advancing the chain.
type MoreResultsMode int

const (
	// CloseCurrent closes only the current result envelope.
	CloseCurrent MoreResultsMode = iota
	// KeepCurrent leaves the current result envelope open.
	KeepCurrent
	// CloseAll closes every result envelope from the head of the result
	// chain up to and including the current one.
	CloseAll
)
