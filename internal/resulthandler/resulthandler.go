// Package resulthandler defines the sink the protocol engine calls into
// as it reads a reply stream, and the handler variants Statement uses
// for its different execution shapes (spec §4.4).
package resulthandler

import "github.com/riftdata/pgstmt/pkg/wire"

// Row is one DataRow's column values, still in wire-encoded (text or
// binary) form; decoding to Go types is the caller's responsibility.
type Row [][]byte

// CursorHandle names a suspended portal so the caller can fetch
// subsequent batches with further Execute+Sync.
type CursorHandle struct {
	PortalName string
	Suspended  bool
}

// Handler is the four-event sink the protocol engine drives.
type Handler interface {
	OnRows(fields []wire.FieldDescription, rows []Row, cursor *CursorHandle) error
	OnCommandStatus(tag string, updateCount int64, insertOID uint32) error
	OnWarning(w wire.ErrorFields) error
	OnError(err error) error
}

// EnvelopeKind distinguishes the two shapes a ResultEnvelope can hold.
type EnvelopeKind int

const (
	RowsEnvelope EnvelopeKind = iota
	StatusEnvelope
)

// ResultEnvelope is one node of the linked result chain a Statement
// exposes to its caller.
type ResultEnvelope struct {
	Kind EnvelopeKind

	Fields []wire.FieldDescription
	Rows   []Row
	Cursor *CursorHandle

	UpdateCount int64
	InsertOID   uint32

	Next   *ResultEnvelope
	closed bool
}

// Closed reports whether the caller has already closed this envelope.
func (e *ResultEnvelope) Closed() bool { return e.closed }

// Close marks the envelope closed. Idempotent.
func (e *ResultEnvelope) Close() { e.closed = true }

// chain accumulates ResultEnvelope nodes in arrival order; both
// SingleResultHandler and GeneratedKeysHandler embed it.
type chain struct {
	head, tail *ResultEnvelope
}

func (c *chain) append(e *ResultEnvelope) {
	if c.head == nil {
		c.head = e
		c.tail = e
		return
	}
	c.tail.Next = e
	c.tail = e
}

// SingleResultHandler accumulates every row set and command status into
// one chain, for plain executeQuery/executeText calls.
type SingleResultHandler struct {
	chain
	Warnings []wire.ErrorFields
	Err      error
}

func NewSingleResultHandler() *SingleResultHandler { return &SingleResultHandler{} }

func (h *SingleResultHandler) OnRows(fields []wire.FieldDescription, rows []Row, cursor *CursorHandle) error {
	h.append(&ResultEnvelope{Kind: RowsEnvelope, Fields: fields, Rows: rows, Cursor: cursor})
	return nil
}

func (h *SingleResultHandler) OnCommandStatus(tag string, updateCount int64, insertOID uint32) error {
	h.append(&ResultEnvelope{Kind: StatusEnvelope, UpdateCount: updateCount, InsertOID: insertOID})
	return nil
}

func (h *SingleResultHandler) OnWarning(w wire.ErrorFields) error {
	h.Warnings = append(h.Warnings, w)
	return nil
}

func (h *SingleResultHandler) OnError(err error) error {
	h.Err = err
	return nil
}

// Chain returns the head of the accumulated result chain.
func (h *SingleResultHandler) Chain() *ResultEnvelope { return h.head }

// UpdateHandler is for executeUpdate calls, which expect exactly one
// command-status event and no row sets.
type UpdateHandler struct {
	UpdateCount int64
	InsertOID   uint32
	Warnings    []wire.ErrorFields
	Err         error
	gotStatus   bool
}

func NewUpdateHandler() *UpdateHandler { return &UpdateHandler{} }

func (h *UpdateHandler) OnRows(fields []wire.FieldDescription, rows []Row, cursor *CursorHandle) error {
	// A SELECT where an update was expected; surface it as an error
	// rather than silently discarding rows the caller asked nothing for.
	h.Err = &unexpectedRowsError{fieldCount: len(fields), rowCount: len(rows)}
	return h.Err
}

func (h *UpdateHandler) OnCommandStatus(tag string, updateCount int64, insertOID uint32) error {
	h.UpdateCount = updateCount
	h.InsertOID = insertOID
	h.gotStatus = true
	return nil
}

func (h *UpdateHandler) OnWarning(w wire.ErrorFields) error {
	h.Warnings = append(h.Warnings, w)
	return nil
}

func (h *UpdateHandler) OnError(err error) error {
	h.Err = err
	return nil
}

type unexpectedRowsError struct {
	fieldCount, rowCount int
}

func (e *unexpectedRowsError) Error() string {
	return "executeUpdate received a row-returning result"
}

// GeneratedKeysHandler behaves like SingleResultHandler but splits off
// the first envelope as the generated-keys result, per spec §4.5: "the
// first result envelope is captured as generatedKeys and removed from
// the user-visible result chain."
type GeneratedKeysHandler struct {
	SingleResultHandler
}

func NewGeneratedKeysHandler() *GeneratedKeysHandler { return &GeneratedKeysHandler{} }

// Split returns (generatedKeys, rest): the first envelope on its own,
// and the remainder of the chain with that first node detached.
func (h *GeneratedKeysHandler) Split() (generatedKeys *ResultEnvelope, rest *ResultEnvelope) {
	if h.head == nil {
		return nil, nil
	}
	generatedKeys = h.head
	rest = h.head.Next
	generatedKeys.Next = nil
	return generatedKeys, rest
}
