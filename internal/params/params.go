// Package params implements the bound-parameter list: one value per
// rewritten slot, each carrying a type OID and a text/binary encoding
// flag, set either positionally or (for NAMED-style rewrites) by name
// through the rewriter's name-to-slot map.
package params

import (
	"fmt"

	"github.com/riftdata/pgstmt/internal/errkind"
)

// Format mirrors the wire protocol's per-parameter format code.
type Format = int16

const (
	FormatText   Format = 0
	FormatBinary Format = 1
)

// Slot is one bound (or not-yet-bound) parameter.
type Slot struct {
	Value []byte
	OID   uint32
	Format Format
	Bound bool
}

// List is the ordered set of parameter slots for one execution. Index 0
// is unused; slots are 1-based to match native '$n' numbering.
type List struct {
	slots      []Slot // len == n+1
	namedSlots map[string]int
}

// New creates a List with n slots (1-based) and an optional name-to-slot
// map carried over from the rewrite that produced n.
func New(n int, namedSlots map[string]int) *List {
	return &List{
		slots:      make([]Slot, n+1),
		namedSlots: namedSlots,
	}
}

// Len reports the number of slots (not counting the unused index 0).
func (l *List) Len() int { return len(l.slots) - 1 }

// SetPositional binds the value at a 1-based index.
func (l *List) SetPositional(index int, value []byte, oid uint32, format Format) error {
	if index < 1 || index >= len(l.slots) {
		return errkind.New(errkind.InvalidParameterValue,
			fmt.Sprintf("parameter index %d out of range [1,%d]", index, l.Len()))
	}
	l.slots[index] = Slot{Value: value, OID: oid, Format: format, Bound: true}
	return nil
}

// SetNamed binds the value for a named placeholder, resolved through
// the rewrite's name-to-slot map.
func (l *List) SetNamed(name string, value []byte, oid uint32, format Format) error {
	slot, ok := l.namedSlots[name]
	if !ok {
		return errkind.New(errkind.InvalidParameterName,
			fmt.Sprintf("parameter %q is not bound by this query", name))
	}
	return l.SetPositional(slot, value, oid, format)
}

// Reset marks a slot unbound again.
func (l *List) Reset(index int) {
	if index >= 1 && index < len(l.slots) {
		l.slots[index] = Slot{}
	}
}

// ResetAll unbinds every slot, keeping the name map intact.
func (l *List) ResetAll() {
	for i := range l.slots {
		l.slots[i] = Slot{}
	}
}

// Validate reports errkind.MissingParameter for the first unbound slot,
// or nil if every slot (1..Len) is bound.
func (l *List) Validate() error {
	for i := 1; i < len(l.slots); i++ {
		if !l.slots[i].Bound {
			return errkind.New(errkind.MissingParameter,
				fmt.Sprintf("parameter %d was never set", i))
		}
	}
	return nil
}

// Slots returns the bound slots in order, 1-based (Slots()[0] is slot 1).
func (l *List) Slots() []Slot {
	if len(l.slots) <= 1 {
		return nil
	}
	return l.slots[1:]
}

// Clone duplicates the list in O(n); batches call this once per queued
// entry so each retains its own independent bindings.
func (l *List) Clone() *List {
	out := &List{
		slots:      make([]Slot, len(l.slots)),
		namedSlots: l.namedSlots,
	}
	copy(out.slots, l.slots)
	return out
}
