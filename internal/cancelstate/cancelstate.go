// Package cancelstate implements the Statement cancellation state
// machine from spec §4.5:
//
//	IDLE      --startExecute-->  IN_QUERY
//	IN_QUERY  --cancel()-->      CANCELING --cancelAck--> CANCELLED
//	IN_QUERY  --executeDone-->   IDLE
//	CANCELLED --executeDone-->   IDLE
//	CANCELING --executeDone-->   wait until CANCELLED, then IDLE
//
// cancel() must never block on the Statement lock a blocked execution
// holds, so all transitions go through a lock-free compare-and-swap on
// a single atomic.Int32, the same shape as
// github.com/Icinga/icinga-go-library's com.Atomic compare-and-swap
// (adapted here to a plain comparable int32 rather than com.Atomic's
// generic boxed-interface value, since the state itself needs no
// boxing). Two concurrent Cancel calls coalesce: only the one that wins
// the CAS from IN_QUERY to CANCELING proceeds to dispatch a
// CancelRequest.
package cancelstate

import "sync/atomic"

type State int32

const (
	Idle State = iota
	InQuery
	Canceling
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case InQuery:
		return "IN_QUERY"
	case Canceling:
		return "CANCELING"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// CancelState is the atomic state holder. The zero value is Idle and
// ready to use.
type CancelState struct {
	v    atomic.Int32
	ack  atomic.Pointer[chan struct{}]
}

// State returns the current state.
func (c *CancelState) State() State { return State(c.v.Load()) }

// StartExecute transitions IDLE -> IN_QUERY. Returns false if an
// execution is already in flight.
func (c *CancelState) StartExecute() bool {
	if !c.v.CompareAndSwap(int32(Idle), int32(InQuery)) {
		return false
	}
	ch := make(chan struct{})
	c.ack.Store(&ch)
	return true
}

// Cancel requests cancellation of the in-flight execution. It returns
// true when the caller is the one that should dispatch a CancelRequest
// (i.e. it won the IN_QUERY -> CANCELING transition). A call in IDLE is
// a no-op; a call already past IN_QUERY coalesces with whichever caller
// got there first.
func (c *CancelState) Cancel() bool {
	for {
		cur := c.State()
		switch cur {
		case Idle:
			return false
		case Canceling, Cancelled:
			return false
		case InQuery:
			if c.v.CompareAndSwap(int32(InQuery), int32(Canceling)) {
				return true
			}
			// Lost the race (executeDone or another Cancel moved it); re-read.
		}
	}
}

// CancelAck records that the server acknowledged cancellation
// (ErrorResponse 57014 followed by ReadyForQuery).
func (c *CancelState) CancelAck() {
	if c.v.CompareAndSwap(int32(Canceling), int32(Cancelled)) {
		if p := c.ack.Load(); p != nil {
			close(*p)
		}
	}
}

// ExecuteDone signals the execution has finished. From CANCELING it
// blocks until CancelAck has fired, then settles to IDLE, matching the
// "wait until CANCELLED, then IDLE" edge in the state diagram.
func (c *CancelState) ExecuteDone() {
	for {
		cur := c.State()
		switch cur {
		case Idle:
			return
		case InQuery:
			if c.v.CompareAndSwap(int32(InQuery), int32(Idle)) {
				return
			}
		case Cancelled:
			if c.v.CompareAndSwap(int32(Cancelled), int32(Idle)) {
				return
			}
		case Canceling:
			if p := c.ack.Load(); p != nil {
				<-*p
			}
			c.v.CompareAndSwap(int32(Cancelled), int32(Idle))
			return
		}
	}
}
