// Package faketransport plays the role of a scripted PostgreSQL backend
// for testing protoengine and the statement executor above it, the
// mirror image of the teacher's internal/mock package (which scripted
// client frames against a server under test): here the harness scripts
// backend frames for a client under test.
package faketransport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/riftdata/pgstmt/internal/protoengine"
)

// Frame is one wire-protocol message, tagged or untagged (Type==0 for
// the startup-class messages the engine itself only ever sends, never
// receives, so Transport never needs to build those).
type Frame struct {
	Type    byte
	Payload []byte
}

// Transport is an in-memory protoengine.Transport backed by a
// pre-scripted queue of backend frames. Every frame the engine sends is
// recorded in Sent for assertions.
type Transport struct {
	mu     sync.Mutex
	script []Frame
	pos    int
	Sent   []Frame

	// OnSend, if set, is called synchronously for every frame the engine
	// sends, before it is appended to Sent — tests use this to script
	// responses dynamically (e.g. "whatever Bind carries, reply with
	// this many rows") instead of a fixed upfront queue.
	OnSend func(f Frame, t *Transport)

	auxRequests []CancelRequest
	closed      bool
}

// CancelRequest records one SendCancelRequest call observed on an
// auxiliary connection opened by this transport.
type CancelRequest struct {
	PID       int32
	SecretKey int32
}

// New creates a Transport that replays script in order on each Recv.
func New(script ...Frame) *Transport {
	return &Transport{script: script}
}

// Queue appends more frames to the script, for tests that need to feed
// a response only after observing what the engine sent.
func (t *Transport) Queue(frames ...Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, frames...)
}

func (t *Transport) Send(_ context.Context, msgType byte, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("faketransport: send on closed transport")
	}
	f := Frame{Type: msgType, Payload: payload}
	if t.OnSend != nil {
		t.OnSend(f, t)
	}
	t.Sent = append(t.Sent, f)
	return nil
}

func (t *Transport) Recv(_ context.Context) (byte, []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pos >= len(t.script) {
		return 0, nil, io.EOF
	}
	f := t.script[t.pos]
	t.pos++
	return f.Type, f.Payload, nil
}

func (t *Transport) OpenAuxiliary(_ context.Context) (protoengine.AuxTransport, error) {
	return &auxTransport{parent: t}, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// AuxRequests returns every CancelRequest observed across every
// auxiliary connection this transport opened.
func (t *Transport) AuxRequests() []CancelRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CancelRequest, len(t.auxRequests))
	copy(out, t.auxRequests)
	return out
}

type auxTransport struct {
	parent *Transport
}

func (a *auxTransport) SendCancelRequest(_ context.Context, pid, secretKey int32) error {
	a.parent.mu.Lock()
	defer a.parent.mu.Unlock()
	a.parent.auxRequests = append(a.parent.auxRequests, CancelRequest{PID: pid, SecretKey: secretKey})
	return nil
}

func (a *auxTransport) Close() error { return nil }
