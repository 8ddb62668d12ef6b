// Package protoengine drives the PostgreSQL extended-query (and simple
// query) state machine over a caller-supplied Transport, dispatching
// the reply stream to a resulthandler.Handler and to the connection's
// session parameter map.
package protoengine

import "context"

// Transport carries already-framed protocol messages to and from the
// server; protoengine owns the message shapes (via pkg/wire) but not
// the socket.
type Transport interface {
	Send(ctx context.Context, msgType byte, payload []byte) error
	Recv(ctx context.Context) (msgType byte, payload []byte, err error)
	OpenAuxiliary(ctx context.Context) (AuxTransport, error)
	Close() error
}

// AuxTransport is a short-lived secondary connection used only to
// deliver an out-of-band CancelRequest; per protocol, the server closes
// it immediately after reading the request, so it carries no reply.
type AuxTransport interface {
	SendCancelRequest(ctx context.Context, pid, secretKey int32) error
	Close() error
}

// ConnMeta is the backend identity learned once, from BackendKeyData
// during startup, and needed for every later Cancel call.
type ConnMeta struct {
	PID       int32
	SecretKey int32
}
