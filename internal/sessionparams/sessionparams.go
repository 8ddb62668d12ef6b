// Package sessionparams tracks the server's reported GUC_REPORT
// parameters (server_version, TimeZone, client_encoding, and friends).
// The protocol engine is the only writer, applying each ParameterStatus
// frame as it arrives on the connection's single reader goroutine under
// the connection lock; any number of other goroutines may read a
// consistent snapshot without taking that lock.
//
// The server itself is what gives this transactional semantics: on
// ROLLBACK it re-sends a ParameterStatus restoring the pre-transaction
// value before the matching ReadyForQuery, so Map only needs to apply
// frames in the order they arrive — it does not need to understand
// transactions itself.
package sessionparams

import "sync/atomic"

// Map is a read-mostly view of the session's reported parameters.
type Map struct {
	current atomic.Pointer[map[string]string]
}

// New returns an empty Map.
func New() *Map {
	m := &Map{}
	empty := map[string]string{}
	m.current.Store(&empty)
	return m
}

// Set records a ParameterStatus update. Call only from the connection's
// single protocol-reading goroutine, under the connection lock.
func (m *Map) Set(name, value string) {
	old := *m.current.Load()
	next := make(map[string]string, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[name] = value
	m.current.Store(&next)
}

// Get returns the current value of name and whether it has ever been
// reported. Safe to call from any goroutine without locking.
func (m *Map) Get(name string) (string, bool) {
	snap := *m.current.Load()
	v, ok := snap[name]
	return v, ok
}

// Snapshot returns a copy of every currently known parameter.
func (m *Map) Snapshot() map[string]string {
	snap := *m.current.Load()
	out := make(map[string]string, len(snap))
	for k, v := range snap {
		out[k] = v
	}
	return out
}
