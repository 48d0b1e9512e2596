package bridge

import (
	"reflect"
	"sync"

	"sensebridge/protocol"
)

// Handler consumes one parsed packet. Handler bodies must never call back
// into session operations: they run on the reader goroutine and a
// re-entrant call would deadlock waiting on the outbound mutex or on a
// completion signal that can never fire.
type Handler func(protocol.Packet)

// registry is the mutex-guarded mapping from command value to handler.
// Entries are long-lived for the permanent notification handlers and
// transient for handlers awaiting a single response; install/restore is
// used so a transient install never permanently clobbers a prior handler.
type registry struct {
	mu sync.Mutex
	m  map[uint16]Handler
}

func newRegistry() *registry {
	return &registry{m: make(map[uint16]Handler)}
}

func (r *registry) lookup(cmd uint16) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.m[cmd]
	return h, ok
}

// set installs a long-lived handler, such as one of the permanent
// notification handlers registered at Open.
func (r *registry) set(cmd uint16, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[cmd] = h
}

// install swaps in a transient handler and reports what was there before,
// so the caller can restore it once the command completes.
func (r *registry) install(cmd uint16, h Handler) (prev Handler, had bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had = r.m[cmd]
	r.m[cmd] = h
	return prev, had
}

// restore undoes an install: either puts the prior handler back, or
// removes the entry if there was none.
func (r *registry) restore(cmd uint16, prev Handler, had bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if had {
		r.m[cmd] = prev
	} else {
		delete(r.m, cmd)
	}
}

// fingerprint captures the registry's current shape for equality checks
// in tests that check handler restoration. Func values are only
// comparable to nil in Go, so identity is tracked via the function
// pointer of each entry rather than the Handler value itself.
func (r *registry) fingerprint() map[uint16]uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint16]uintptr, len(r.m))
	for cmd, h := range r.m {
		out[cmd] = reflect.ValueOf(h).Pointer()
	}
	return out
}
