// SPDX-License-Identifier: Apache-2.0

package reactor

import "go.uber.org/zap"

// Event is a user-facing handle owning exactly one interest record: one
// (descriptor, kind-set) registration on a single Base. Constructed
// detached; Set binds it to a reactor, descriptor or delay, and callback;
// Start inserts the registration; Stop (or dropping the handle after
// calling Stop) removes it. Calling Start on an unbound handle logs a
// warning and is a no-op, matching the RAII contract a raw *Base.Add/Del
// pair would otherwise leave to the caller to get right.
type Event struct {
	b   *Base
	log *zap.Logger

	fd       int
	delay    uint32
	periodic bool
	cb       Callback

	bound   bool
	started bool
}

// NewEvent returns a detached handle. Use Set to bind it before Start.
func NewEvent(log *zap.Logger) *Event {
	if log == nil {
		log = zap.NewNop()
	}
	return &Event{log: log}
}

// Set binds the handle to b and a real descriptor. Rebinding an already
// started handle stops the previous registration first.
func (e *Event) Set(b *Base, fd int, cb Callback) {
	e.rebind(b, fd, 0, false, cb)
}

// SetTimer binds the handle to a reactor-owned timer descriptor instead of
// a real one; the reactor allocates and frees the timer descriptor.
func (e *Event) SetTimer(b *Base, delayMS uint32, periodic bool, cb Callback) {
	e.rebind(b, 0, delayMS, periodic, cb)
}

func (e *Event) rebind(b *Base, fd int, delayMS uint32, periodic bool, cb Callback) {
	if e.started {
		e.Stop()
	}
	e.b = b
	e.fd = fd
	e.delay = delayMS
	e.periodic = periodic
	e.cb = cb
	e.bound = b != nil && cb != nil
}

// Start inserts the handle's registration and enables kinds. A handle
// bound to a real descriptor with no kinds given enables nothing (the
// caller still toggles via Enable); a timer-bound handle is enabled for
// KindTimer automatically, since a timer has no other kind to choose.
func (e *Event) Start(kinds ...EventKind) bool {
	if !e.bound {
		e.log.Warn("reactor: start on unbound event handle")
		return false
	}
	if e.started {
		return true
	}

	fd, ok := e.b.Add(e.fd, e.cb, e.delay, e.periodic)
	if !ok {
		return false
	}
	e.fd = fd
	e.started = true

	if e.delay > 0 {
		e.b.Mode(e.fd, KindTimer, Enabled)
		return true
	}
	for _, k := range kinds {
		e.b.Mode(e.fd, k, Enabled)
	}
	return true
}

// Enable toggles a single kind on an already-started handle.
func (e *Event) Enable(kind EventKind, on bool) bool {
	if !e.started {
		return false
	}
	m := Disabled
	if on {
		m = Enabled
	}
	return e.b.Mode(e.fd, kind, m)
}

// Stop removes the handle's registration, if any. Safe to call more than
// once and on a never-started handle.
func (e *Event) Stop() {
	if !e.started {
		return
	}
	e.b.Del(e.fd)
	e.started = false
}

// Started reports whether the handle currently owns a live registration.
func (e *Event) Started() bool { return e.started }

// FD returns the handle's effective descriptor (real fd or allocated timer
// descriptor), or 0 if unbound.
func (e *Event) FD() int { return e.fd }
