// SPDX-License-Identifier: Apache-2.0

// Package reactor implements a portable, readiness-based I/O event loop
// (epoll / kqueue / WSAPoll) with timer support, plus the small primitives
// built directly on top of it: a non-blocking socket wrapper, a scoped
// per-interest handle, and a cross-thread wakeup pipe.
package reactor

import (
	"fmt"
	"sync/atomic"
)

// EventKind identifies the kind of readiness a callback is invoked for.
type EventKind uint8

const (
	// KindClose is synthesised on peer hangup or a socket error; it is
	// always delivered before Read/Write for the same descriptor.
	KindClose EventKind = iota
	KindRead
	KindWrite
	KindTimer
)

func (k EventKind) String() string {
	switch k {
	case KindClose:
		return "close"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindTimer:
		return "timer"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Mode is a per-kind activation flag.
type Mode uint8

const (
	Disabled Mode = iota
	Enabled
)

// Callback is invoked on the reactor's dispatch thread whenever a kind the
// caller enabled becomes ready.
type Callback func(fd int, kind EventKind)

// nextID hands out the stable, opaque identity every interest is assigned at
// insertion. It is process-global so ids never collide across Base values
// created during a test run.
var nextID uint64

func allocID() uint64 {
	return atomic.AddUint64(&nextID, 1)
}

// interest is the reactor's bookkeeping record for one descriptor. It is
// owned exclusively by the reactor; callbacks never see it directly.
type interest struct {
	id uint64
	fd int

	// timerFD is set only when this interest was created with a delay; the
	// reactor itself allocated and owns this descriptor.
	timerFD int
	ownsFD  bool

	periodic bool
	delay    uint32 // ms
	elapsed  uint32 // ms, reset every period

	mode map[EventKind]Mode
	cb   Callback

	// removing is not set or read by the loop; an interest removed during
	// dispatch is skipped because the loop re-checks b.interests before
	// each delivery.
	removing bool
}

func newInterest(fd int, cb Callback) *interest {
	return &interest{
		id: allocID(),
		fd: fd,
		cb: cb,
		mode: map[EventKind]Mode{
			KindClose: Disabled,
			KindRead:  Disabled,
			KindWrite: Disabled,
			KindTimer: Disabled,
		},
	}
}

func (in *interest) isEnabled(k EventKind) bool {
	return in.mode[k] == Enabled
}

// anyEnabledBesidesClose reports whether any kind other than KindClose is
// still enabled; del(fd, kind) removes the whole registration once only
// CLOSE is left, matching §4.1's del(fd, kind) contract.
func (in *interest) anyEnabledBesidesClose() bool {
	for k, m := range in.mode {
		if k != KindClose && m == Enabled {
			return true
		}
	}
	return false
}
