// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"encoding/binary"
	"sync"
)

// newWakePair returns a connected, non-blocking descriptor pair used to
// interrupt a blocked poller.wait from another goroutine: newWakePairOS
// supplies the platform-specific construction (AF_UNIX socketpair on unix,
// a loopback TCP pair on Windows), and everything above that is shared.
func newWakePair() (r, w int, err error) {
	return newWakePairOS()
}

// wakeWrite nudges fd's peer descriptor so a blocked wait call returns.
// WouldBlock means a wake is already pending and is not an error: the
// selector will still be interrupted by it.
func wakeWrite(fd int) error {
	var b [1]byte
	_, res := sysWrite(fd, b[:])
	switch res {
	case OK, WouldBlock:
		return nil
	default:
		return fmtErr("wake write", ErrInvalidSocket)
	}
}

// drainWake reads and discards everything currently available on fd, so a
// level-triggered poller doesn't report it ready again next iteration.
func drainWake(fd int) {
	var buf [64]byte
	for {
		_, res := sysRead(fd, buf[:])
		if res != OK {
			return
		}
	}
}

// PipeCallback is invoked on the reactor's dispatch goroutine when a value
// launched through the matching id is observed.
type PipeCallback func(id uint64, value uint64)

// pipeMsgSize is the size of the wire shape of one queued notification: an 8-byte id
// followed by an 8-byte value, both little-endian.
const pipeMsgSize = 16

// Pipe is the public, user-facing cross-thread signalling primitive (C4):
// any number of producer goroutines can Launch a value against a
// previously Emplace'd id, and the matching PipeCallback runs on the owning
// Base's single dispatch goroutine, preserving the reactor's
// single-invoker-per-registration guarantee. Unlike Base's private wake
// pair, a Pipe carries a payload and supports many independent ids
// multiplexed over one descriptor pair.
type Pipe struct {
	b *Base

	mu      sync.Mutex
	nextID  uint64
	targets map[uint64]PipeCallback
	pending []byte // leftover partial message bytes from the last read

	r, w   int
	fd     int
	closed bool
}

// NewPipe creates a Pipe registered with b. The Pipe's read end is driven by
// b's own dispatch loop; callers must not call b.Start before or without
// later calling Close, or the descriptor leaks.
func NewPipe(b *Base) (*Pipe, error) {
	r, w, err := newWakePairOS()
	if err != nil {
		return nil, err
	}

	p := &Pipe{
		b:       b,
		targets: make(map[uint64]PipeCallback),
		r:       r,
		w:       w,
	}

	fd, ok := b.Add(r, p.onReadable, 0, false)
	if !ok {
		sysClose(r)
		sysClose(w)
		return nil, fmtErr("pipe add", ErrInvalidSocket)
	}
	p.fd = fd
	b.Mode(fd, KindRead, Enabled)
	return p, nil
}

// Emplace registers cb under a freshly allocated id and returns it.
func (p *Pipe) Emplace(cb PipeCallback) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.targets[id] = cb
	return id
}

// Erase removes id's registration. If a Launch for id is already in flight
// on the wire, it is silently dropped once observed: the callback lookup at
// delivery time finds nothing and does nothing.
func (p *Pipe) Erase(id uint64) {
	p.mu.Lock()
	delete(p.targets, id)
	p.mu.Unlock()
}

// Launch queues value for delivery to id's callback on the reactor thread.
// Safe to call from any goroutine, including concurrently with other
// Launch calls; message boundaries are preserved by framing each write as
// one fixed-size record.
func (p *Pipe) Launch(id uint64, value uint64) error {
	var msg [pipeMsgSize]byte
	binary.LittleEndian.PutUint64(msg[0:8], id)
	binary.LittleEndian.PutUint64(msg[8:16], value)

	off := 0
	for off < len(msg) {
		n, res := sysWrite(p.w, msg[off:])
		switch res {
		case OK:
			off += n
		case WouldBlock, Interrupted:
			continue
		default:
			return fmtErr("pipe launch", ErrInvalidSocket)
		}
	}
	return nil
}

// onReadable drains every complete (id, value) record currently available
// and dispatches each to its registered callback, in arrival order.
func (p *Pipe) onReadable(_ int, _ EventKind) {
	var buf [4096]byte
	for {
		n, res := sysRead(p.r, buf[:])
		if n > 0 {
			p.pending = append(p.pending, buf[:n]...)
		}
		if res == WouldBlock || res == Closed {
			break
		}
		if res != OK {
			break
		}
		if n == 0 {
			break
		}
	}

	for len(p.pending) >= pipeMsgSize {
		id := binary.LittleEndian.Uint64(p.pending[0:8])
		value := binary.LittleEndian.Uint64(p.pending[8:16])
		p.pending = p.pending[pipeMsgSize:]

		p.mu.Lock()
		cb, ok := p.targets[id]
		p.mu.Unlock()
		if ok {
			cb(id, value)
		}
	}
}

// Close releases the Pipe's descriptors and unregisters it from its Base.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.b.Del(p.fd)
	err1 := sysClose(p.r)
	err2 := sysClose(p.w)
	if err1 != nil {
		return err1
	}
	return err2
}
