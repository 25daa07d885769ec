// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"errors"
	"fmt"
	"net"
)

// Shutdown directions, platform-independent; sysShutdown maps these to the
// OS-specific SHUT_RD/SHUT_WR/SHUT_RDWR or SD_RECEIVE/SD_SEND/SD_BOTH pair.
const (
	ShutRead = iota
	ShutWrite
	ShutBoth
)

// Result classifies the outcome of a non-blocking read or write, collapsing
// the platform-specific errno space (EAGAIN/EWOULDBLOCK/WSAEWOULDBLOCK,
// EINTR, ECONNRESET/EPIPE, ...) down to the handful of outcomes the rest of
// the stack needs to branch on. See errclass_unix.go / errclass_windows.go
// for the per-OS constant tables this is built from, grounded on the
// bassosimone-nop/errclass package's unix.go/windows.go split.
type Result uint8

const (
	// OK means n bytes were transferred; n may be zero only for a
	// zero-length write.
	OK Result = iota
	// WouldBlock means the operation would have blocked; retry once the
	// reactor reports the matching readiness again.
	WouldBlock
	// Interrupted means the syscall was interrupted (EINTR); the caller
	// should retry immediately.
	Interrupted
	// Closed means the peer is gone (0-byte read, ECONNRESET, EPIPE) or
	// the local socket was shut down.
	Closed
	// Error is any other, unclassified error.
	Error
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case WouldBlock:
		return "would-block"
	case Interrupted:
		return "interrupted"
	case Closed:
		return "closed"
	default:
		return "error"
	}
}

// ErrInvalidSocket is returned by operations on a Socket that was never
// opened or has already been closed.
var ErrInvalidSocket = errors.New("reactor: invalid socket")

// Socket is a thin, non-blocking, byte-oriented wrapper around an OS file
// descriptor. A Socket belongs to at most one Base at a time. Closing it
// only closes the descriptor; registrations a Base holds for it stay in
// place until removed with Base.Del.
type Socket struct {
	fd     int
	closed bool

	// owner, when set, is the net.Conn this Socket's descriptor was taken
	// from. Retaining it keeps the standard library's finalizer from
	// closing the descriptor while the reactor still holds it, and Close
	// delegates to it rather than calling sysClose directly.
	owner net.Conn
}

// NewSocket wraps an already-open, already-non-blocking descriptor that the
// caller owns. Dial and Listener.Accept do not use it; they wrap the
// descriptor of a net.Conn, which the Socket then keeps as its owner.
func NewSocket(fd int) *Socket {
	return &Socket{fd: fd}
}

// FD returns the underlying descriptor, or -1 if the socket is closed.
func (s *Socket) FD() int {
	if s.closed {
		return -1
	}
	return s.fd
}

// Read reads into buf, returning the classified Result and, on OK, the
// number of bytes read. A zero-byte read is reported as Closed, matching
// §4.2's mapping of a 0-byte read to peer shutdown.
func (s *Socket) Read(buf []byte) (int, Result) {
	if s.closed {
		return 0, Error
	}
	n, res := sysRead(s.fd, buf)
	if res == OK && n == 0 {
		return 0, Closed
	}
	return n, res
}

// Write writes buf, returning the classified Result and, on OK, the number
// of bytes written (which may be less than len(buf)).
func (s *Socket) Write(buf []byte) (int, Result) {
	if s.closed {
		return 0, Error
	}
	return sysWrite(s.fd, buf)
}

// Shutdown half- or fully-closes the socket per how, without releasing the
// descriptor; a subsequent Close is still required.
func (s *Socket) Shutdown(how int) error {
	if s.closed {
		return ErrInvalidSocket
	}
	return sysShutdown(s.fd, how)
}

// Close releases the descriptor. Close is idempotent.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.owner != nil {
		return s.owner.Close()
	}
	return sysClose(s.fd)
}

// SetReuseAddr toggles SO_REUSEADDR.
func (s *Socket) SetReuseAddr(v bool) error { return sysSetReuseAddr(s.fd, v) }

// SetNoDelay toggles TCP_NODELAY.
func (s *Socket) SetNoDelay(v bool) error { return sysSetNoDelay(s.fd, v) }

// SetIPv6Only toggles IPV6_V6ONLY.
func (s *Socket) SetIPv6Only(v bool) error { return sysSetIPv6Only(s.fd, v) }

// SetKeepAlive toggles SO_KEEPALIVE.
func (s *Socket) SetKeepAlive(v bool) error { return sysSetKeepAlive(s.fd, v) }

// SetRecvBuffer sets SO_RCVBUF.
func (s *Socket) SetRecvBuffer(n int) error { return sysSetRecvBuffer(s.fd, n) }

// SetSendBuffer sets SO_SNDBUF.
func (s *Socket) SetSendBuffer(n int) error { return sysSetSendBuffer(s.fd, n) }

// SetNonblock marks the descriptor non-blocking, required before handing a
// freshly accepted or dialed descriptor to a Base.
func (s *Socket) SetNonblock(v bool) error { return sysSetNonblock(s.fd, v) }

func fmtErr(op string, err error) error {
	return fmt.Errorf("reactor: %s: %w", op, err)
}
