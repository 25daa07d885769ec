// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"errors"
	"net"
	"syscall"
)

var errNotSyscallConn = errors.New("reactor: connection has no syscall handle")

// socketFD extracts the raw descriptor/handle backing a net.Conn or
// net.Listener. Ownership of the underlying descriptor is not transferred;
// callers that want the reactor to own it construct a Socket with
// newOwnedSocket, which keeps c alive for the Socket's lifetime so its
// finalizer never races the reactor's use of the descriptor.
func socketFD(c syscall.Conn) (int, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return 0, fmtErr("socket fd", err)
	}
	var fd int
	cerr := raw.Control(func(h uintptr) {
		fd = int(h)
	})
	if cerr != nil {
		return 0, fmtErr("socket fd", cerr)
	}
	return fd, nil
}

// newOwnedSocket wraps a net.Conn's descriptor in a Socket, keeping owner
// referenced so the standard library never closes the descriptor out from
// under the reactor via its own finalizer. Close on the returned Socket
// delegates to owner.Close instead of a raw sysClose.
func newOwnedSocket(owner net.Conn) (*Socket, error) {
	sc, ok := owner.(syscall.Conn)
	if !ok {
		return nil, fmtErr("owned socket", errNotSyscallConn)
	}
	fd, err := socketFD(sc)
	if err != nil {
		return nil, err
	}
	if err := sysSetNonblock(fd, true); err != nil {
		return nil, err
	}
	return &Socket{fd: fd, owner: owner}, nil
}
