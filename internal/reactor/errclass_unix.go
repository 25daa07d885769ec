//go:build unix

// SPDX-License-Identifier: Apache-2.0
//
// Classification table adapted from the bassosimone-nop/errclass package's
// unix.go: one named errno per platform-independent condition we care
// about, so the call sites above (socket.go) never spell out a raw errno.

package reactor

import (
	"errors"

	"golang.org/x/sys/unix"
)

const (
	errEAGAIN      = unix.EAGAIN
	errEWOULDBLOCK = unix.EWOULDBLOCK
	errEINTR       = unix.EINTR
	errECONNRESET  = unix.ECONNRESET
	errEPIPE       = unix.EPIPE
	errENOTCONN    = unix.ENOTCONN
)

func classify(err error) Result {
	if err == nil {
		return OK
	}

	var errno unix.Errno
	if !errors.As(err, &errno) {
		return Error
	}

	if errno == errEAGAIN || errno == errEWOULDBLOCK {
		return WouldBlock
	}
	if errno == errEINTR {
		return Interrupted
	}
	if errno == errECONNRESET || errno == errEPIPE || errno == errENOTCONN {
		return Closed
	}
	return Error
}
