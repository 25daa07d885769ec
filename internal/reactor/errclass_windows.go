//go:build windows

// SPDX-License-Identifier: Apache-2.0
//
// Classification table adapted from the bassosimone-nop/errclass package's
// windows.go: the same condition set as errclass_unix.go, backed by WSA
// error codes instead of POSIX errno.

package reactor

import (
	"errors"

	"golang.org/x/sys/windows"
)

const (
	errEWOULDBLOCK = windows.WSAEWOULDBLOCK
	errEINTR       = windows.WSAEINTR
	errECONNRESET  = windows.WSAECONNRESET
	errENOTCONN    = windows.WSAENOTCONN
)

func classify(err error) Result {
	if err == nil {
		return OK
	}

	var errno windows.Errno
	if !errors.As(err, &errno) {
		return Error
	}

	if errno == errEWOULDBLOCK {
		return WouldBlock
	}
	if errno == errEINTR {
		return Interrupted
	}
	if errno == errECONNRESET || errno == errENOTCONN {
		return Closed
	}
	return Error
}
