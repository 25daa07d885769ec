//go:build unix

// SPDX-License-Identifier: Apache-2.0

package reactor

import "golang.org/x/sys/unix"

// newWakePairOS creates a connected, non-blocking AF_UNIX socketpair used as
// a cross-thread wake channel, grounded on the same socketpair-based
// self-pipe pattern as the original's use of a loopback descriptor to
// interrupt a blocked selector.
func newWakePairOS() (r, w int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, 0, fmtErr("socketpair", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return 0, 0, fmtErr("socketpair nonblock", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return 0, 0, fmtErr("socketpair nonblock", err)
	}
	return fds[0], fds[1], nil
}
