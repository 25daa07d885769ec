//go:build windows

// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"net"
)

// newWakePairOS emulates a socketpair with a local TCP loopback connection,
// since Windows has no AF_UNIX socketpair equivalent usable with WSAPoll.
// The listener is torn down as soon as the single connection is accepted.
func newWakePairOS() (r, w int, err error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, 0, fmtErr("wake listen", err)
	}
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	acceptErrCh := make(chan error, 1)
	go func() {
		c, aerr := ln.Accept()
		if aerr != nil {
			acceptErrCh <- aerr
			return
		}
		acceptCh <- c
	}()

	dialConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		return 0, 0, fmtErr("wake dial", err)
	}

	var acceptConn net.Conn
	select {
	case acceptConn = <-acceptCh:
	case aerr := <-acceptErrCh:
		dialConn.Close()
		return 0, 0, fmtErr("wake accept", aerr)
	}

	rfd, err := socketFD(acceptConn)
	if err != nil {
		dialConn.Close()
		acceptConn.Close()
		return 0, 0, err
	}
	wfd, err := socketFD(dialConn)
	if err != nil {
		dialConn.Close()
		acceptConn.Close()
		return 0, 0, err
	}

	if err := sysSetNonblock(rfd, true); err != nil {
		return 0, 0, err
	}
	if err := sysSetNonblock(wfd, true); err != nil {
		return 0, 0, err
	}
	return rfd, wfd, nil
}
