//go:build unix

// SPDX-License-Identifier: Apache-2.0

package reactor

import "golang.org/x/sys/unix"

func sysRead(fd int, buf []byte) (int, Result) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, classify(err)
	}
	return n, OK
}

func sysWrite(fd int, buf []byte) (int, Result) {
	n, err := unix.Write(fd, buf)
	if err != nil {
		return n, classify(err)
	}
	return n, OK
}

func sysShutdown(fd int, how int) error {
	switch how {
	case ShutRead:
		return unix.Shutdown(fd, unix.SHUT_RD)
	case ShutWrite:
		return unix.Shutdown(fd, unix.SHUT_WR)
	default:
		return unix.Shutdown(fd, unix.SHUT_RDWR)
	}
}

func sysClose(fd int) error {
	return unix.Close(fd)
}

func sysSetNonblock(fd int, v bool) error {
	return unix.SetNonblock(fd, v)
}

func sysSetReuseAddr(fd int, v bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(v))
}

func sysSetNoDelay(fd int, v bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(v))
}

func sysSetIPv6Only(fd int, v bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, boolToInt(v))
}

func sysSetKeepAlive(fd int, v bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(v))
}

func sysSetRecvBuffer(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

func sysSetSendBuffer(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
