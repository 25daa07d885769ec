//go:build windows

// SPDX-License-Identifier: Apache-2.0

package reactor

import "golang.org/x/sys/windows"

func sysRead(fd int, buf []byte) (int, Result) {
	n, err := windows.Read(windows.Handle(fd), buf)
	if err != nil {
		return 0, classify(err)
	}
	return n, OK
}

func sysWrite(fd int, buf []byte) (int, Result) {
	n, err := windows.Write(windows.Handle(fd), buf)
	if err != nil {
		return n, classify(err)
	}
	return n, OK
}

func sysShutdown(fd int, how int) error {
	dir := windows.SD_BOTH
	switch how {
	case ShutRead:
		dir = windows.SD_RECEIVE
	case ShutWrite:
		dir = windows.SD_SEND
	}
	return windows.Shutdown(windows.Handle(fd), dir)
}

func sysClose(fd int) error {
	return windows.Closesocket(windows.Handle(fd))
}

func sysSetNonblock(fd int, v bool) error {
	var mode uint32
	if v {
		mode = 1
	}
	return windows.IoctlSocket(windows.Handle(fd), windows.FIONBIO, &mode)
}

func sysSetReuseAddr(fd int, v bool) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, boolToInt(v))
}

func sysSetNoDelay(fd int, v bool) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_TCP, windows.TCP_NODELAY, boolToInt(v))
}

func sysSetIPv6Only(fd int, v bool) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_IPV6, windows.IPV6_V6ONLY, boolToInt(v))
}

func sysSetKeepAlive(fd int, v bool) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_KEEPALIVE, boolToInt(v))
}

func sysSetRecvBuffer(fd int, n int) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_RCVBUF, n)
}

func sysSetSendBuffer(fd int, n int) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_SNDBUF, n)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
