// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (*Socket, *Socket) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	return NewSocket(fds[0]), NewSocket(fds[1])
}

func TestSocket_ReadWrite(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	n, res := a.Write([]byte("hello"))
	assert.Equal(t, OK, res)
	assert.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, res = b.Read(buf)
	assert.Equal(t, OK, res)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestSocket_ReadWouldBlock(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	buf := make([]byte, 16)
	_, res := b.Read(buf)
	assert.Equal(t, WouldBlock, res)
}

func TestSocket_ClosedPeer(t *testing.T) {
	a, b := socketpair(t)
	defer b.Close()

	require.NoError(t, a.Close())

	buf := make([]byte, 16)
	_, res := b.Read(buf)
	assert.Equal(t, Closed, res)
}

func TestSocket_CloseIdempotent(t *testing.T) {
	a, _ := socketpair(t)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
	assert.Equal(t, -1, a.FD())
}

func TestSocket_OpsOnClosed(t *testing.T) {
	a, _ := socketpair(t)
	require.NoError(t, a.Close())

	_, res := a.Read(make([]byte, 4))
	assert.Equal(t, Error, res)

	_, res = a.Write([]byte("x"))
	assert.Equal(t, Error, res)

	assert.ErrorIs(t, a.Shutdown(ShutBoth), ErrInvalidSocket)
}

func TestSocket_Setsockopt(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	assert.NoError(t, a.SetRecvBuffer(4096))
	assert.NoError(t, a.SetSendBuffer(4096))
	assert.NoError(t, a.SetNonblock(true))
}
