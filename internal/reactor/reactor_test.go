// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestBase(t *testing.T, opts ...Option) *Base {
	t.Helper()
	b, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBase_ReadDispatch(t *testing.T) {
	b := newTestBase(t, WithFrequency(10))
	a, peer := socketpair(t)
	defer a.Close()
	defer peer.Close()

	var got atomic.Int32
	done := make(chan struct{})
	fd, ok := b.Add(peer.FD(), func(fd int, kind EventKind) {
		if kind == KindRead {
			buf := make([]byte, 8)
			n, res := peer.Read(buf)
			if res == OK {
				got.Store(int32(n))
				close(done)
			}
		}
	}, 0, false)
	require.True(t, ok)
	require.True(t, b.Mode(fd, KindRead, Enabled))

	b.Start()
	defer b.Stop()

	_, res := a.Write([]byte("ping"))
	require.Equal(t, OK, res)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
	assert.Equal(t, int32(4), got.Load())
}

func TestBase_DelStopsDelivery(t *testing.T) {
	b := newTestBase(t, WithFrequency(10))
	a, peer := socketpair(t)
	defer a.Close()
	defer peer.Close()

	var calls atomic.Int32
	fd, ok := b.Add(peer.FD(), func(fd int, kind EventKind) {
		calls.Add(1)
	}, 0, false)
	require.True(t, ok)
	require.True(t, b.Mode(fd, KindRead, Enabled))
	require.True(t, b.Del(fd))

	b.Start()
	defer b.Stop()

	_, _ = a.Write([]byte("x"))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestBase_CapacityExceeded(t *testing.T) {
	b := newTestBase(t, WithCapacity(1))

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	_, ok := b.Add(fds[0], func(int, EventKind) {}, 0, false)
	assert.True(t, ok)

	_, ok = b.Add(fds[1], func(int, EventKind) {}, 0, false)
	assert.False(t, ok)
}

func TestBase_Timer(t *testing.T) {
	b := newTestBase(t, WithFrequency(5))

	var fires atomic.Int32
	done := make(chan struct{})
	fd, ok := b.Add(0, func(int, EventKind) {
		if fires.Add(1) == 1 {
			close(done)
		}
	}, 20, false)
	require.True(t, ok)
	require.True(t, fd < 0, "timer descriptors are negative")
	require.True(t, b.Mode(fd, KindTimer, Enabled))

	b.Start()
	defer b.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestBase_TimerPeriodicRearms(t *testing.T) {
	b := newTestBase(t, WithFrequency(5))

	var fires atomic.Int32
	var mu sync.Mutex
	threshold := make(chan struct{})
	var closed bool

	fd, ok := b.Add(0, func(int, EventKind) {
		n := fires.Add(1)
		if n == 3 {
			mu.Lock()
			if !closed {
				closed = true
				close(threshold)
			}
			mu.Unlock()
		}
	}, 10, true)
	require.True(t, ok)
	require.True(t, b.Mode(fd, KindTimer, Enabled))

	b.Start()
	defer b.Stop()

	select {
	case <-threshold:
	case <-time.After(3 * time.Second):
		t.Fatal("periodic timer did not fire 3 times")
	}
}

func TestBase_KickRestartsLoop(t *testing.T) {
	b := newTestBase(t, WithFrequency(10))
	b.Start()
	assert.True(t, b.Launched())
	b.Kick()
	assert.True(t, b.Launched())
	b.Stop()
	assert.False(t, b.Launched())
}

func TestBase_StartIsIdempotent(t *testing.T) {
	b := newTestBase(t, WithFrequency(10))
	b.Start()
	b.Start()
	assert.True(t, b.Launched())
	b.Stop()
}

func TestBase_Rebase(t *testing.T) {
	b := newTestBase(t, WithFrequency(10))
	a, peer := socketpair(t)
	defer a.Close()
	defer peer.Close()

	var calls atomic.Int32
	fd, ok := b.Add(peer.FD(), func(int, EventKind) {
		calls.Add(1)
	}, 0, false)
	require.True(t, ok)
	require.True(t, b.Mode(fd, KindRead, Enabled))

	b.Start()
	require.NoError(t, b.Rebase())
	defer b.Stop()

	_, _ = a.Write([]byte("x"))
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, 10*time.Millisecond)
}
