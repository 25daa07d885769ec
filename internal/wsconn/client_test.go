// SPDX-License-Identifier: Apache-2.0

package wsconn

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/retry"

	"github.com/reactorws/reactorws/internal/reactor"
)

func newTestServer(t *testing.T, base *reactor.Base) (*Server, string) {
	t.Helper()
	ln, err := reactor.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	srv, err := NewServer(base, ln, ServerConfig{})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Stop)

	return srv, "ws://" + ln.Addr().String() + "/"
}

// TestClient_ReconnectsAfterServerDrop exercises run()'s reconnect loop:
// once the active session's stream closes, the client must redial rather
// than block forever.
func TestClient_ReconnectsAfterServerDrop(t *testing.T) {
	base := newTestBase(t)
	srv, url := newTestServer(t, base)

	var connects atomic.Int32
	srv.OnActive(ActiveListenerFunc(func(e Active) {
		if e.State == ActiveConnect {
			connects.Add(1)
		}
	}))

	cli, err := NewClient(base, URL(url), RetryPolicy(retry.Config{
		Interval:    10 * time.Millisecond,
		Multiplier:  1,
		MaxInterval: 10 * time.Millisecond,
	}))
	require.NoError(t, err)

	firstConnect := make(chan struct{})
	var gotFirst atomic.Bool
	cli.OnActive(ActiveListenerFunc(func(e Active) {
		if e.State == ActiveConnect && gotFirst.CompareAndSwap(false, true) {
			close(firstConnect)
		}
	}))

	cli.Start()
	t.Cleanup(cli.Stop)

	select {
	case <-firstConnect:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	// Drop every live server-side session to force the client to notice a
	// stream close and reconnect.
	require.Eventually(t, func() bool { return connects.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	var sessions []*Session
	srv.mu.Lock()
	for _, s := range srv.sessions {
		sessions = append(sessions, s)
	}
	srv.mu.Unlock()
	for _, s := range sessions {
		s.SendError(1000, "", KindPeerClosed)
	}

	require.Eventually(t, func() bool { return connects.Load() >= 2 }, 3*time.Second, 10*time.Millisecond,
		"client should have redialed after its session closed")
}

// TestClient_OnceDoesNotReconnect confirms Once() disables the redial loop.
func TestClient_OnceDoesNotReconnect(t *testing.T) {
	base := newTestBase(t)
	srv, url := newTestServer(t, base)

	var connects atomic.Int32
	srv.OnActive(ActiveListenerFunc(func(e Active) {
		if e.State == ActiveConnect {
			connects.Add(1)
		}
	}))

	cli, err := NewClient(base, URL(url), Once())
	require.NoError(t, err)

	cli.Start()
	t.Cleanup(cli.Stop)

	require.Eventually(t, func() bool { return connects.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	var sessions []*Session
	srv.mu.Lock()
	for _, s := range srv.sessions {
		sessions = append(sessions, s)
	}
	srv.mu.Unlock()
	for _, s := range sessions {
		s.SendError(1000, "", KindPeerClosed)
	}

	// Give run() a window in which a (wrongly) reconnecting client would
	// have redialed.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, int32(1), connects.Load())
}
