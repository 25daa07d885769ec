// SPDX-License-Identifier: Apache-2.0

package wsconn

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/reactorws/reactorws/internal/reactor"
	"github.com/reactorws/reactorws/internal/wsproto"
)

func newTestBase(t *testing.T) *reactor.Base {
	t.Helper()
	b, err := reactor.New(reactor.WithFrequency(10))
	require.NoError(t, err)
	b.Start()
	t.Cleanup(func() {
		b.Stop()
		_ = b.Close()
	})
	return b
}

func socketpair(t *testing.T) (*reactor.Socket, *reactor.Socket) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	return reactor.NewSocket(fds[0]), reactor.NewSocket(fds[1])
}

// newOpenPair drives a client/server Session pair through the handshake and
// returns both once they reach PhaseOpen.
func newOpenPair(t *testing.T, opts ...Option) (srv, cli *Session) {
	t.Helper()
	base := newTestBase(t)
	serverSock, clientSock := socketpair(t)

	var err error
	srv, err = New(base, serverSock, RoleServer, 1, opts...)
	require.NoError(t, err)
	cli, err = New(base, clientSock, RoleClient, 0, opts...)
	require.NoError(t, err)

	srvOpen := make(chan struct{})
	cliOpen := make(chan struct{})
	srv.OnStream(StreamListenerFunc(func(s Stream) {
		if s.State == StreamOpen {
			close(srvOpen)
		}
	}))
	cli.OnStream(StreamListenerFunc(func(s Stream) {
		if s.State == StreamOpen {
			close(cliOpen)
		}
	}))

	require.NoError(t, cli.ConnectRequest("ws://example.test/", "example.test", http.Header{}))

	select {
	case <-srvOpen:
	case <-time.After(2 * time.Second):
		t.Fatal("server side of the handshake never completed")
	}
	select {
	case <-cliOpen:
	case <-time.After(2 * time.Second):
		t.Fatal("client side of the handshake never completed")
	}

	require.Equal(t, PhaseOpen, srv.Phase())
	require.Equal(t, PhaseOpen, cli.Phase())
	return srv, cli
}

func TestSession_HandshakeReachesOpen(t *testing.T) {
	srv, cli := newOpenPair(t)
	assert.Equal(t, PhaseOpen, srv.Phase())
	assert.Equal(t, PhaseOpen, cli.Phase())
}

func TestSession_MessageRoundTrip(t *testing.T) {
	srv, cli := newOpenPair(t)

	msgCh := make(chan Message, 1)
	srv.OnMessage(MessageListenerFunc(func(m Message) { msgCh <- m }))

	require.NoError(t, cli.SendMessage([]byte("hello"), true))

	select {
	case m := <-msgCh:
		assert.Equal(t, "hello", string(m.Bytes))
		assert.True(t, m.IsText)
	case <-time.After(2 * time.Second):
		t.Fatal("message never delivered to server")
	}
}

func TestSession_CloseTransitionsBothSidesToClosed(t *testing.T) {
	srv, cli := newOpenPair(t)

	cli.SendError(wsproto.CloseNormal, "", KindPeerClosed)

	assert.Eventually(t, func() bool { return cli.Phase() == PhaseClosed }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return srv.Phase() == PhaseClosed }, 2*time.Second, 10*time.Millisecond)
}

// An unmasked frame arriving on a server-role session (purporting to come
// from a client, which RFC 6455 requires to mask) must be rejected as a
// protocol violation rather than accepted.
func TestSession_RejectsUnmaskedFrameFromClient(t *testing.T) {
	srv, _ := newOpenPair(t)

	var kind atomic.Int32
	errCh := make(chan struct{})
	srv.OnError(ErrorListenerFunc(func(e Error) {
		kind.Store(int32(e.Kind))
		select {
		case <-errCh:
		default:
			close(errCh)
		}
	}))

	bad := wsproto.Encode(wsproto.Frame{Fin: true, Opcode: wsproto.OpText, Masked: false, Payload: []byte("x")})
	_, res := srv.sock.Write(bad)
	require.Equal(t, reactor.OK, res)

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server never reported the masking violation")
	}
	assert.Equal(t, int32(KindProtocolViolation), kind.Load())
	assert.Eventually(t, func() bool { return srv.Phase() == PhaseClosed }, 2*time.Second, 10*time.Millisecond)
}

// A masked frame arriving on a client-role session (purporting to come from
// a server, which RFC 6455 forbids to mask) must likewise be rejected.
func TestSession_RejectsMaskedFrameFromServer(t *testing.T) {
	_, cli := newOpenPair(t)

	var kind atomic.Int32
	errCh := make(chan struct{})
	cli.OnError(ErrorListenerFunc(func(e Error) {
		kind.Store(int32(e.Kind))
		select {
		case <-errCh:
		default:
			close(errCh)
		}
	}))

	bad := wsproto.Encode(wsproto.Frame{Fin: true, Opcode: wsproto.OpText, Masked: true, MaskKey: wsproto.NewMaskKey(), Payload: []byte("x")})
	_, res := cli.sock.Write(bad)
	require.Equal(t, reactor.OK, res)

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("client never reported the masking violation")
	}
	assert.Equal(t, int32(KindProtocolViolation), kind.Load())
	assert.Eventually(t, func() bool { return cli.Phase() == PhaseClosed }, 2*time.Second, 10*time.Millisecond)
}
