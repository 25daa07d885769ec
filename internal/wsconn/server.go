// SPDX-License-Identifier: Apache-2.0

package wsconn

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/xmidt-org/eventor"
	"go.uber.org/zap"

	"github.com/reactorws/reactorws/internal/reactor"
	"github.com/reactorws/reactorws/internal/wsproto"
)

// ErrCapacityExceeded is fired (via the error listeners, Bid 0) when an
// inbound connection is refused because the configured connection cap has
// been reached.
var ErrCapacityExceeded = errors.New("wsconn: connection capacity exceeded")

const sweepIntervalMS = 3000

// ServerConfig gathers acceptor-level settings. SessionOpts is passed
// through to every accepted Session.
type ServerConfig struct {
	// MaxConnections caps tracked sessions, including CLOSED ones the sweep
	// has not yet freed; 0 means unbounded.
	MaxConnections int

	SessionOpts []Option
	Logger      *zap.Logger
}

// Server accepts inbound Websocket connections (C8): a background
// goroutine blocks in Listener.Accept while the reactor Base drives every
// accepted session's I/O. A periodic sweep frees CLOSED session
// bookkeeping once it's been closed for at least sweepIntervalMS, firing
// EraseListener for each one.
type Server struct {
	base *reactor.Base
	ln   *reactor.Listener
	cfg  ServerConfig
	log  *zap.Logger

	sweep reactor.Event

	mu       sync.Mutex
	sessions map[uint64]*Session
	nextSid  uint16
	stopped  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	activeListeners eventor.Eventor[ActiveListener]
	eraseListeners  eventor.Eventor[EraseListener]

	// forwarded to every accepted session's equivalents
	streamListeners    eventor.Eventor[StreamListener]
	handshakeListeners eventor.Eventor[HandshakeListener]
	messageListeners   eventor.Eventor[MessageListener]
	errorListeners     eventor.Eventor[ErrorListener]
	rawListeners       eventor.Eventor[RawListener]
	endListeners       eventor.Eventor[EndListener]
}

// NewServer binds ln (already listening) to base, ready for Start.
func NewServer(base *reactor.Base, ln *reactor.Listener, cfg ServerConfig) (*Server, error) {
	if base == nil || ln == nil {
		return nil, ErrMisconfiguredSession
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	srv := &Server{
		base:     base,
		ln:       ln,
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: make(map[uint64]*Session),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	srv.sweep.SetTimer(base, sweepIntervalMS, true, srv.onSweep)
	srv.sweep.Start()

	return srv, nil
}

// Start begins accepting connections in a background goroutine.
func (srv *Server) Start() {
	go srv.acceptLoop()
}

// Stop closes the listener, unwinding the accept goroutine, and stops the
// sweep timer. Already-open sessions are left running; callers that want a
// full drain should close each one explicitly (e.g. via Broadcast of a
// CLOSE, or by stopping base itself).
func (srv *Server) Stop() {
	srv.mu.Lock()
	if srv.stopped {
		srv.mu.Unlock()
		return
	}
	srv.stopped = true
	srv.mu.Unlock()

	close(srv.stopCh)
	_ = srv.ln.Close()
	<-srv.doneCh
	srv.sweep.Stop()
}

// Len reports the number of sessions the server is currently tracking
// (including ones that have reached CLOSED but not yet been swept).
func (srv *Server) Len() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

func (srv *Server) acceptLoop() {
	defer close(srv.doneCh)
	for {
		sock, err := srv.ln.Accept()
		if err != nil {
			select {
			case <-srv.stopCh:
				return
			default:
				srv.log.Warn("reactorws: accept error", zap.Error(err))
				continue
			}
		}
		srv.handleAccept(sock)
	}
}

func (srv *Server) handleAccept(sock *reactor.Socket) {
	srv.mu.Lock()
	if srv.cfg.MaxConnections > 0 && len(srv.sessions) >= srv.cfg.MaxConnections {
		srv.mu.Unlock()
		reject := rejectBytes(&wsproto.HandshakeError{
			Status: http.StatusServiceUnavailable,
			Reason: ErrCapacityExceeded.Error(),
		})
		_, _ = sock.Write(reject)
		sock.Close()
		srv.errorListeners.Visit(func(l ErrorListener) {
			l.OnError(Error{Level: LevelWarn, Kind: KindCapacity, Text: ErrCapacityExceeded.Error()})
		})
		return
	}
	srv.nextSid++
	sid := srv.nextSid
	srv.mu.Unlock()

	sess, err := New(srv.base, sock, RoleServer, sid, srv.cfg.SessionOpts...)
	if err != nil {
		sock.Close()
		srv.errorListeners.Visit(func(l ErrorListener) {
			l.OnError(Error{Level: LevelError, Kind: KindTransportError, Text: err.Error()})
		})
		return
	}

	srv.mu.Lock()
	srv.sessions[sess.Bid()] = sess
	srv.mu.Unlock()

	srv.wireSession(sess)

	srv.activeListeners.Visit(func(l ActiveListener) {
		l.OnActive(Active{Bid: sess.Bid(), State: ActiveConnect, At: time.Now()})
	})
}

func (srv *Server) wireSession(sess *Session) {
	sess.OnStream(StreamListenerFunc(func(st Stream) {
		srv.streamListeners.Visit(func(l StreamListener) { l.OnStream(st) })
		if st.State == StreamClose {
			srv.activeListeners.Visit(func(l ActiveListener) {
				l.OnActive(Active{Bid: sess.Bid(), State: ActiveDisconnect, At: time.Now()})
			})
		}
	}))
	sess.OnHandshake(HandshakeListenerFunc(func(h Handshake) {
		srv.handshakeListeners.Visit(func(l HandshakeListener) { l.OnHandshake(h) })
	}))
	sess.OnMessage(MessageListenerFunc(func(m Message) {
		srv.messageListeners.Visit(func(l MessageListener) { l.OnMessage(m) })
	}))
	sess.OnError(ErrorListenerFunc(func(e Error) {
		srv.errorListeners.Visit(func(l ErrorListener) { l.OnError(e) })
	}))
	sess.OnRaw(RawListenerFunc(func(r Raw) bool {
		keep := true
		srv.rawListeners.Visit(func(l RawListener) {
			if !l.OnRaw(r) {
				keep = false
			}
		})
		return keep
	}))
	sess.OnEnd(EndListenerFunc(func(e End) {
		srv.endListeners.Visit(func(l EndListener) { l.OnEnd(e) })
	}))
}

// onSweep runs on the reactor thread every sweepIntervalMS, freeing
// bookkeeping for sessions that have sat CLOSED for at least that long.
func (srv *Server) onSweep(int, reactor.EventKind) {
	var freed []uint64

	srv.mu.Lock()
	for bid, sess := range srv.sessions {
		if age, ok := sess.ClosedAgeMS(); ok && age >= sweepIntervalMS {
			delete(srv.sessions, bid)
			freed = append(freed, bid)
		}
	}
	srv.mu.Unlock()

	for _, bid := range freed {
		srv.eraseListeners.Visit(func(l EraseListener) {
			l.OnErase(Erase{Bid: bid})
		})
	}
}

// Send writes payload to the single session identified by bid, returning
// ErrMisconfiguredSession if no such session is tracked.
func (srv *Server) Send(bid uint64, payload []byte, isText bool) error {
	srv.mu.Lock()
	sess, ok := srv.sessions[bid]
	srv.mu.Unlock()

	if !ok {
		return ErrMisconfiguredSession
	}
	return sess.SendMessage(payload, isText)
}

// Broadcast sends payload to every currently-OPEN session.
func (srv *Server) Broadcast(payload []byte, isText bool) {
	srv.mu.Lock()
	targets := make([]*Session, 0, len(srv.sessions))
	for _, sess := range srv.sessions {
		targets = append(targets, sess)
	}
	srv.mu.Unlock()

	for _, sess := range targets {
		if sess.Phase() == PhaseOpen {
			_ = sess.SendMessage(payload, isText)
		}
	}
}

func (srv *Server) OnActive(l ActiveListener) CancelFunc { return CancelFunc(srv.activeListeners.Add(l)) }
func (srv *Server) OnStream(l StreamListener) CancelFunc { return CancelFunc(srv.streamListeners.Add(l)) }
func (srv *Server) OnHandshake(l HandshakeListener) CancelFunc {
	return CancelFunc(srv.handshakeListeners.Add(l))
}
func (srv *Server) OnMessage(l MessageListener) CancelFunc {
	return CancelFunc(srv.messageListeners.Add(l))
}
func (srv *Server) OnError(l ErrorListener) CancelFunc { return CancelFunc(srv.errorListeners.Add(l)) }
func (srv *Server) OnErase(l EraseListener) CancelFunc  { return CancelFunc(srv.eraseListeners.Add(l)) }
func (srv *Server) OnRaw(l RawListener) CancelFunc      { return CancelFunc(srv.rawListeners.Add(l)) }
func (srv *Server) OnEnd(l EndListener) CancelFunc      { return CancelFunc(srv.endListeners.Add(l)) }
