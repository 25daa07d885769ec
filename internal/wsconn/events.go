// SPDX-License-Identifier: Apache-2.0

// Package wsconn drives Websocket sessions (client and server) on top of
// internal/reactor and internal/wsproto: the handshake, frame
// reassembly, compression/encryption, ping scheduling and the state
// machine CONNECTING -> OPEN -> CLOSING -> CLOSED.
package wsconn

import "time"

// ErrorLevel classifies the severity of an Error event.
type ErrorLevel int

const (
	LevelWarn ErrorLevel = iota
	LevelError
)

// ErrorKind identifies which error-handling design kind a session's Error
// event belongs to.
type ErrorKind int

const (
	KindHandshakeFailed ErrorKind = iota
	KindProtocolViolation
	KindDecodeError
	KindTimeout
	KindPeerClosed
	KindTransportError
	KindCapacity
)

// StreamState is fired with Stream events.
type StreamState int

const (
	StreamOpen StreamState = iota
	StreamClose
)

// ActiveState is fired with Active events.
type ActiveState int

const (
	ActiveConnect ActiveState = iota
	ActiveDisconnect
)

// EndDirection distinguishes the Ends event's direction.
type EndDirection int

const (
	EndRecv EndDirection = iota
	EndSend
)

// Active is fired when a session's underlying connection comes up or goes
// down, keyed by bid (the session's stable identity).
type Active struct {
	Bid   uint64
	State ActiveState
	At    time.Time
}

// Stream is fired on handshake completion and on final teardown.
type Stream struct {
	Sid   uint64
	Bid   uint64
	State StreamState
	At    time.Time
}

// Handshake is fired once, right after a session reaches OPEN.
type Handshake struct {
	Sid   uint64
	Bid   uint64
	Agent string
}

// Message is fired for every application message delivered to the user.
type Message struct {
	Bid    uint64
	Bytes  []byte
	IsText bool
}

// Error is fired for any recoverable or terminal error condition.
type Error struct {
	Bid   uint64
	Level ErrorLevel
	Kind  ErrorKind
	Text  string
}

// Erase is fired once a CLOSED session's bookkeeping record is finally
// freed by the periodic sweep.
type Erase struct {
	Bid uint64
}

// Raw is fired with the payload of every inbound frame once the codec has
// decoded it and before the session acts on it; returning false from the
// listener makes the session skip that frame (used for pass-through
// inspection/firewalling).
type Raw struct {
	Bid   uint64
	Bytes []byte
}

// End is fired once a directional half of the connection has performed its
// final read or write.
type End struct {
	Sid       uint64
	Bid       uint64
	Direction EndDirection
}

// CancelFunc cancels a previously registered listener.
type CancelFunc func()

type ActiveListener interface{ OnActive(Active) }
type ActiveListenerFunc func(Active)

func (f ActiveListenerFunc) OnActive(a Active) { f(a) }

type StreamListener interface{ OnStream(Stream) }
type StreamListenerFunc func(Stream)

func (f StreamListenerFunc) OnStream(s Stream) { f(s) }

type HandshakeListener interface{ OnHandshake(Handshake) }
type HandshakeListenerFunc func(Handshake)

func (f HandshakeListenerFunc) OnHandshake(h Handshake) { f(h) }

type MessageListener interface{ OnMessage(Message) }
type MessageListenerFunc func(Message)

func (f MessageListenerFunc) OnMessage(m Message) { f(m) }

type ErrorListener interface{ OnError(Error) }
type ErrorListenerFunc func(Error)

func (f ErrorListenerFunc) OnError(e Error) { f(e) }

type EraseListener interface{ OnErase(Erase) }
type EraseListenerFunc func(Erase)

func (f EraseListenerFunc) OnErase(e Erase) { f(e) }

// RawListener returns false to tell the session to drop the decoded frame
// instead of handling it.
type RawListener interface{ OnRaw(Raw) bool }
type RawListenerFunc func(Raw) bool

func (f RawListenerFunc) OnRaw(r Raw) bool { return f(r) }

type EndListener interface{ OnEnd(End) }
type EndListenerFunc func(End)

func (f EndListenerFunc) OnEnd(e End) { f(e) }
