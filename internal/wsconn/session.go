// SPDX-License-Identifier: Apache-2.0

package wsconn

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xmidt-org/eventor"
	"go.uber.org/zap"

	"github.com/reactorws/reactorws/internal/reactor"
	"github.com/reactorws/reactorws/internal/wsproto"
)

var (
	ErrNotOpen      = errors.New("wsconn: session is not open")
	ErrSendBlocked  = errors.New("wsconn: sends are currently disallowed")
	ErrBufferCapped = errors.New("wsconn: inbound buffer capacity exceeded")
)

var bidCounter uint64

func nextBid() uint64 { return atomic.AddUint64(&bidCounter, 1) }

// Session drives one Websocket connection's state machine (C7): handshake,
// frame reassembly, compression/encryption, ping scheduling and
// back-pressure, on top of a reactor-registered socket.
type Session struct {
	cfg  Config
	base *reactor.Base
	sock *reactor.Socket
	role Role
	sid  uint16
	bid  uint64
	log  *zap.Logger

	io   reactor.Event
	ping reactor.Event
	tlsIO *tlsBridge

	mu      sync.Mutex
	phase   Phase
	inbound []byte
	outbox  []byte

	fragActive bool
	fragOpcode wsproto.Opcode
	fragRSV1   bool
	fragBuf    []byte

	allowSend, allowReceive bool
	stopped, frozen         bool

	lastPingSentMS uint32
	lastPongSeenMS uint32
	elapsedMS      uint32

	deflate wsproto.DeflateParams

	clientKey string // client role: key sent, awaiting 101
	agent     string

	activeListeners    eventor.Eventor[ActiveListener]
	streamListeners     eventor.Eventor[StreamListener]
	handshakeListeners  eventor.Eventor[HandshakeListener]
	messageListeners    eventor.Eventor[MessageListener]
	errorListeners      eventor.Eventor[ErrorListener]
	eraseListeners      eventor.Eventor[EraseListener]
	rawListeners        eventor.Eventor[RawListener]
	endListeners        eventor.Eventor[EndListener]

	closedAtMS  uint32 // wall-clock ms (truncated) at transition into CLOSED, for the server sweep
	nowFunc     func() time.Time
}

// New constructs a Session bound to sock and registers its read interest
// with base. sid identifies the listening acceptor (0 for client-initiated
// sessions); role determines masking direction and handshake side.
func New(base *reactor.Base, sock *reactor.Socket, role Role, sid uint16, opts ...Option) (*Session, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	if base == nil || sock == nil {
		return nil, ErrMisconfiguredSession
	}

	s := &Session{
		cfg:           cfg,
		base:          base,
		sock:          sock,
		role:          role,
		sid:           sid,
		bid:           nextBid(),
		log:           cfg.Logger,
		phase:         PhaseConnecting,
		allowSend:     true,
		allowReceive:  true,
		nowFunc:       time.Now,
	}

	s.io.Set(base, sock.FD(), s.onIO)
	if !s.io.Start(reactor.KindRead) {
		return nil, ErrMisconfiguredSession
	}
	s.ping.SetTimer(base, cfg.PingIntervalMS/2, true, s.onPingTick)
	s.ping.Start()

	if cfg.TLS != nil && role == RoleServer {
		if err := s.upgradeTLS(""); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// upgradeTLS hands the session's descriptor to cfg.TLS and switches the
// session onto the TLS bridge's pipe-driven I/O instead of direct
// readiness-based socket reads/writes. host is the SNI server name for a
// client-role session; unused on the server side. A no-op when TLS isn't
// configured.
func (s *Session) upgradeTLS(host string) error {
	if s.cfg.TLS == nil {
		return nil
	}
	if s.cfg.TLSPipe == nil {
		return ErrMisconfiguredSession
	}
	tlsSock, err := s.cfg.TLS.Wrap(s.sock.FD(), s.role, host, s.cfg.TLSConfig)
	if err != nil {
		return err
	}
	s.io.Stop()
	s.tlsIO = newTLSBridge(tlsSock, s.cfg.TLSPipe, s.onTLSReadable, s.onTLSWriteDone)
	return nil
}

func (s *Session) onTLSReadable() {
	buf, err := s.tlsIO.Drain()
	if len(buf) > 0 {
		s.mu.Lock()
		if len(s.inbound)+len(buf) > s.cfg.BufferCap {
			s.mu.Unlock()
			s.sendErrorLocked(wsproto.CloseUnsupportedData, "buffer capacity exceeded", KindCapacity)
			return
		}
		s.inbound = append(s.inbound, buf...)
		s.mu.Unlock()
		s.processInbound()
	}
	if err != nil {
		s.handlePeerClosed()
	}
}

func (s *Session) onTLSWriteDone() {
	if err := s.tlsIO.WriteErr(); err != nil {
		s.handleTransportError(err)
	}
}

// Bid returns the session's stable connection identity.
func (s *Session) Bid() uint64 { return s.bid }

// Phase returns the session's current state-machine phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// OnActive, OnStream, OnHandshake, OnMessage, OnError, OnErase, OnRaw and
// OnEnd register listeners and return a CancelFunc to unregister them.
func (s *Session) OnActive(l ActiveListener) CancelFunc { return CancelFunc(s.activeListeners.Add(l)) }
func (s *Session) OnStream(l StreamListener) CancelFunc { return CancelFunc(s.streamListeners.Add(l)) }
func (s *Session) OnHandshake(l HandshakeListener) CancelFunc {
	return CancelFunc(s.handshakeListeners.Add(l))
}
func (s *Session) OnMessage(l MessageListener) CancelFunc {
	return CancelFunc(s.messageListeners.Add(l))
}
func (s *Session) OnError(l ErrorListener) CancelFunc { return CancelFunc(s.errorListeners.Add(l)) }
func (s *Session) OnErase(l EraseListener) CancelFunc  { return CancelFunc(s.eraseListeners.Add(l)) }
func (s *Session) OnRaw(l RawListener) CancelFunc       { return CancelFunc(s.rawListeners.Add(l)) }
func (s *Session) OnEnd(l EndListener) CancelFunc       { return CancelFunc(s.endListeners.Add(l)) }

// ConnectRequest sends the client-side HTTP upgrade request; call once,
// immediately after New for a client-role session.
func (s *Session) ConnectRequest(url, host string, extra http.Header) error {
	if err := s.upgradeTLS(host); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	offers := []string(nil)
	if s.cfg.Deflate {
		offers = []string{wsproto.OfferString()}
	}
	cr, err := wsproto.BuildRequest(url, extra, s.cfg.Subprotocols, offers)
	if err != nil {
		return err
	}
	s.clientKey = cr.Key

	var buf bytes.Buffer
	if err := cr.Request.Write(&buf); err != nil {
		return err
	}
	s.phase = PhaseHandshakeSent
	return s.writeLocked(buf.Bytes())
}

func (s *Session) onIO(fd int, kind reactor.EventKind) {
	switch kind {
	case reactor.KindClose:
		s.handleTransportError(errors.New("wsconn: peer hangup"))
	case reactor.KindRead:
		s.handleReadable()
	case reactor.KindWrite:
		s.handleWritable()
	}
}

func (s *Session) handleReadable() {
	buf := make([]byte, 64*1024)
	for {
		n, res := s.sock.Read(buf)
		if n > 0 {
			s.mu.Lock()
			if len(s.inbound)+n > s.cfg.BufferCap {
				s.mu.Unlock()
				s.sendErrorLocked(wsproto.CloseUnsupportedData, "buffer capacity exceeded", KindCapacity)
				return
			}
			s.inbound = append(s.inbound, buf[:n]...)
			s.mu.Unlock()
		}
		switch res {
		case reactor.OK:
			continue
		case reactor.WouldBlock:
			s.processInbound()
			return
		case reactor.Closed:
			s.processInbound()
			s.handlePeerClosed()
			return
		default:
			s.handleTransportError(errors.New("wsconn: read error"))
			return
		}
	}
}

func (s *Session) processInbound() {
	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()

	switch phase {
	case PhaseConnecting:
		s.tryAcceptHandshake()
	case PhaseHandshakeSent:
		s.tryClientHandshake()
	case PhaseOpen:
		s.drainFrames()
	}
}

func (s *Session) tryAcceptHandshake() {
	s.mu.Lock()
	idx := bytes.Index(s.inbound, []byte("\r\n\r\n"))
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	raw := s.inbound[:idx+4]
	rest := append([]byte(nil), s.inbound[idx+4:]...)
	s.mu.Unlock()

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		s.fireError(LevelError, KindHandshakeFailed, "malformed handshake request")
		s.sendErrorLocked(wsproto.CloseProtocolError, "malformed request", KindHandshakeFailed)
		return
	}

	key, verr := wsproto.ValidateRequest(req, nil)
	if verr != nil {
		var herr *wsproto.HandshakeError
		if errors.As(verr, &herr) {
			s.writeRawLocked(rejectBytes(herr))
		}
		s.fireError(LevelError, KindHandshakeFailed, verr.Error())
		s.transitionClosed()
		return
	}

	offered := wsproto.ParseSubprotocols(req.Header.Get("Sec-WebSocket-Protocol"))
	chosen := wsproto.NegotiateSubprotocol(offered, s.cfg.Subprotocols)

	var extHeader string
	if s.cfg.Deflate {
		offer := wsproto.ParseExtensions(req.Header.Get("Sec-WebSocket-Extensions"))
		neg := wsproto.NegotiateDeflate(offer, true, 15)
		s.mu.Lock()
		s.deflate = neg
		s.mu.Unlock()
		extHeader = neg.Encode()
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := wsproto.WriteAccept(w, key, chosen, extHeader); err != nil {
		s.handleTransportError(err)
		return
	}

	s.mu.Lock()
	s.inbound = rest
	s.phase = PhaseOpen
	s.agent = req.UserAgent()
	s.mu.Unlock()

	if err := s.writeLocked(buf.Bytes()); err != nil {
		s.handleTransportError(err)
		return
	}

	s.fireStream(StreamOpen)
	s.fireHandshake()
	s.drainFrames()
}

func rejectBytes(herr *wsproto.HandshakeError) []byte {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	_ = wsproto.WriteReject(w, herr)
	return buf.Bytes()
}

func (s *Session) tryClientHandshake() {
	s.mu.Lock()
	idx := bytes.Index(s.inbound, []byte("\r\n\r\n"))
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	raw := s.inbound[:idx+4]
	rest := append([]byte(nil), s.inbound[idx+4:]...)
	key := s.clientKey
	s.mu.Unlock()

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		s.fireError(LevelError, KindHandshakeFailed, "malformed handshake response")
		s.transitionClosed()
		return
	}
	if verr := wsproto.ValidateResponse(resp, key); verr != nil {
		s.fireError(LevelError, KindHandshakeFailed, verr.Error())
		s.transitionClosed()
		return
	}

	if s.cfg.Deflate {
		s.mu.Lock()
		s.deflate = wsproto.ParseExtensions(resp.Header.Get("Sec-WebSocket-Extensions"))
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.inbound = rest
	s.phase = PhaseOpen
	s.mu.Unlock()

	s.fireStream(StreamOpen)
	s.fireHandshake()
	s.drainFrames()
}

func (s *Session) drainFrames() {
	for {
		s.mu.Lock()
		if s.phase != PhaseOpen && s.phase != PhaseClosing {
			s.mu.Unlock()
			return
		}
		maxPayload := uint64(s.cfg.MaxFrameSize) * 4
		f, res, n := wsproto.Decode(s.inbound, maxPayload)
		if res == wsproto.ParsePartial {
			s.mu.Unlock()
			return
		}
		if res == wsproto.ParseBad {
			s.mu.Unlock()
			s.sendErrorLocked(wsproto.CloseProtocolError, "framing error", KindProtocolViolation)
			return
		}
		s.inbound = s.inbound[n:]
		s.mu.Unlock()

		// RFC 6455 §5.1: a server must reject an unmasked frame from a
		// client, and a client must reject a masked frame from a server.
		if wantMasked := s.role == RoleServer; f.Masked != wantMasked {
			s.sendErrorLocked(wsproto.CloseProtocolError, "masking violation", KindProtocolViolation)
			return
		}

		keep := true
		s.rawListeners.Visit(func(l RawListener) {
			if !l.OnRaw(Raw{Bid: s.bid, Bytes: f.Payload}) {
				keep = false
			}
		})
		if !keep {
			continue
		}

		s.handleFrame(f)
	}
}

func (s *Session) handleFrame(f wsproto.Frame) {
	switch f.Opcode {
	case wsproto.OpPing:
		s.writeRawLocked(wsproto.EncodePong(f.Payload, s.role == RoleClient))
		s.mu.Lock()
		s.lastPongSeenMS = s.elapsedMS
		s.mu.Unlock()
	case wsproto.OpPong:
		s.mu.Lock()
		if len(f.Payload) == 8 && binary.BigEndian.Uint64(f.Payload) != s.bid {
			s.mu.Unlock()
			s.log.Warn("wsconn: pong payload mismatch, ignoring", zap.Uint64("bid", s.bid))
			return
		}
		s.lastPongSeenMS = s.elapsedMS
		s.mu.Unlock()
	case wsproto.OpClose:
		s.handlePeerClose(f.Payload)
	case wsproto.OpText, wsproto.OpBinary:
		if !f.Fin {
			s.mu.Lock()
			s.fragActive = true
			s.fragOpcode = f.Opcode
			s.fragRSV1 = f.RSV1
			s.fragBuf = append([]byte(nil), f.Payload...)
			s.mu.Unlock()
			return
		}
		s.finalizeMessage(f.Opcode, f.RSV1, f.Payload)
	case wsproto.OpContinuation:
		s.mu.Lock()
		if !s.fragActive {
			s.mu.Unlock()
			s.sendErrorLocked(wsproto.CloseProtocolError, "unexpected continuation", KindProtocolViolation)
			return
		}
		s.fragBuf = append(s.fragBuf, f.Payload...)
		if !f.Fin {
			s.mu.Unlock()
			return
		}
		opcode, rsv1, payload := s.fragOpcode, s.fragRSV1, s.fragBuf
		s.fragActive = false
		s.fragBuf = nil
		s.mu.Unlock()
		s.finalizeMessage(opcode, rsv1, payload)
	}
}

func (s *Session) finalizeMessage(opcode wsproto.Opcode, compressed bool, payload []byte) {
	var err error
	if s.cfg.Cipher != nil {
		payload, err = s.cfg.Cipher.Decrypt(payload)
		if err != nil {
			s.fireError(LevelError, KindDecodeError, "decryption failed")
			s.sendErrorLocked(wsproto.CloseUnsupportedData, "decryption failed", KindDecodeError)
			return
		}
	}
	if compressed {
		if s.cfg.Compressor == nil || s.cfg.CompressMethod == CompressNone {
			s.fireError(LevelError, KindDecodeError, "compressed frame without negotiated compressor")
			s.sendErrorLocked(wsproto.CloseUnsupportedData, "decompression error", KindDecodeError)
			return
		}
		payload, err = s.cfg.Compressor.Decompress(s.cfg.CompressMethod, payload)
		if err != nil {
			s.fireError(LevelError, KindDecodeError, "decompression failed")
			s.sendErrorLocked(wsproto.CloseUnsupportedData, "decompression error", KindDecodeError)
			return
		}
	}

	s.messageListeners.Visit(func(l MessageListener) {
		l.OnMessage(Message{Bid: s.bid, Bytes: payload, IsText: opcode == wsproto.OpText})
	})
}

// SendMessage compresses (when large enough and negotiated), encrypts
// (when configured) and frames payload, fragmenting at MaxFrameSize.
func (s *Session) SendMessage(payload []byte, isText bool) error {
	s.mu.Lock()
	if s.phase != PhaseOpen || !s.allowSend {
		s.mu.Unlock()
		return ErrSendBlocked
	}
	s.mu.Unlock()

	compressed := false
	if len(payload) >= compressThreshold && s.cfg.Compressor != nil && s.cfg.CompressMethod != CompressNone {
		if out, err := s.cfg.Compressor.Compress(s.cfg.CompressMethod, payload); err == nil {
			payload = out
			compressed = true
		}
	}
	if s.cfg.Cipher != nil {
		out, err := s.cfg.Cipher.Encrypt(payload)
		if err != nil {
			return err
		}
		payload = out
	}

	opcode := wsproto.OpBinary
	if isText {
		opcode = wsproto.OpText
	}

	masked := s.role == RoleClient
	maxSeg := s.cfg.MaxFrameSize
	if maxSeg <= 0 || len(payload) <= maxSeg {
		return s.writeFrame(wsproto.Frame{Fin: true, RSV1: compressed, Opcode: opcode, Masked: masked, Payload: payload})
	}

	for off := 0; off < len(payload); off += maxSeg {
		end := off + maxSeg
		if end > len(payload) {
			end = len(payload)
		}
		fin := end == len(payload)
		op := wsproto.OpContinuation
		rsv1 := false
		if off == 0 {
			op = opcode
			rsv1 = compressed
		}
		if err := s.writeFrame(wsproto.Frame{Fin: fin, RSV1: rsv1, Opcode: op, Masked: masked, Payload: payload[off:end]}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) writeFrame(f wsproto.Frame) error {
	if f.Masked {
		f.MaskKey = wsproto.NewMaskKey()
	}
	return s.writeLocked(wsproto.Encode(f))
}

func (s *Session) writeRawLocked(b []byte) {
	_ = s.writeLocked(b)
}

// SendError sends a CLOSE frame with code/text, marks the session stopped
// (subsequent sends blocked), and passes through CLOSING to CLOSED, closing
// the socket without waiting for the peer's CLOSE.
func (s *Session) SendError(code uint16, text string, kind ErrorKind) {
	s.sendErrorLocked(code, text, kind)
}

func (s *Session) sendErrorLocked(code uint16, text string, kind ErrorKind) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.allowSend = false
	wasOpen := s.phase == PhaseOpen
	if wasOpen {
		s.phase = PhaseClosing
	}
	s.mu.Unlock()

	masked := s.role == RoleClient
	_ = s.writeLocked(wsproto.EncodeClose(code, text, masked))
	s.fireError(LevelError, kind, text)
	s.transitionClosed()
}

func (s *Session) handlePeerClose(payload []byte) {
	s.mu.Lock()
	alreadySent := s.stopped
	s.phase = PhaseClosing
	s.mu.Unlock()

	if !alreadySent {
		code, _ := wsproto.DecodeCloseReason(payload)
		masked := s.role == RoleClient
		_ = s.writeLocked(wsproto.EncodeClose(code, "", masked))
	}
	s.fireError(LevelWarn, KindPeerClosed, "peer closed")
	s.transitionClosed()
}

func (s *Session) handlePeerClosed() {
	s.fireError(LevelWarn, KindPeerClosed, "peer hangup")
	s.transitionClosed()
}

func (s *Session) handleTransportError(err error) {
	s.fireError(LevelError, KindTransportError, err.Error())
	s.transitionClosed()
}

func (s *Session) transitionClosed() {
	s.mu.Lock()
	if s.phase == PhaseClosed {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseClosed
	s.closedAtMS = uint32(s.nowFunc().UnixMilli())
	s.mu.Unlock()

	s.io.Stop()
	s.ping.Stop()
	if s.tlsIO != nil {
		_ = s.tlsIO.Close()
	} else {
		_ = s.sock.Close()
	}

	s.fireStream(StreamClose)
	s.endListeners.Visit(func(l EndListener) {
		l.OnEnd(End{Sid: s.sid, Bid: s.bid, Direction: EndRecv})
	})
}

// ClosedAgeMS returns how long ago (in wall-clock milliseconds) the session
// transitioned to CLOSED, or false if it has not yet.
func (s *Session) ClosedAgeMS() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseClosed {
		return 0, false
	}
	return uint32(s.nowFunc().UnixMilli()) - s.closedAtMS, true
}

// Freeze toggles back-pressure: disables the socket's READ interest
// without affecting writes.
func (s *Session) Freeze(v bool) {
	s.mu.Lock()
	s.frozen = v
	s.mu.Unlock()
	s.io.Enable(reactor.KindRead, !v)
}

func (s *Session) handleWritable() {
	s.mu.Lock()
	buf := s.outbox
	s.mu.Unlock()
	if len(buf) == 0 {
		s.io.Enable(reactor.KindWrite, false)
		return
	}
	s.flushOutbox()
}

func (s *Session) writeLocked(b []byte) error {
	if s.tlsIO != nil {
		s.tlsIO.Enqueue(b)
		return nil
	}
	s.mu.Lock()
	s.outbox = append(s.outbox, b...)
	s.mu.Unlock()
	s.flushOutbox()
	return nil
}

func (s *Session) flushOutbox() {
	for {
		s.mu.Lock()
		if len(s.outbox) == 0 {
			s.mu.Unlock()
			return
		}
		buf := s.outbox
		s.mu.Unlock()

		n, res := s.sock.Write(buf)
		switch res {
		case reactor.OK:
			s.mu.Lock()
			s.outbox = s.outbox[n:]
			s.mu.Unlock()
			continue
		case reactor.WouldBlock:
			s.io.Enable(reactor.KindWrite, true)
			return
		default:
			s.handleTransportError(errors.New("wsconn: write error"))
			return
		}
	}
}

// onPingTick is the ping scheduler (§4.7): fired every
// PingIntervalMS/2 by the timer this session registered in New.
func (s *Session) onPingTick(int, reactor.EventKind) {
	half := s.cfg.PingIntervalMS / 2
	if half == 0 {
		half = 1
	}

	s.mu.Lock()
	s.elapsedMS += half
	phase := s.phase
	silence := s.elapsedMS - s.lastPongSeenMS
	sinceLastPing := s.elapsedMS - s.lastPingSentMS
	s.mu.Unlock()

	if phase != PhaseOpen {
		return
	}

	if silence >= s.cfg.PongWaitMS {
		s.sendErrorLocked(wsproto.CloseInternalNoPong, "PING response not received", KindTimeout)
		return
	}
	if sinceLastPing > half {
		var payload [8]byte
		binary.BigEndian.PutUint64(payload[:], s.bid)
		s.writeRawLocked(wsproto.EncodePing(payload[:], s.role == RoleClient))
		s.mu.Lock()
		s.lastPingSentMS = s.elapsedMS
		s.mu.Unlock()
	}
}

func (s *Session) fireStream(st StreamState) {
	s.streamListeners.Visit(func(l StreamListener) {
		l.OnStream(Stream{Sid: uint64(s.sid), Bid: s.bid, State: st, At: s.nowFunc()})
	})
}

func (s *Session) fireHandshake() {
	s.handshakeListeners.Visit(func(l HandshakeListener) {
		l.OnHandshake(Handshake{Sid: uint64(s.sid), Bid: s.bid, Agent: s.agent})
	})
}

func (s *Session) fireError(level ErrorLevel, kind ErrorKind, text string) {
	s.errorListeners.Visit(func(l ErrorListener) {
		l.OnError(Error{Bid: s.bid, Level: level, Kind: kind, Text: text})
	})
}
