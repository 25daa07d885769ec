// SPDX-License-Identifier: Apache-2.0

package wsconn

import (
	"sync"

	"github.com/reactorws/reactorws/internal/reactor"
)

// tlsBridge runs a blocking TlsSocket on dedicated goroutines and exposes
// a non-blocking surface a Session drives from reactor callbacks,
// signalling readiness through a shared reactor.Pipe (C4) rather than a
// readiness-based fd registration — see TlsEngine's doc comment.
type tlsBridge struct {
	sock TlsSocket
	pipe *reactor.Pipe

	readID, writeID uint64

	mu       sync.Mutex
	readBuf  []byte
	readErr  error
	writeBuf []byte
	writeErr error
	closed   bool

	wake chan struct{}
}

func newTLSBridge(sock TlsSocket, pipe *reactor.Pipe, onReadable, onWriteDone func()) *tlsBridge {
	b := &tlsBridge{sock: sock, pipe: pipe, wake: make(chan struct{}, 1)}
	b.readID = pipe.Emplace(func(uint64, uint64) { onReadable() })
	b.writeID = pipe.Emplace(func(uint64, uint64) { onWriteDone() })
	go b.readLoop()
	go b.writeLoop()
	return b
}

func (b *tlsBridge) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := b.sock.Read(buf)

		b.mu.Lock()
		if n > 0 {
			b.readBuf = append(b.readBuf, buf[:n]...)
		}
		if err != nil {
			b.readErr = err
		}
		closed := b.closed
		b.mu.Unlock()

		_ = b.pipe.Launch(b.readID, 0)
		if err != nil || closed {
			return
		}
	}
}

func (b *tlsBridge) writeLoop() {
	for {
		b.mu.Lock()
		for len(b.writeBuf) == 0 && !b.closed {
			b.mu.Unlock()
			<-b.wake
			b.mu.Lock()
		}
		if b.closed && len(b.writeBuf) == 0 {
			b.mu.Unlock()
			return
		}
		buf := b.writeBuf
		b.writeBuf = nil
		b.mu.Unlock()

		_, err := b.sock.Write(buf)
		if err != nil {
			b.mu.Lock()
			b.writeErr = err
			b.mu.Unlock()
		}
		_ = b.pipe.Launch(b.writeID, 0)
	}
}

// Enqueue appends plaintext for the write goroutine to flush.
func (b *tlsBridge) Enqueue(p []byte) {
	b.mu.Lock()
	b.writeBuf = append(b.writeBuf, p...)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Drain removes and returns whatever plaintext has accumulated since the
// last call, plus a terminal read error if the peer closed or the
// transport failed.
func (b *tlsBridge) Drain() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := b.readBuf
	b.readBuf = nil
	return buf, b.readErr
}

// WriteErr returns and clears any write error recorded by the last flush.
func (b *tlsBridge) WriteErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.writeErr
	b.writeErr = nil
	return err
}

func (b *tlsBridge) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
	b.pipe.Erase(b.readID)
	b.pipe.Erase(b.writeID)
	return b.sock.Close()
}
