// SPDX-License-Identifier: Apache-2.0

package wsconn

import (
	"crypto/tls"
	"errors"

	"go.uber.org/zap"

	"github.com/reactorws/reactorws/internal/reactor"
)

// ErrMisconfiguredSession is returned by New when required collaborators
// are missing.
var ErrMisconfiguredSession = errors.New("wsconn: misconfigured session")

// Config gathers everything a Session needs beyond its socket and role.
// Zero-value fields fall back to the defaults New applies.
type Config struct {
	PingIntervalMS uint32
	PongWaitMS     uint32
	MaxFrameSize   int
	MaxRequests    int
	BufferCap      int

	Subprotocols []string
	Deflate      bool

	Compressor     CompressorEngine
	CompressMethod Compressor
	Cipher         Cipher // nil disables encryption
	TLS        TlsEngine
	TLSConfig  *tls.Config
	TLSPipe    *reactor.Pipe // required when TLS != nil; shared across a Base's sessions

	Logger *zap.Logger
}

const (
	defaultPingIntervalMS = 30_000
	defaultPongWaitMS     = 60_000
	defaultMaxFrameSize   = 1 << 20 // 1 MiB
	defaultMaxRequests    = 100
	defaultBufferCap      = 4 << 20 // 4 MiB
	compressThreshold     = 1024
)

func (c *Config) setDefaults() {
	if c.PingIntervalMS == 0 {
		c.PingIntervalMS = defaultPingIntervalMS
	}
	if c.PongWaitMS == 0 {
		c.PongWaitMS = defaultPongWaitMS
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = defaultMaxFrameSize
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = defaultMaxRequests
	}
	if c.BufferCap == 0 {
		c.BufferCap = defaultBufferCap
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Option configures a Config at session construction time.
type Option interface {
	apply(*Config) error
}

type optionFunc func(*Config) error

func (f optionFunc) apply(c *Config) error { return f(c) }

// PingInterval sets the ping-scheduler interval, in seconds.
func PingInterval(sec int) Option {
	return optionFunc(func(c *Config) error {
		c.PingIntervalMS = uint32(sec) * 1000
		return nil
	})
}

// WaitPong sets how long to wait for a pong before declaring the peer dead,
// in seconds.
func WaitPong(sec int) Option {
	return optionFunc(func(c *Config) error {
		c.PongWaitMS = uint32(sec) * 1000
		return nil
	})
}

// MaxRequests sets the HTTP keep-alive cap on the handshake's HTTP side.
func MaxRequests(n int) Option {
	return optionFunc(func(c *Config) error {
		c.MaxRequests = n
		return nil
	})
}

// SegmentSize sets the fragmentation threshold for outbound messages.
func SegmentSize(n int) Option {
	return optionFunc(func(c *Config) error {
		c.MaxFrameSize = n
		return nil
	})
}

// Compressors selects the compressor engine and algorithm used for
// payload compression (RSV1-flagged frames). deflate additionally offers
// or accepts the permessage-deflate wire extension during the handshake;
// every other algorithm is assumed pre-agreed out of band, since only
// permessage-deflate has a wire negotiation per RFC 7692.
func Compressors(engine CompressorEngine, method Compressor, deflate bool) Option {
	return optionFunc(func(c *Config) error {
		c.Compressor = engine
		c.CompressMethod = method
		c.Deflate = deflate
		return nil
	})
}

// Encryption turns payload encryption on (pass/salt construct the default
// ChaCha20-Poly1305 cipher) or off (cipher == nil).
func Encryption(on bool, pass, salt []byte) Option {
	return optionFunc(func(c *Config) error {
		if !on {
			c.Cipher = nil
			return nil
		}
		cipher, err := NewChaCha20Poly1305Cipher(pass, salt)
		if err != nil {
			return err
		}
		c.Cipher = cipher
		return nil
	})
}

// Subprotocol sets the set of subprotocols to offer (client) or accept
// (server).
func Subprotocol(protocols ...string) Option {
	return optionFunc(func(c *Config) error {
		c.Subprotocols = protocols
		return nil
	})
}

// WithTLS attaches a TlsEngine and its config, used when a session is
// constructed in crypted-transport (wss://) mode. pipe is shared across
// every session on the same Base; the caller constructs one reactor.Pipe
// per Base and passes it to every WithTLS call for that Base.
func WithTLS(engine TlsEngine, cfg *tls.Config, pipe *reactor.Pipe) Option {
	return optionFunc(func(c *Config) error {
		c.TLS = engine
		c.TLSConfig = cfg
		c.TLSPipe = pipe
		return nil
	})
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return optionFunc(func(c *Config) error {
		c.Logger = log
		return nil
	})
}

func newConfig(opts ...Option) (Config, error) {
	var c Config
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(&c); err != nil {
			return Config{}, err
		}
	}
	c.setDefaults()
	return c, nil
}
