// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/reactorws/reactorws/internal/reactor"
	"github.com/reactorws/reactorws/internal/wsconn"
)

var ErrSessionConfig = errors.New("session configuration error")

func provideBase(logger *zap.Logger) (*reactor.Base, error) {
	return reactor.New(reactor.WithLogger(logger.Named("reactor")))
}

func provideListener(listen Listen) (*reactor.Listener, error) {
	network := listen.Network
	if network == "" {
		network = "tcp"
	}
	return reactor.Listen(network, listen.Address)
}

type serverIn struct {
	fx.In
	Base    *reactor.Base
	Ln      *reactor.Listener
	Listen  Listen
	Session Session
	Logger  *zap.Logger
}

func provideServer(in serverIn) (*wsconn.Server, error) {
	sessOpts, err := sessionOptions(in.Session, in.Logger)
	if err != nil {
		return nil, err
	}

	if in.Listen.TLS != nil {
		tlsCfg, err := in.Listen.TLS.New()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionConfig, err)
		}
		pipe, err := reactor.NewPipe(in.Base)
		if err != nil {
			return nil, err
		}
		sessOpts = append(sessOpts, wsconn.WithTLS(wsconn.DefaultTlsEngine{}, tlsCfg, pipe))
	}

	cfg := wsconn.ServerConfig{
		MaxConnections: in.Listen.MaxConnections,
		SessionOpts:    sessOpts,
		Logger:         in.Logger.Named("wsconn.server"),
	}

	return wsconn.NewServer(in.Base, in.Ln, cfg)
}

func sessionOptions(s Session, logger *zap.Logger) ([]wsconn.Option, error) {
	method, err := parseCompressor(s.CompressMethod)
	if err != nil {
		return nil, err
	}

	engine, err := wsconn.NewDefaultCompressorEngine()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionConfig, err)
	}

	opts := []wsconn.Option{
		wsconn.PingInterval(s.PingIntervalSec),
		wsconn.WaitPong(s.WaitPongSec),
		wsconn.MaxRequests(s.MaxRequests),
		wsconn.SegmentSize(s.SegmentSize),
		wsconn.Compressors(engine, method, s.Deflate),
		wsconn.Subprotocol(s.Subprotocols...),
		wsconn.WithLogger(logger),
	}

	if s.Encryption.Enabled {
		opts = append(opts, wsconn.Encryption(true, []byte(s.Encryption.Password), []byte(s.Encryption.Salt)))
	}

	return opts, nil
}

func parseCompressor(name string) (wsconn.Compressor, error) {
	switch name {
	case "", "none":
		return wsconn.CompressNone, nil
	case "deflate":
		return wsconn.CompressDeflate, nil
	case "gzip":
		return wsconn.CompressGzip, nil
	case "brotli":
		return wsconn.CompressBrotli, nil
	case "zstd":
		return wsconn.CompressZstd, nil
	case "lz4":
		return wsconn.CompressLz4, nil
	case "bzip2":
		return wsconn.CompressBzip2, nil
	default:
		return wsconn.CompressNone, fmt.Errorf("%w: unknown compressor %q", ErrSessionConfig, name)
	}
}
