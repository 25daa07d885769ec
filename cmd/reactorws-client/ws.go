// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/reactorws/reactorws/internal/auth"
	"github.com/reactorws/reactorws/internal/reactor"
	"github.com/reactorws/reactorws/internal/wsconn"
)

var ErrSessionConfig = errors.New("session configuration error")

func provideBase(logger *zap.Logger) (*reactor.Base, error) {
	return reactor.New(reactor.WithLogger(logger.Named("reactor")))
}

type clientIn struct {
	fx.In
	Base    *reactor.Base
	Connect Connect
	Session Session
	Auth    *auth.Auth
	Logger  *zap.Logger
}

func provideClient(in clientIn) (*wsconn.Client, error) {
	sessOpts, err := sessionOptions(in.Session, in.Logger)
	if err != nil {
		return nil, err
	}

	if in.Connect.TLS != nil {
		tlsCfg, err := in.Connect.TLS.New()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionConfig, err)
		}
		pipe, err := reactor.NewPipe(in.Base)
		if err != nil {
			return nil, err
		}
		sessOpts = append(sessOpts, wsconn.WithTLS(wsconn.DefaultTlsEngine{}, tlsCfg, pipe))
	}

	opts := []wsconn.ClientOption{
		wsconn.URL(in.Connect.URL),
		wsconn.FetchURLTimeout(in.Connect.FetchURLTimeout),
		wsconn.ConnectTimeout(in.Connect.ConnectTimeout),
		wsconn.Headers(in.Connect.AdditionalHeaders),
		wsconn.RetryPolicy(in.Connect.RetryPolicy),
		wsconn.Once(in.Connect.Once),
		wsconn.SessionOptions(sessOpts...),
		wsconn.ClientLogger(in.Logger.Named("wsconn.client")),
	}

	if in.Auth != nil {
		opts = append(opts, wsconn.Decorator(in.Auth.Decorate))
	}

	return wsconn.NewClient(in.Base, opts...)
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
