// SPDX-License-Identifier: Apache-2.0

package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/reactorws/reactorws/internal/loglevel"
	"github.com/reactorws/reactorws/internal/wsconn"
)

type handlersIn struct {
	fx.In
	Srv      *wsconn.Server
	Logger   *zap.Logger
	LogLevel loglevel.LogLevel
}

// wireHandlers echoes every inbound message back to its originating
// session and logs connection lifecycle events. Control envelopes (see
// debug.go) are intercepted before the echo path.
func wireHandlers(in handlersIn) {
	log := in.Logger.Named("handlers")
	debug := newDebugHandler(in.LogLevel, log)

	in.Srv.OnActive(wsconn.ActiveListenerFunc(func(e wsconn.Active) {
		log.Debug("active", zap.Uint64("bid", e.Bid), zap.Int("state", int(e.State)))
	}))

	in.Srv.OnError(wsconn.ErrorListenerFunc(func(e wsconn.Error) {
		log.Warn("session error", zap.Uint64("bid", e.Bid), zap.Int("kind", int(e.Kind)), zap.String("text", e.Text))
	}))

	in.Srv.OnMessage(wsconn.MessageListenerFunc(func(m wsconn.Message) {
		if debug.handle(m) {
			return
		}
		log.Debug("message", zap.Uint64("bid", m.Bid), zap.Int("bytes", len(m.Bytes)))
		if err := in.Srv.Send(m.Bid, m.Bytes, m.IsText); err != nil {
			log.Warn("echo failed", zap.Uint64("bid", m.Bid), zap.Error(err))
		}
	}))
}
