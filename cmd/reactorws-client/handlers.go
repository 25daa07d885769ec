// SPDX-License-Identifier: Apache-2.0

package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/reactorws/reactorws/internal/wsconn"
)

type handlersIn struct {
	fx.In
	Client *wsconn.Client
	Logger *zap.Logger
}

// wireHandlers logs connection lifecycle and inbound messages.
func wireHandlers(in handlersIn) {
	log := in.Logger.Named("handlers")

	in.Client.OnActive(wsconn.ActiveListenerFunc(func(e wsconn.Active) {
		log.Info("active", zap.Uint64("bid", e.Bid), zap.Int("state", int(e.State)))
	}))

	in.Client.OnError(wsconn.ErrorListenerFunc(func(e wsconn.Error) {
		log.Warn("session error", zap.Uint64("bid", e.Bid), zap.Int("kind", int(e.Kind)), zap.String("text", e.Text))
	}))

	in.Client.OnMessage(wsconn.MessageListenerFunc(func(m wsconn.Message) {
		log.Debug("message", zap.Uint64("bid", m.Bid), zap.Int("bytes", len(m.Bytes)))
	}))
}
