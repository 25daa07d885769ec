// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/reactorws/reactorws/internal/loglevel"
	"github.com/reactorws/reactorws/internal/wsconn"
)

// defaultLogLevelDuration is how long a loglevel control message's change
// sticks before reverting, absent an explicit duration.
const defaultLogLevelDuration = 30 * time.Minute

// controlEnvelope is a small JSON control channel carried over the session's
// own text messages, standing in for the WRP update message a device-
// management transport would otherwise use.
type controlEnvelope struct {
	Type    string          `json:"type"`
	Path    string          `json:"path"`
	Payload json.RawMessage `json:"payload"`
}

type logLevelPayload struct {
	Level    string `json:"level"`
	Duration string `json:"duration"`
}

// debugHandler intercepts control envelopes before they reach the echo
// path, currently handling only the "loglevel" path.
type debugHandler struct {
	logLevel loglevel.LogLevel
	log      *zap.Logger
}

func newDebugHandler(logLevel loglevel.LogLevel, log *zap.Logger) *debugHandler {
	return &debugHandler{logLevel: logLevel, log: log.Named("debug")}
}

// handle reports whether m was a recognized control envelope; callers skip
// their normal handling of m when it returns true.
func (d *debugHandler) handle(m wsconn.Message) bool {
	if !m.IsText {
		return false
	}

	var env controlEnvelope
	if err := json.Unmarshal(m.Bytes, &env); err != nil || env.Type != "update" {
		return false
	}

	switch env.Path {
	case "loglevel":
		d.changeLogLevel(env.Payload)
	default:
		d.log.Warn("unknown control path", zap.Uint64("bid", m.Bid), zap.String("path", env.Path))
	}

	return true
}

func (d *debugHandler) changeLogLevel(payload json.RawMessage) {
	var p logLevelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		d.log.Warn("bad loglevel payload", zap.Error(err))
		return
	}

	duration, err := time.ParseDuration(p.Duration)
	if err != nil {
		duration = defaultLogLevelDuration
	}

	if err := d.logLevel.SetLevel(p.Level, duration); err != nil {
		d.log.Warn("set log level failed", zap.String("level", p.Level), zap.Error(err))
		return
	}

	d.log.Info("log level changed", zap.String("level", p.Level), zap.Duration("duration", duration))
}

func provideLogLevelService(level *zap.AtomicLevel) (loglevel.LogLevel, error) {
	return loglevel.New(level)
}
