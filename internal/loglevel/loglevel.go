// SPDX-License-Identifier: Apache-2.0

package loglevel

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel lets a caller temporarily raise or lower the verbosity of a
// running logger, automatically reverting once duration elapses.
type LogLevel interface {
	SetLevel(level string, duration time.Duration) error
	Current() string
}

// LogLevelService backs LogLevel with a zap.AtomicLevel, remembering the
// level it started at as the baseline every revert returns to. A pending
// revert timer is replaced, not stacked: a second SetLevel call before the
// first revert fires cancels the earlier timer instead of racing it.
type LogLevelService struct {
	level   *zap.AtomicLevel
	initial zapcore.Level

	mu      sync.Mutex
	pending *time.Timer
}

// New builds a LogLevelService bound to level, recording its level at
// construction time as the baseline every revert returns to.
func New(level *zap.AtomicLevel) (LogLevel, error) {
	return &LogLevelService{
		level:   level,
		initial: level.Level(),
	}, nil
}

// Current reports the active level as lowercase text (e.g. "debug").
func (l *LogLevelService) Current() string {
	return strings.ToLower(l.level.Level().String())
}

// SetLevel parses level (case-insensitive) and applies it immediately,
// scheduling a revert to the baseline level after duration. zap treats an
// empty level string as "info". A non-positive duration skips scheduling a
// revert, leaving the change in place indefinitely.
func (l *LogLevelService) SetLevel(level string, duration time.Duration) error {
	var parsed zap.AtomicLevel
	if err := parsed.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return err
	}
	l.level.SetLevel(parsed.Level())

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending != nil {
		l.pending.Stop()
		l.pending = nil
	}
	if duration <= 0 {
		return nil
	}

	l.pending = time.AfterFunc(duration, func() {
		l.level.SetLevel(l.initial)
		l.mu.Lock()
		l.pending = nil
		l.mu.Unlock()
	})
	return nil
}
