// SPDX-License-Identifier: Apache-2.0

package loglevel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetLevel(t *testing.T) {
	level := zap.NewAtomicLevelAt(zap.ErrorLevel)

	svc, err := New(&level)
	require.NoError(t, err)
	assert.Equal(t, "error", svc.Current())

	err = svc.SetLevel("some-nonsense", time.Second)
	assert.Error(t, err)
	assert.Equal(t, "error", svc.Current())

	err = svc.SetLevel("DEBUG", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "debug", svc.Current())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "error", svc.Current())
}

func TestSetLevelReplacesPendingRevert(t *testing.T) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)

	svc, err := New(&level)
	require.NoError(t, err)

	require.NoError(t, svc.SetLevel("debug", 50*time.Millisecond))
	require.NoError(t, svc.SetLevel("warn", 200*time.Millisecond))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "warn", svc.Current(), "the first timer's revert must not fire after being superseded")

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "info", svc.Current())
}

func TestSetLevelNoRevert(t *testing.T) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)

	svc, err := New(&level)
	require.NoError(t, err)

	require.NoError(t, svc.SetLevel("debug", 0))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "debug", svc.Current())
}
