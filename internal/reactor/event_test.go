// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_UnboundStartWarnsAndNoops(t *testing.T) {
	e := NewEvent(nil)
	assert.False(t, e.Start(KindRead))
	assert.False(t, e.Started())
}

func TestEvent_StartStop(t *testing.T) {
	b := newTestBase(t, WithFrequency(5))
	a, peer := socketpair(t)
	defer a.Close()
	defer peer.Close()

	var calls atomic.Int32
	e := NewEvent(nil)
	e.Set(b, peer.FD(), func(int, EventKind) { calls.Add(1) })

	require.True(t, e.Start(KindRead))
	assert.True(t, e.Started())

	b.Start()
	defer b.Stop()

	_, _ = a.Write([]byte("x"))
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, 10*time.Millisecond)

	e.Stop()
	assert.False(t, e.Started())

	before := calls.Load()
	_, _ = a.Write([]byte("y"))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, calls.Load())
}

func TestEvent_Timer(t *testing.T) {
	b := newTestBase(t, WithFrequency(5))

	fired := make(chan struct{})
	e := NewEvent(nil)
	e.SetTimer(b, 20, false, func(int, EventKind) { close(fired) })
	require.True(t, e.Start())

	b.Start()
	defer b.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer event never fired")
	}
}

func TestEvent_StopBeforeStartIsNoop(t *testing.T) {
	e := NewEvent(nil)
	e.Stop()
	assert.False(t, e.Started())
}
