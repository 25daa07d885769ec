// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipe_LaunchDeliversToCallback(t *testing.T) {
	b := newTestBase(t, WithFrequency(5))
	p, err := NewPipe(b)
	require.NoError(t, err)
	defer p.Close()

	var got atomic.Uint64
	done := make(chan struct{})
	id := p.Emplace(func(id uint64, value uint64) {
		got.Store(value)
		close(done)
	})

	b.Start()
	defer b.Stop()

	require.NoError(t, p.Launch(id, 42))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipe callback never fired")
	}
	assert.Equal(t, uint64(42), got.Load())
}

func TestPipe_EraseDropsPending(t *testing.T) {
	b := newTestBase(t, WithFrequency(5))
	p, err := NewPipe(b)
	require.NoError(t, err)
	defer p.Close()

	var calls atomic.Int32
	id := p.Emplace(func(uint64, uint64) {
		calls.Add(1)
	})
	p.Erase(id)

	b.Start()
	defer b.Stop()

	require.NoError(t, p.Launch(id, 1))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestPipe_MultipleIDsFIFO(t *testing.T) {
	b := newTestBase(t, WithFrequency(5))
	p, err := NewPipe(b)
	require.NoError(t, err)
	defer p.Close()

	var mu sync.Mutex
	var order []uint64
	done := make(chan struct{})

	record := func(_ uint64, value uint64) {
		mu.Lock()
		order = append(order, value)
		n := len(order)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	}
	id := p.Emplace(record)

	b.Start()
	defer b.Stop()

	require.NoError(t, p.Launch(id, 1))
	require.NoError(t, p.Launch(id, 2))
	require.NoError(t, p.Launch(id, 3))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all launches delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3}, order)
}

func TestPipe_ConcurrentLaunchFromManyGoroutines(t *testing.T) {
	b := newTestBase(t, WithFrequency(5))
	p, err := NewPipe(b)
	require.NoError(t, err)
	defer p.Close()

	const n = 50
	var count atomic.Int32
	done := make(chan struct{})
	id := p.Emplace(func(uint64, uint64) {
		if count.Add(1) == n {
			close(done)
		}
	})

	b.Start()
	defer b.Stop()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			_ = p.Launch(id, v)
		}(uint64(i))
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("only %d/%d launches delivered", count.Load(), n)
	}
}
