// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultCapacity is the maximum number of tracked interests (real
// descriptors plus timers) a Base accepts before Add starts failing. It
// matches the MAX_COUNT_FDS constant in the C++ original this package is
// modeled on.
const DefaultCapacity = 20480

// emptySetSleep is how long the loop sleeps when there is nothing at all to
// watch, so it doesn't busy-spin on an empty interest set.
const emptySetSleep = 100 * time.Millisecond

// Base is the reactor: a single dispatch loop, backed by the platform
// poller, that owns every registered interest and is the only goroutine
// that ever invokes a user Callback.
type Base struct {
	log *zap.Logger

	mu          sync.Mutex
	interests   map[int]*interest
	capacity    int
	frequencyMS int
	easily      atomic.Bool
	frozen      atomic.Bool

	p poller

	launched atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	// wakeR/wakeW are a private descriptor pair, distinct from the public
	// Pipe primitive (pipe.go), used only to interrupt a blocked
	// poller.wait from Stop/Kick/Rebase.
	wakeR, wakeW int

	consecutiveErrors int
}

// Option configures a Base at construction time.
type Option func(*Base)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(b *Base) { b.capacity = n }
}

// WithFrequency sets the initial selector timeout in milliseconds.
func WithFrequency(ms int) Option {
	return func(b *Base) { b.frequencyMS = ms }
}

// WithLogger attaches a logger; a nil logger becomes zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return func(b *Base) {
		if log != nil {
			b.log = log
		}
	}
}

// New constructs a Base and its underlying OS selector.
func New(opts ...Option) (*Base, error) {
	b := &Base{
		log:         zap.NewNop(),
		interests:   make(map[int]*interest),
		capacity:    DefaultCapacity,
		frequencyMS: 100,
	}
	for _, opt := range opts {
		opt(b)
	}

	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	b.p = p

	wr, ww, err := newWakePair()
	if err != nil {
		_ = p.close()
		return nil, err
	}
	b.wakeR, b.wakeW = wr, ww
	if err := b.p.add(b.wakeR, pollRead); err != nil {
		_ = p.close()
		return nil, err
	}

	return b, nil
}

// Add registers fd (ignored when delayMS > 0, in which case the reactor
// allocates and owns a timer descriptor instead) with cb. The registration
// starts in DISABLED mode for every EventKind; callers must call Mode to
// activate the kinds they want. Returns the effective descriptor (== fd for
// I/O registrations, or the allocated timer descriptor) and whether the
// registration succeeded.
func (b *Base) Add(fd int, cb Callback, delayMS uint32, periodic bool) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.interests) >= b.capacity {
		b.log.Warn("reactor: capacity exceeded", zap.Int("capacity", b.capacity))
		return 0, false
	}

	in := newInterest(fd, cb)
	if delayMS > 0 {
		in.timerFD = allocTimerFD()
		in.ownsFD = true
		in.fd = in.timerFD
		in.delay = delayMS
		in.periodic = periodic
	} else {
		if _, exists := b.interests[fd]; exists {
			return 0, false
		}
	}

	b.interests[in.fd] = in
	return in.fd, true
}

// Mode flips a single kind's activation for fd. Returns false if fd has no
// registration.
func (b *Base) Mode(fd int, kind EventKind, mode Mode) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	in, ok := b.interests[fd]
	if !ok {
		return false
	}
	in.mode[kind] = mode

	if in.timerFD != 0 {
		// Timer interests never touch the OS poller.
		return true
	}
	return b.syncPollerLocked(in) == nil
}

// syncPollerLocked reconciles the poller's registration for a real (non
// timer) descriptor with the interest's current READ/WRITE mode. Must be
// called with b.mu held.
func (b *Base) syncPollerLocked(in *interest) error {
	var flags pollFlags
	if in.isEnabled(KindRead) {
		flags |= pollRead
	}
	if in.isEnabled(KindWrite) {
		flags |= pollWrite
	}
	return b.p.modify(in.fd, flags)
}

// Del removes every kind for fd. If the reactor allocated fd (a timer), the
// descriptor is closed; otherwise the caller retains ownership. Safe to
// call from any thread or from within a callback running on the reactor
// thread; the callback is guaranteed not to fire again for fd once Del
// returns.
func (b *Base) Del(fd int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delLocked(fd)
}

func (b *Base) delLocked(fd int) bool {
	in, ok := b.interests[fd]
	if !ok {
		return false
	}
	delete(b.interests, fd)
	if in.timerFD == 0 {
		_ = b.p.remove(in.fd)
	}
	return true
}

// DelKind removes a single kind from fd's registration. If no kind besides
// CLOSE remains enabled afterward, the whole registration is removed.
func (b *Base) DelKind(fd int, kind EventKind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	in, ok := b.interests[fd]
	if !ok {
		return false
	}
	in.mode[kind] = Disabled

	if !in.anyEnabledBesidesClose() {
		return b.delLocked(fd)
	}
	if in.timerFD == 0 {
		_ = b.syncPollerLocked(in)
	}
	return true
}

// Freeze suspends dispatch without unregistering anything.
func (b *Base) Freeze(v bool) { b.frozen.Store(v) }

// Easily enables or disables cooperative yielding between iterations.
func (b *Base) Easily(v bool) { b.easily.Store(v) }

// Frequency sets the selector timeout, in milliseconds, used when the
// interest set is non-empty.
func (b *Base) Frequency(ms int) {
	b.mu.Lock()
	b.frequencyMS = ms
	b.mu.Unlock()
}

// Launched reports whether the dispatch loop is currently running.
func (b *Base) Launched() bool { return b.launched.Load() }

// Clear removes every registration, closing every descriptor the reactor
// owns (timers).
func (b *Base) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for fd, in := range b.interests {
		if in.timerFD == 0 {
			_ = b.p.remove(in.fd)
		}
		delete(b.interests, fd)
	}
}

// Start enters the dispatch loop on a new goroutine; it returns immediately.
// Calling Start while already launched is a no-op.
func (b *Base) Start() {
	if !b.launched.CompareAndSwap(false, true) {
		return
	}
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	go b.loop()
}

// Stop signals the loop to exit and blocks until it has. Safe to call from
// any goroutine, including concurrently.
func (b *Base) Stop() {
	if !b.launched.Load() {
		return
	}
	b.mu.Lock()
	select {
	case <-b.stopCh:
	default:
		close(b.stopCh)
	}
	b.mu.Unlock()
	_ = wakeWrite(b.wakeW)
	<-b.doneCh
}

// Kick is equivalent to Stop followed by Start, waiting for full
// quiescence of the previous loop before restarting.
func (b *Base) Kick() {
	b.Stop()
	b.Start()
}

// Close stops the loop if running, then releases the OS selector and the
// private wake pair. A closed Base cannot be reused.
func (b *Base) Close() error {
	b.Stop()
	b.Clear()
	_ = sysClose(b.wakeR)
	_ = sysClose(b.wakeW)
	return b.p.close()
}

// Rebase stops the loop, recreates the underlying OS selector, re-registers
// every current interest, then restarts. After repeated selector errors the
// loop performs the same selector rebuild in place, without stopping.
func (b *Base) Rebase() error {
	wasLaunched := b.Launched()
	if wasLaunched {
		b.Stop()
	}

	b.mu.Lock()
	_ = b.p.close()
	np, err := newPoller()
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.p = np
	_ = b.p.add(b.wakeR, pollRead)
	for _, in := range b.interests {
		if in.timerFD != 0 {
			continue
		}
		_ = b.syncPollerLocked(in)
	}
	b.mu.Unlock()

	if wasLaunched {
		b.Start()
	}
	return nil
}

func (b *Base) loop() {
	defer func() {
		b.launched.Store(false)
		close(b.doneCh)
	}()

	var buf []ready
	for {
		select {
		case <-b.stopCh:
			return
		default:
		}

		b.mu.Lock()
		empty := len(b.interests) == 0
		b.mu.Unlock()

		if empty {
			if b.sleepOrStop(emptySetSleep) {
				return
			}
			continue
		}

		timeout := b.currentFrequency()
		if b.easily.Load() {
			timeout = 0
		}

		var err error
		buf, err = b.p.wait(timeout, buf[:0])
		if err != nil {
			b.log.Warn("reactor: selector error", zap.Error(err))
			b.consecutiveErrors++
			if b.consecutiveErrors > 1 {
				b.consecutiveErrors = 0
				// Rebase would Stop and wait on this goroutine, so the
				// selector is recreated here in place.
				b.mu.Lock()
				np, rerr := newPoller()
				if rerr == nil {
					_ = b.p.close()
					b.p = np
					_ = b.p.add(b.wakeR, pollRead)
					for _, in := range b.interests {
						if in.timerFD == 0 {
							_ = b.syncPollerLocked(in)
						}
					}
				}
				b.mu.Unlock()
				if rerr != nil {
					b.log.Warn("reactor: rebase failed", zap.Error(rerr))
				}
			}
			continue
		}
		b.consecutiveErrors = 0

		select {
		case <-b.stopCh:
			return
		default:
		}

		if len(buf) == 0 {
			b.runTimers(timeout)
		} else if !b.frozen.Load() {
			b.dispatchReady(buf)
		}

		if b.easily.Load() {
			if b.sleepOrStop(time.Duration(b.currentFrequency()) * time.Millisecond) {
				return
			}
		}
	}
}

func (b *Base) sleepOrStop(d time.Duration) (stopped bool) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-b.stopCh:
		return true
	case <-t.C:
		return false
	}
}

func (b *Base) currentFrequency() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frequencyMS
}

// dispatchReady delivers CLOSE before READ before WRITE for each ready
// slot, re-validating the interest still exists right before every
// invocation so a callback's own Del/Add calls take effect immediately,
// satisfying the no-further-events-this-iteration guarantee without extra
// bookkeeping.
func (b *Base) dispatchReady(slots []ready) {
	for _, r := range slots {
		if r.fd == b.wakeR {
			drainWake(b.wakeR)
			continue
		}
		if r.errored {
			b.invoke(r.fd, KindClose)
		}
		if r.readable {
			b.invoke(r.fd, KindRead)
		}
		if r.writable {
			b.invoke(r.fd, KindWrite)
		}
	}
}

func (b *Base) invoke(fd int, kind EventKind) {
	b.mu.Lock()
	in, ok := b.interests[fd]
	if !ok || !in.isEnabled(kind) {
		b.mu.Unlock()
		return
	}
	cb := in.cb
	b.mu.Unlock()

	b.safeCall(cb, fd, kind)
}

// runTimers is the "timer redistribution" step: every enabled TIMER
// interest whose elapsed time has reached its configured delay fires, then
// either rearms (periodic) or is removed (one-shot).
func (b *Base) runTimers(elapsedMS int) {
	b.mu.Lock()
	var fired []*interest
	for _, in := range b.interests {
		if in.timerFD == 0 || !in.isEnabled(KindTimer) {
			continue
		}
		in.elapsed += uint32(elapsedMS)
		if in.elapsed >= in.delay {
			fired = append(fired, in)
		}
	}
	for _, in := range fired {
		if in.periodic {
			in.elapsed = 0
		} else {
			delete(b.interests, in.fd)
		}
	}
	b.mu.Unlock()

	for _, in := range fired {
		b.safeCall(in.cb, in.fd, KindTimer)
	}
}

// safeCall invokes cb, catching and logging any panic so the loop is never
// unwound by user code; the interest is left registered either way.
func (b *Base) safeCall(cb Callback, fd int, kind EventKind) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("reactor: callback panic",
				zap.Int("fd", fd), zap.Stringer("kind", kind), zap.Any("recover", r))
		}
	}()
	cb(fd, kind)
}

var timerFDCounter int64 = -2 // first id is -3, clear of the -1 that Socket.FD reports once closed

func allocTimerFD() int {
	return int(atomic.AddInt64(&timerFDCounter, -1))
}
