// SPDX-License-Identifier: Apache-2.0

// Package auth fetches and refreshes a bearer token on a background
// schedule and decorates outbound requests with it, the way a Websocket
// client's upgrade request needs an Authorization header attached before
// every (re)connect attempt.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xmidt-org/eventor"

	"github.com/reactorws/reactorws/internal/auth/event"
)

var (
	ErrNilRequest        = errors.New("auth: nil request")
	ErrNoToken           = errors.New("auth: no token")
	ErrTokenExpired      = errors.New("auth: token expired")
	ErrFetchNotAttempted = errors.New("auth: fetch not attempted")
	ErrFetchFailed       = errors.New("auth: fetch failed")
	ErrInvalidInput      = errors.New("auth: invalid input")
)

// DefaultRefetchPercent is used when RefetchPercent isn't set.
const DefaultRefetchPercent = 90.0

// gate is a broadcast that's either open or shut: wait blocks until open is
// called, and reset shuts it again for the next round. Both are idempotent,
// so callers never need to track whether they've already flipped it.
type gate struct {
	mu sync.Mutex
	ch chan struct{}
}

func newGate() *gate { return &gate{ch: make(chan struct{})} }

func (g *gate) open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
	default:
		close(g.ch)
	}
}

func (g *gate) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		g.ch = make(chan struct{})
	default:
	}
}

func (g *gate) wait(ctx context.Context) {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// rendezvous lets MarkInvalid block until run's loop has actually observed
// its request, without a reply-channel-over-a-channel handoff: the caller
// snapshots the current tick before signalling, then waits on that exact
// snapshot so a concurrent tick can't be missed.
type rendezvous struct {
	mu sync.Mutex
	ch chan struct{}
}

func newRendezvous() *rendezvous { return &rendezvous{ch: make(chan struct{})} }

func (r *rendezvous) snapshot() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch
}

func (r *rendezvous) tick() {
	r.mu.Lock()
	old := r.ch
	r.ch = make(chan struct{})
	r.mu.Unlock()
	close(old)
}

func waitOn(ch <-chan struct{}, ctx context.Context) {
	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// Auth fetches a bearer token from url on a background schedule, refetching
// at RefetchPercent of its remaining lifetime, and decorates requests with
// it via Decorate.
type Auth struct {
	m        sync.Mutex
	wg       sync.WaitGroup
	shutdown context.CancelFunc
	nowFunc  func() time.Time

	fetchedGate *gate
	validGate   *gate
	invalidate  chan struct{}
	observed    *rendezvous

	fetchListeners    eventor.Eventor[event.FetchListener]
	decorateListeners eventor.Eventor[event.DecorateListener]

	url             string
	refetchPercent  float64
	assumedLifetime time.Duration
	client          *http.Client

	token atomic.Pointer[bearerToken]
}

type bearerToken struct {
	Token     string
	ExpiresAt time.Time
}

// Option configures an Auth at construction time.
type Option interface {
	apply(*Auth) error
}

// New constructs an Auth service. Start must be called before it begins
// fetching.
func New(opts ...Option) (*Auth, error) {
	a := Auth{
		client:         http.DefaultClient,
		fetchedGate:    newGate(),
		validGate:      newGate(),
		invalidate:     make(chan struct{}),
		observed:       newRendezvous(),
		nowFunc:        time.Now,
		refetchPercent: DefaultRefetchPercent,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(&a); err != nil {
			return nil, err
		}
	}

	if a.url == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalidInput)
	}

	return &a, nil
}

// Start begins the background fetch/refresh loop.
func (a *Auth) Start() {
	a.m.Lock()
	defer a.m.Unlock()

	if a.shutdown != nil {
		return
	}

	var ctx context.Context
	ctx, a.shutdown = context.WithCancel(context.Background())
	go a.run(ctx)
}

// Stop halts the background loop.
func (a *Auth) Stop() {
	a.m.Lock()
	shutdown := a.shutdown
	a.m.Unlock()

	if shutdown != nil {
		shutdown()
	}
	a.wg.Wait()
}

// WaitUntilFetched blocks until a fetch attempt has been made or ctx ends.
func (a *Auth) WaitUntilFetched(ctx context.Context) {
	a.fetchedGate.wait(ctx)
}

// WaitUntilValid blocks until a valid token is held or ctx ends.
func (a *Auth) WaitUntilValid(ctx context.Context) {
	a.validGate.wait(ctx)
}

// MarkInvalid forces an immediate refetch, blocking until the background
// loop has picked up the request or ctx ends.
func (a *Auth) MarkInvalid(ctx context.Context) {
	tick := a.observed.snapshot()
	select {
	case a.invalidate <- struct{}{}:
		waitOn(tick, ctx)
	case <-ctx.Done():
	}
}

// Decorate attaches an Authorization: Bearer header to h, compatible with
// wsconn's Decorator client option.
func (a *Auth) Decorate(h http.Header) error {
	var e event.Decorate

	if h == nil {
		e.Err = ErrNilRequest
		return a.dispatch(e)
	}

	tok := a.token.Load()
	if tok == nil || tok.Token == "" {
		e.Err = ErrNoToken
		return a.dispatch(e)
	}

	e.Expiration = tok.ExpiresAt
	if a.nowFunc().After(tok.ExpiresAt) {
		e.Err = ErrTokenExpired
		return a.dispatch(e)
	}

	h.Set("Authorization", "Bearer "+tok.Token)
	return a.dispatch(e)
}

func (a *Auth) fetch(ctx context.Context) (*bearerToken, time.Duration, error) {
	var fe event.Fetch

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		fe.Err = errors.Join(err, ErrFetchNotAttempted)
		return nil, 0, a.dispatch(fe)
	}

	tid, err := uuid.NewRandom()
	if err != nil {
		fe.Err = errors.Join(err, ErrFetchNotAttempted)
		return nil, 0, a.dispatch(fe)
	}
	fe.UUID = tid
	req.Header.Set("X-Request-Id", tid.String())

	fe.At = a.nowFunc()
	resp, err := a.client.Do(req)
	fe.Duration = time.Since(fe.At)
	if err != nil {
		fe.Err = errors.Join(err, ErrFetchFailed)
		return nil, 0, a.dispatch(fe)
	}
	defer resp.Body.Close()

	fe.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		var retryIn time.Duration
		if resp.StatusCode == http.StatusTooManyRequests {
			if after, aerr := strconv.Atoi(resp.Header.Get("Retry-After")); aerr == nil {
				retryIn = time.Duration(after) * time.Second
			}
		}
		fe.RetryIn = retryIn
		fe.Err = ErrFetchFailed
		return nil, retryIn, a.dispatch(fe)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fe.Err = errors.Join(err, ErrFetchFailed)
		return nil, 0, a.dispatch(fe)
	}

	tok := bearerToken{Token: string(body)}

	// One hundred years is forever: used only if nothing better is found.
	tok.ExpiresAt = a.nowFunc().Add(time.Hour * 24 * 365 * 100)
	if a.assumedLifetime > 0 {
		tok.ExpiresAt = a.nowFunc().Add(a.assumedLifetime)
	}
	if exp, ok := expiryFromJWT(tok.Token); ok {
		tok.ExpiresAt = exp
	} else if exp, err := http.ParseTime(resp.Header.Get("Expires")); err == nil {
		tok.ExpiresAt = exp
	}

	fe.Expiration = tok.ExpiresAt
	return &tok, 0, a.dispatch(fe)
}

func (a *Auth) run(ctx context.Context) {
	a.wg.Add(1)
	defer a.wg.Done()

	for {
		tok, retryIn, err := a.fetch(ctx)
		a.fetchedGate.open()

		next := max(time.Second, retryIn)

		if err == nil && tok != nil {
			a.token.Store(tok)
			a.validGate.open()

			if until := tok.ExpiresAt.Sub(a.nowFunc()); until > 0 {
				next = time.Duration(float64(until) * a.refetchPercent / 100.0)
			}
		}

		timer := time.NewTimer(next)

		select {
		case <-a.invalidate:
			a.validGate.reset()
			a.observed.tick()
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
		timer.Stop()
	}
}

func (a *Auth) dispatch(evnt any) error {
	switch e := evnt.(type) {
	case event.Fetch:
		a.fetchListeners.Visit(func(l event.FetchListener) { l.OnFetch(e) })
		return e.Err
	case event.Decorate:
		a.decorateListeners.Visit(func(l event.DecorateListener) { l.OnDecorate(e) })
		return e.Err
	}
	panic("auth: unknown event type")
}
