// SPDX-License-Identifier: Apache-2.0

package wsconn

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/xmidt-org/eventor"
	"github.com/xmidt-org/retry"
	"go.uber.org/zap"

	"github.com/reactorws/reactorws/internal/reactor"
	"github.com/reactorws/reactorws/internal/wsproto"
)

var (
	ErrMisconfiguredClient = errors.New("wsconn: misconfigured client")
)

// Client dials and redials a single Websocket connection, presenting a
// listener surface that stays stable across reconnects — something the
// underlying Session cannot do on its own, since a Session is torn down
// and replaced every time its transport drops.
type Client struct {
	urlFetcher   func(context.Context) (string, error)
	fetchTimeout time.Duration
	decorate     func(http.Header) error
	headers      http.Header

	connectTimeout time.Duration
	once           bool

	base               *reactor.Base
	retryPolicyFactory retry.PolicyFactory
	sessOpts           []Option
	log                *zap.Logger
	nowFunc            func() time.Time

	activeListeners    eventor.Eventor[ActiveListener]
	streamListeners    eventor.Eventor[StreamListener]
	handshakeListeners eventor.Eventor[HandshakeListener]
	messageListeners   eventor.Eventor[MessageListener]
	errorListeners     eventor.Eventor[ErrorListener]
	rawListeners       eventor.Eventor[RawListener]
	endListeners       eventor.Eventor[EndListener]

	m        sync.Mutex
	wg       sync.WaitGroup
	shutdown context.CancelFunc
	policy   retry.Policy
	sess     *Session
}

// ClientOption is a functional option for NewClient.
type ClientOption interface {
	apply(*Client) error
}

type clientOptionFunc func(*Client) error

func (f clientOptionFunc) apply(c *Client) error { return f(c) }

// URL sets a fixed connect URL (ws:// or wss://).
func URL(u string) ClientOption {
	return clientOptionFunc(func(c *Client) error {
		if u == "" {
			return errors.New("wsconn: empty URL")
		}
		c.urlFetcher = func(context.Context) (string, error) { return u, nil }
		return nil
	})
}

// FetchURL sets a callback invoked before every connect attempt to obtain
// the URL to dial, for deployments that resolve it dynamically.
func FetchURL(f func(context.Context) (string, error)) ClientOption {
	return clientOptionFunc(func(c *Client) error {
		if f == nil {
			return errors.New("wsconn: nil FetchURL")
		}
		c.urlFetcher = f
		return nil
	})
}

// FetchURLTimeout bounds FetchURL/URL resolution. Default 30s.
func FetchURLTimeout(d time.Duration) ClientOption {
	return clientOptionFunc(func(c *Client) error {
		if d < 0 {
			return errors.New("wsconn: negative FetchURLTimeout")
		}
		c.fetchTimeout = d
		return nil
	})
}

// ConnectTimeout bounds the TCP dial. Default 30s.
func ConnectTimeout(d time.Duration) ClientOption {
	return clientOptionFunc(func(c *Client) error {
		if d < 0 {
			return errors.New("wsconn: negative ConnectTimeout")
		}
		c.connectTimeout = d
		return nil
	})
}

// Decorator sets a callback that mutates the upgrade request's headers
// just before connect, typically to attach an auth token. A Decorator
// failure never blocks the connect attempt; it is reported through the
// error listeners and the handshake proceeds undecorated.
func Decorator(f func(http.Header) error) ClientOption {
	return clientOptionFunc(func(c *Client) error {
		c.decorate = f
		return nil
	})
}

// Headers sets fixed additional headers merged into every upgrade request.
func Headers(h http.Header) ClientOption {
	return clientOptionFunc(func(c *Client) error {
		c.headers = h
		return nil
	})
}

// RetryPolicy sets the backoff policy factory used between reconnects.
func RetryPolicy(pf retry.PolicyFactory) ClientOption {
	return clientOptionFunc(func(c *Client) error {
		if pf == nil {
			return errors.New("wsconn: nil RetryPolicy")
		}
		c.retryPolicyFactory = pf
		return nil
	})
}

// Once makes Start attempt exactly one connect, never reconnecting.
func Once(once ...bool) ClientOption {
	once = append(once, true)
	return clientOptionFunc(func(c *Client) error {
		c.once = once[0]
		return nil
	})
}

// SessionOptions passes options through to every Session the client
// constructs.
func SessionOptions(opts ...Option) ClientOption {
	return clientOptionFunc(func(c *Client) error {
		c.sessOpts = append(c.sessOpts, opts...)
		return nil
	})
}

// ClientLogger attaches a logger.
func ClientLogger(log *zap.Logger) ClientOption {
	return clientOptionFunc(func(c *Client) error {
		c.log = log
		return nil
	})
}

// NewClient constructs a Client bound to base. Connections are not
// attempted until Start is called.
func NewClient(base *reactor.Base, opts ...ClientOption) (*Client, error) {
	if base == nil {
		return nil, ErrMisconfiguredClient
	}

	c := &Client{
		base:           base,
		fetchTimeout:   30 * time.Second,
		connectTimeout: 30 * time.Second,
		headers:        http.Header{},
		nowFunc:        time.Now,
		log:            zap.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			if err := opt.apply(c); err != nil {
				return nil, err
			}
		}
	}

	if c.urlFetcher == nil {
		return nil, ErrMisconfiguredClient
	}
	if c.retryPolicyFactory == nil {
		c.retryPolicyFactory = retry.Config{
			Interval:    time.Second,
			Multiplier:  2.0,
			Jitter:      1.0 / 3.0,
			MaxInterval: 5 * time.Minute,
		}
	}

	return c, nil
}

// Start begins dialing and keeps reconnecting (unless Once was set) until
// Stop is called.
func (c *Client) Start() {
	c.m.Lock()
	if c.shutdown != nil {
		c.m.Unlock()
		return
	}
	var ctx context.Context
	ctx, c.shutdown = context.WithCancel(context.Background())
	c.policy = c.retryPolicyFactory.NewPolicy(ctx)
	c.m.Unlock()

	c.wg.Add(1)
	go c.run(ctx)
}

// Stop tears down the current session, if any, and stops reconnecting.
func (c *Client) Stop() {
	c.m.Lock()
	if c.sess != nil {
		c.sess.SendError(wsproto.CloseNormal, "", KindPeerClosed)
	}
	shutdown := c.shutdown
	c.m.Unlock()

	if shutdown != nil {
		shutdown()
	}
	c.wg.Wait()
}

// Send forwards payload to the live session, if any.
func (c *Client) Send(payload []byte, isText bool) error {
	c.m.Lock()
	sess := c.sess
	c.m.Unlock()
	if sess == nil {
		return ErrNotOpen
	}
	return sess.SendMessage(payload, isText)
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		closed := make(chan struct{}, 1)
		if err := c.connect(ctx, closed); err == nil {
			select {
			case <-closed:
			case <-ctx.Done():
				return
			}
		}

		if c.once {
			return
		}

		next, _ := c.policy.Next()
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) connect(ctx context.Context, closed chan<- struct{}) (err error) {
	defer func() {
		if err == nil {
			c.m.Lock()
			c.policy = c.retryPolicyFactory.NewPolicy(ctx)
			c.m.Unlock()
			return
		}
		c.errorListeners.Visit(func(l ErrorListener) {
			l.OnError(Error{Level: LevelError, Kind: KindTransportError, Text: err.Error()})
		})
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	rawURL, err := c.urlFetcher(fetchCtx)
	if err != nil {
		return err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	hdr := http.Header{}
	for k, vs := range c.headers {
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}
	if c.decorate != nil {
		if derr := c.decorate(hdr); derr != nil {
			c.errorListeners.Visit(func(l ErrorListener) {
				l.OnError(Error{Level: LevelWarn, Kind: KindHandshakeFailed, Text: derr.Error()})
			})
		}
	}

	dialCtx, dcancel := context.WithTimeout(ctx, c.connectTimeout)
	defer dcancel()
	sock, err := reactor.Dial(dialCtx, "tcp", u.Host)
	if err != nil {
		return err
	}

	sess, err := New(c.base, sock, RoleClient, 0, c.sessOpts...)
	if err != nil {
		sock.Close()
		return err
	}
	c.wireSession(sess, closed)

	if err := sess.ConnectRequest(rawURL, u.Hostname(), hdr); err != nil {
		return err
	}

	c.m.Lock()
	c.sess = sess
	c.m.Unlock()

	c.activeListeners.Visit(func(l ActiveListener) {
		l.OnActive(Active{Bid: sess.Bid(), State: ActiveConnect, At: c.nowFunc()})
	})
	return nil
}

// wireSession forwards every per-session event through the client's own
// listener sets, so OnMessage/OnError/etc. registered on the Client see
// every reconnect's traffic without re-registering. closed is signaled
// once this session reaches StreamClose, waking run()'s reconnect loop.
func (c *Client) wireSession(sess *Session, closed chan<- struct{}) {
	sess.OnStream(StreamListenerFunc(func(st Stream) {
		c.streamListeners.Visit(func(l StreamListener) { l.OnStream(st) })
		if st.State == StreamClose {
			c.m.Lock()
			if c.sess == sess {
				c.sess = nil
			}
			c.m.Unlock()
			c.activeListeners.Visit(func(l ActiveListener) {
				l.OnActive(Active{Bid: sess.Bid(), State: ActiveDisconnect, At: c.nowFunc()})
			})
			select {
			case closed <- struct{}{}:
			default:
			}
		}
	}))
	sess.OnHandshake(HandshakeListenerFunc(func(h Handshake) {
		c.handshakeListeners.Visit(func(l HandshakeListener) { l.OnHandshake(h) })
	}))
	sess.OnMessage(MessageListenerFunc(func(m Message) {
		c.messageListeners.Visit(func(l MessageListener) { l.OnMessage(m) })
	}))
	sess.OnError(ErrorListenerFunc(func(e Error) {
		c.errorListeners.Visit(func(l ErrorListener) { l.OnError(e) })
	}))
	sess.OnRaw(RawListenerFunc(func(r Raw) bool {
		keep := true
		c.rawListeners.Visit(func(l RawListener) {
			if !l.OnRaw(r) {
				keep = false
			}
		})
		return keep
	}))
	sess.OnEnd(EndListenerFunc(func(e End) {
		c.endListeners.Visit(func(l EndListener) { l.OnEnd(e) })
	}))
}

func (c *Client) OnActive(l ActiveListener) CancelFunc { return CancelFunc(c.activeListeners.Add(l)) }
func (c *Client) OnStream(l StreamListener) CancelFunc { return CancelFunc(c.streamListeners.Add(l)) }
func (c *Client) OnHandshake(l HandshakeListener) CancelFunc {
	return CancelFunc(c.handshakeListeners.Add(l))
}
func (c *Client) OnMessage(l MessageListener) CancelFunc {
	return CancelFunc(c.messageListeners.Add(l))
}
func (c *Client) OnError(l ErrorListener) CancelFunc { return CancelFunc(c.errorListeners.Add(l)) }
func (c *Client) OnRaw(l RawListener) CancelFunc     { return CancelFunc(c.rawListeners.Add(l)) }
func (c *Client) OnEnd(l EndListener) CancelFunc     { return CancelFunc(c.endListeners.Add(l)) }
