// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"
	"time"

	"github.com/reactorws/reactorws/internal/auth/event"
)

type optionFunc func(*Auth) error

func (f optionFunc) apply(a *Auth) error { return f(a) }

type nilOptionFunc func(*Auth)

func (f nilOptionFunc) apply(a *Auth) error {
	f(a)
	return nil
}

// URL sets the token endpoint.
func URL(url string) Option {
	return nilOptionFunc(func(a *Auth) { a.url = url })
}

// HTTPClient sets the client used to fetch the token.
func HTTPClient(client *http.Client) Option {
	return nilOptionFunc(func(a *Auth) {
		if client == nil {
			client = http.DefaultClient
		}
		a.client = client
	})
}

// RefetchPercent sets what fraction (0-100) of the token's remaining
// lifetime elapses before a refetch; 0 restores the default (90.0).
func RefetchPercent(percent float64) Option {
	return optionFunc(func(a *Auth) error {
		if percent < 0.0 || percent > 100.0 {
			return ErrInvalidInput
		}
		a.refetchPercent = percent
		if a.refetchPercent == 0.0 {
			a.refetchPercent = DefaultRefetchPercent
		}
		return nil
	})
}

// AssumedLifetime sets the lifetime assumed when neither the token body nor
// the response carries an expiration. Zero disables the assumption.
func AssumedLifetime(lifetime time.Duration) Option {
	return nilOptionFunc(func(a *Auth) { a.assumedLifetime = lifetime })
}

// NowFunc overrides the clock, for tests.
func NowFunc(f func() time.Time) Option {
	return nilOptionFunc(func(a *Auth) {
		if f == nil {
			f = time.Now
		}
		a.nowFunc = f
	})
}

// AddFetchListener registers l for Fetch events.
func AddFetchListener(l event.FetchListener, cancel ...*event.CancelListenerFunc) Option {
	return nilOptionFunc(func(a *Auth) {
		c := a.fetchListeners.Add(l)
		if len(cancel) > 0 && cancel[0] != nil {
			*cancel[0] = event.CancelListenerFunc(c)
		}
	})
}

// AddDecorateListener registers l for Decorate events.
func AddDecorateListener(l event.DecorateListener, cancel ...*event.CancelListenerFunc) Option {
	return nilOptionFunc(func(a *Auth) {
		c := a.decorateListeners.Add(l)
		if len(cancel) > 0 && cancel[0] != nil {
			*cancel[0] = event.CancelListenerFunc(c)
		}
	})
}
