// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		description string
		opts        []Option
		expectedErr error
	}{
		{
			description: "no url",
			expectedErr: ErrInvalidInput,
		}, {
			description: "simplest config",
			opts:        []Option{URL("http://example.com")},
		}, {
			description: "with refetch percent",
			opts:        []Option{URL("http://example.com"), RefetchPercent(50.0)},
		}, {
			description: "invalid refetch percent",
			opts:        []Option{URL("http://example.com"), RefetchPercent(200.0)},
			expectedErr: ErrInvalidInput,
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			a, err := New(tc.opts...)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, a)
		})
	}
}

func TestFetchAndDecorate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Write([]byte("opaque-token-value"))
	}))
	defer srv.Close()

	a, err := New(URL(srv.URL))
	require.NoError(t, err)

	a.Start()
	defer a.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.WaitUntilFetched(ctx)
	a.WaitUntilValid(ctx)

	h := http.Header{}
	require.NoError(t, a.Decorate(h))
	assert.Equal(t, "Bearer opaque-token-value", h.Get("Authorization"))
}

func TestDecorateNoToken(t *testing.T) {
	a, err := New(URL("http://example.invalid"))
	require.NoError(t, err)

	err = a.Decorate(http.Header{})
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestDecorateNilHeader(t *testing.T) {
	a, err := New(URL("http://example.invalid"))
	require.NoError(t, err)

	err = a.Decorate(nil)
	assert.ErrorIs(t, err, ErrNilRequest)
}

func TestMarkInvalidTriggersRefetch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Write([]byte("token-" + strconv.Itoa(int(n))))
	}))
	defer srv.Close()

	a, err := New(URL(srv.URL), AssumedLifetime(time.Hour))
	require.NoError(t, err)

	a.Start()
	defer a.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.WaitUntilFetched(ctx)
	a.WaitUntilValid(ctx)

	h := http.Header{}
	require.NoError(t, a.Decorate(h))
	first := h.Get("Authorization")

	a.MarkInvalid(ctx)
	a.WaitUntilValid(ctx)

	h = http.Header{}
	require.NoError(t, a.Decorate(h))
	assert.NotEqual(t, first, h.Get("Authorization"))
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a, err := New(URL(srv.URL))
	require.NoError(t, err)

	_, retryIn, ferr := a.fetch(context.Background())
	assert.Error(t, ferr)
	assert.Equal(t, 2*time.Second, retryIn)
}
