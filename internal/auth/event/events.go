// SPDX-License-Identifier: Apache-2.0

// Package event holds the notification types internal/auth fires.
package event

import (
	"time"

	"github.com/google/uuid"
)

// CancelListenerFunc cancels a previously registered listener.
type CancelListenerFunc func()

// Fetch is fired every time a token fetch is attempted, successful or not.
type Fetch struct {
	At         time.Time
	Duration   time.Duration
	UUID       uuid.UUID
	StatusCode int

	// RetryIn is the server-suggested backoff (from Retry-After), zero if
	// none was given.
	RetryIn time.Duration

	Expiration time.Time
	Err        error
}

type FetchListener interface{ OnFetch(Fetch) }
type FetchListenerFunc func(Fetch)

func (f FetchListenerFunc) OnFetch(e Fetch) { f(e) }

// Decorate is fired every time a request's headers are decorated with the
// bearer token.
type Decorate struct {
	Expiration time.Time
	Err        error
}

type DecorateListener interface{ OnDecorate(Decorate) }
type DecorateListenerFunc func(Decorate)

func (f DecorateListenerFunc) OnDecorate(e Decorate) { f(e) }
