// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/reactorws/reactorws/internal/auth"
)

// provideAuth constructs the background bearer-token fetcher used to
// decorate the handshake request. Returns nil when no auth URL is
// configured, in which case the handshake proceeds undecorated.
func provideAuth(cfg Auth) (*auth.Auth, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts := []auth.Option{auth.URL(cfg.URL)}
	if cfg.RefetchPercent > 0 {
		opts = append(opts, auth.RefetchPercent(cfg.RefetchPercent))
	}
	if cfg.AssumedLifetime > 0 {
		opts = append(opts, auth.AssumedLifetime(cfg.AssumedLifetime))
	}

	return auth.New(opts...)
}
