// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/goschtalt/goschtalt"
	"github.com/xmidt-org/arrange/arrangetls"
	"github.com/xmidt-org/retry"
	"github.com/xmidt-org/sallust"
	"gopkg.in/dealancer/validate.v2"
)

// Config is the configuration for reactorws-client.
type Config struct {
	Connect Connect
	Session Session
	Auth    Auth
	Logger  sallust.Config
}

// Connect controls how the client reaches the server.
type Connect struct {
	// URL is the fixed ws(s):// endpoint to dial.
	URL string
	// AdditionalHeaders are merged into the handshake request.
	AdditionalHeaders http.Header
	// FetchURLTimeout bounds URL resolution.
	FetchURLTimeout time.Duration
	// ConnectTimeout bounds the TCP dial.
	ConnectTimeout time.Duration
	// Once disables reconnect-on-drop.
	Once bool
	// RetryPolicy configures reconnect backoff.
	RetryPolicy retry.Config
	// TLS optionally upgrades the connection to TLS (wss://).
	TLS *arrangetls.Config
}

// Session mirrors wsconn.Config's tunables.
type Session struct {
	PingIntervalSec int
	WaitPongSec     int
	MaxRequests     int
	SegmentSize     int
	Deflate         bool
	CompressMethod  string
	Subprotocols    []string
	Encryption      EncryptionConfig
}

// EncryptionConfig configures the optional payload-encryption layer.
type EncryptionConfig struct {
	Enabled  bool
	Password string
	Salt     string
}

// Auth configures the background bearer-token fetcher that decorates the
// handshake request. Disabled when URL is empty.
type Auth struct {
	URL             string
	RefetchPercent  float64
	AssumedLifetime time.Duration
}

func provideConfig(cli *CLI) (*goschtalt.Config, error) {
	gs, err := goschtalt.New(
		goschtalt.StdCfgLayout(applicationName, cli.Files...),
		goschtalt.ConfigIs("two_words"),
		goschtalt.DefaultUnmarshalOptions(
			goschtalt.WithValidator(
				goschtalt.ValidatorFunc(validate.Validate),
			),
		),
		goschtalt.AddValue("built-in", goschtalt.Root, defaultConfig,
			goschtalt.AsDefault()),
	)
	if err != nil {
		return nil, err
	}

	if cli.Show {
		fmt.Fprintln(os.Stdout, gs.Explain().String())

		out, err := gs.Marshal()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintln(os.Stdout, "## Final Configuration\n---\n"+string(out))
		}

		os.Exit(0)
	}

	var tmp Config
	if err := gs.Unmarshal(goschtalt.Root, &tmp); err != nil {
		fmt.Fprintln(os.Stderr, "There is a critical error in the configuration.")
		fmt.Fprintln(os.Stderr, "Run with -s/--show to see the configuration.")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(0)
	}

	return gs, nil
}

var defaultConfig = Config{
	Connect: Connect{
		FetchURLTimeout: 30 * time.Second,
		ConnectTimeout:  30 * time.Second,
		RetryPolicy: retry.Config{
			Interval:    time.Second,
			Multiplier:  2.0,
			Jitter:      1.0 / 3.0,
			MaxInterval: 5 * time.Minute,
		},
	},
	Session: Session{
		PingIntervalSec: 30,
		WaitPongSec:     60,
		MaxRequests:     100,
		SegmentSize:     4096,
		Deflate:         true,
		CompressMethod:  "deflate",
	},
}
