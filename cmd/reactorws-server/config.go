// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/goschtalt/goschtalt"
	"github.com/xmidt-org/arrange/arrangetls"
	"github.com/xmidt-org/sallust"
	"gopkg.in/dealancer/validate.v2"
)

// Config is the configuration for reactorws-server.
type Config struct {
	Listen   Listen
	Session  Session
	Logger   sallust.Config
}

// Listen controls the acceptor's network address and connection cap.
type Listen struct {
	// Network is "tcp", "tcp4" or "tcp6".
	Network string
	// Address is host:port to bind.
	Address string
	// MaxConnections caps concurrently open sessions; 0 is unbounded.
	MaxConnections int
	// TLS optionally upgrades every accepted connection to TLS.
	TLS *arrangetls.Config
}

// Session mirrors wsconn.Config's tunables for every accepted session.
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
	Listen: Listen{
		Network:        "tcp",
		Address:        ":8080",
		MaxConnections: 10_000,
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
