// SPDX-License-Identifier: Apache-2.0

package wsconn

import (
	"crypto/tls"
	"net"
	"os"
)

// TlsSocket is the minimal surface a session needs from a wrapped
// connection: byte-oriented read/write plus close. Unlike reactor.Socket,
// a TlsSocket is driven from a dedicated goroutine (see TlsEngine's doc
// comment) rather than directly from reactor callbacks.
type TlsSocket interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// TlsEngine is the external collaborator that upgrades a plain descriptor
// to TLS. Config is supplied by the caller (the cmd layer builds it via
// arrangetls, see cmd/*/ws.go) so this package stays free of
// certificate/trust-store concerns.
//
// crypto/tls's handshake and Read/Write are blocking calls with no
// WouldBlock-retry contract, while the reactor is strictly non-blocking.
// Rather than reimplement TLS's record layer atop raw readiness events,
// the default engine hands the accepted descriptor to a dedicated
// goroutine running a blocking *tls.Conn and bridges its output back to
// the session through the same Pipe (C4) primitive used for any other
// cross-thread handoff; see session.go's upgradeTLS path.
type TlsEngine interface {
	Wrap(fd int, role Role, host string, cfg *tls.Config) (TlsSocket, error)
}

// DefaultTlsEngine implements TlsEngine using crypto/tls directly.
type DefaultTlsEngine struct{}

func (DefaultTlsEngine) Wrap(fd int, role Role, host string, cfg *tls.Config) (TlsSocket, error) {
	f := os.NewFile(uintptr(fd), "wsconn-tls")
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}

	if role == RoleClient {
		c := tls.Client(conn, withServerName(cfg, host))
		return c, nil
	}
	return tls.Server(conn, cfg), nil
}

func withServerName(cfg *tls.Config, host string) *tls.Config {
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" && host != "" {
		out := cfg.Clone()
		out.ServerName = host
		return out
	}
	return cfg
}
