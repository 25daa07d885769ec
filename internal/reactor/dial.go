// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"context"
	"net"
)

// Dial opens an outbound TCP connection and returns it as a non-blocking
// Socket ready to hand to a Base. The connect itself still goes through
// net.Dialer (DNS resolution and the initial three-way handshake are not
// readiness-driven in this package); only the resulting descriptor's
// steady-state I/O is handed to the reactor.
func Dial(ctx context.Context, network, addr string) (*Socket, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmtErr("dial", err)
	}
	sock, err := newOwnedSocket(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sock, nil
}
