// SPDX-License-Identifier: Apache-2.0

package wsproto

import (
	"fmt"
	"strconv"
	"strings"
)

// DeflateParams is the negotiated permessage-deflate parameter set (RFC
// 7692 §7).
type DeflateParams struct {
	Enabled         bool
	ServerNoContext bool
	ClientNoContext bool
	ServerMaxWbits  int // 8..15, 0 means "not specified" (defaults to 15)
	ClientMaxWbits  int
}

// ParseExtensions parses a Sec-WebSocket-Extensions header value, returning
// the permessage-deflate parameters if that extension is present (in any
// offer) and recognised; unrecognised extensions are ignored rather than
// rejected, matching how real deployments tolerate extra offers.
func ParseExtensions(header string) DeflateParams {
	var p DeflateParams
	for _, offer := range splitExtensionList(header) {
		parts := strings.Split(offer, ";")
		name := strings.TrimSpace(parts[0])
		if !strings.EqualFold(name, "permessage-deflate") {
			continue
		}
		p.Enabled = true
		p.ServerMaxWbits, p.ClientMaxWbits = 15, 15
		for _, param := range parts[1:] {
			param = strings.TrimSpace(param)
			key, val, _ := strings.Cut(param, "=")
			key = strings.TrimSpace(key)
			val = strings.Trim(strings.TrimSpace(val), `"`)
			switch strings.ToLower(key) {
			case "server_no_context_takeover":
				p.ServerNoContext = true
			case "client_no_context_takeover":
				p.ClientNoContext = true
			case "server_max_window_bits":
				p.ServerMaxWbits = parseWbits(val, 15)
			case "client_max_window_bits":
				p.ClientMaxWbits = parseWbits(val, 15)
			}
		}
		return p
	}
	return p
}

func parseWbits(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 8 || n > 15 {
		return def
	}
	return n
}

func splitExtensionList(header string) []string {
	if header == "" {
		return nil
	}
	out := make([]string, 0, 2)
	for _, part := range strings.Split(header, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NegotiateDeflate intersects a client offer with server support, choosing
// the server's preferred window size within what the client offered.
func NegotiateDeflate(offer DeflateParams, serverSupports bool, serverPreferredWbits int) DeflateParams {
	if !offer.Enabled || !serverSupports {
		return DeflateParams{}
	}
	wbits := offer.ServerMaxWbits
	if serverPreferredWbits > 0 && serverPreferredWbits < wbits {
		wbits = serverPreferredWbits
	}
	return DeflateParams{
		Enabled:         true,
		ServerNoContext: offer.ServerNoContext,
		ClientNoContext: offer.ClientNoContext,
		ServerMaxWbits:  wbits,
		ClientMaxWbits:  offer.ClientMaxWbits,
	}
}

// Encode renders the negotiated parameters back into a
// Sec-WebSocket-Extensions header value.
func (p DeflateParams) Encode() string {
	if !p.Enabled {
		return ""
	}
	var b strings.Builder
	b.WriteString("permessage-deflate")
	if p.ServerNoContext {
		b.WriteString("; server_no_context_takeover")
	}
	if p.ClientNoContext {
		b.WriteString("; client_no_context_takeover")
	}
	if p.ServerMaxWbits != 0 && p.ServerMaxWbits != 15 {
		fmt.Fprintf(&b, "; server_max_window_bits=%d", p.ServerMaxWbits)
	}
	if p.ClientMaxWbits != 0 && p.ClientMaxWbits != 15 {
		fmt.Fprintf(&b, "; client_max_window_bits=%d", p.ClientMaxWbits)
	}
	return b.String()
}

// OfferString renders a client-side offer: permessage-deflate with a bare
// client_max_window_bits parameter and no context-takeover parameters.
func OfferString() string {
	return "permessage-deflate; client_max_window_bits"
}
