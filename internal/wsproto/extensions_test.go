// SPDX-License-Identifier: Apache-2.0

package wsproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseExtensions(t *testing.T) {
	tests := []struct {
		description string
		header      string
		want        DeflateParams
	}{
		{
			description: "basic offer",
			header:      "permessage-deflate",
			want:        DeflateParams{Enabled: true, ServerMaxWbits: 15, ClientMaxWbits: 15},
		},
		{
			description: "with takeover and window bits",
			header:      "permessage-deflate; client_no_context_takeover; server_max_window_bits=10",
			want:        DeflateParams{Enabled: true, ClientNoContext: true, ServerMaxWbits: 10, ClientMaxWbits: 15},
		},
		{
			description: "unrecognised extension ignored",
			header:      "x-unknown-ext",
			want:        DeflateParams{},
		},
		{
			description: "empty header",
			header:      "",
			want:        DeflateParams{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseExtensions(tc.header))
		})
	}
}

func TestNegotiateDeflate(t *testing.T) {
	offer := ParseExtensions("permessage-deflate; server_max_window_bits=15")

	got := NegotiateDeflate(offer, true, 12)
	assert.True(t, got.Enabled)
	assert.Equal(t, 12, got.ServerMaxWbits)

	none := NegotiateDeflate(offer, false, 12)
	assert.False(t, none.Enabled)
}

func TestDeflateParams_EncodeRoundTrips(t *testing.T) {
	p := DeflateParams{Enabled: true, ServerNoContext: true, ServerMaxWbits: 10, ClientMaxWbits: 15}
	encoded := p.Encode()
	got := ParseExtensions(encoded)
	assert.Equal(t, p.Enabled, got.Enabled)
	assert.Equal(t, p.ServerNoContext, got.ServerNoContext)
	assert.Equal(t, p.ServerMaxWbits, got.ServerMaxWbits)
}
