// SPDX-License-Identifier: Apache-2.0

package wsproto

import (
	"bufio"
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndValidateRequest(t *testing.T) {
	cr, err := BuildRequest("ws://example.com/socket", nil, []string{"chat"}, []string{OfferString()})
	require.NoError(t, err)

	key, err := ValidateRequest(cr.Request, nil)
	require.NoError(t, err)
	assert.Equal(t, cr.Key, key)
}

func TestValidateRequest_RejectsMissingUpgrade(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/socket", nil)
	_, err := ValidateRequest(r, nil)
	require.Error(t, err)
	herr, ok := err.(*HandshakeError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, herr.Status)
}

func TestValidateRequest_RejectsBadVersion(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/socket", nil)
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Sec-WebSocket-Version", "8")
	r.Header.Set("Sec-WebSocket-Key", NewClientKey())

	_, err := ValidateRequest(r, nil)
	require.Error(t, err)
	herr := err.(*HandshakeError)
	assert.Equal(t, http.StatusHTTPVersionNotSupported, herr.Status)
}

func TestValidateRequest_RejectsBadKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/socket", nil)
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Sec-WebSocket-Version", SupportedVersion)
	r.Header.Set("Sec-WebSocket-Key", "not-base64-16-bytes")

	_, err := ValidateRequest(r, nil)
	require.Error(t, err)
	herr := err.(*HandshakeError)
	assert.Equal(t, http.StatusBadRequest, herr.Status)
}

func TestValidateRequest_AuthRejected(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/socket", nil)
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Sec-WebSocket-Version", SupportedVersion)
	r.Header.Set("Sec-WebSocket-Key", NewClientKey())

	_, err := ValidateRequest(r, func(*http.Request) bool { return false })
	require.Error(t, err)
	herr := err.(*HandshakeError)
	assert.Equal(t, http.StatusUnauthorized, herr.Status)
}

func TestAcceptAndValidateResponse(t *testing.T) {
	key := NewClientKey()

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteAccept(w, key, "chat", ""))

	resp, err := http.ReadResponse(bufio.NewReader(&buf), nil)
	require.NoError(t, err)
	assert.NoError(t, ValidateResponse(resp, key))
}

func TestValidateResponse_BadAccept(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteAccept(w, "some-other-key", "", ""))

	resp, err := http.ReadResponse(bufio.NewReader(&buf), nil)
	require.NoError(t, err)
	assert.Error(t, ValidateResponse(resp, NewClientKey()))
}

func TestNegotiateSubprotocol(t *testing.T) {
	got := NegotiateSubprotocol([]string{"foo", "chat"}, []string{"chat", "bar"})
	assert.Equal(t, "chat", got)

	assert.Empty(t, NegotiateSubprotocol([]string{"foo"}, []string{"chat"}))
}

func TestComputeAccept_KnownVector(t *testing.T) {
	// RFC 6455 §1.3 worked example.
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", ComputeAccept("dGhlIHNhbXBsZSBub25jZQ=="))
}
