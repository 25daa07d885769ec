// SPDX-License-Identifier: Apache-2.0

package wsproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeClose(t *testing.T) {
	wire := EncodeClose(CloseProtocolError, "bad frame", false)
	f, res, _ := Decode(wire, 0)
	require.Equal(t, ParseOK, res)
	assert.Equal(t, OpClose, f.Opcode)

	code, reason := DecodeCloseReason(f.Payload)
	assert.Equal(t, CloseProtocolError, code)
	assert.Equal(t, "bad frame", reason)
}

func TestDecodeCloseReason_ShortPayload(t *testing.T) {
	code, reason := DecodeCloseReason([]byte{0x01})
	assert.Equal(t, CloseNormal, code)
	assert.Empty(t, reason)
}

func TestEncodePingPong(t *testing.T) {
	ping := EncodePing([]byte("abcd"), true)
	f, res, _ := Decode(ping, 0)
	require.Equal(t, ParseOK, res)
	assert.Equal(t, OpPing, f.Opcode)
	assert.True(t, f.Masked)
	assert.Equal(t, []byte("abcd"), f.Payload)

	pong := EncodePong(f.Payload, false)
	f2, res, _ := Decode(pong, 0)
	require.Equal(t, ParseOK, res)
	assert.Equal(t, OpPong, f2.Opcode)
	assert.Equal(t, []byte("abcd"), f2.Payload)
}

func TestNewMaskKey_Varies(t *testing.T) {
	a := NewMaskKey()
	b := NewMaskKey()
	assert.NotEqual(t, a, b)
}
