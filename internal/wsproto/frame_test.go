// SPDX-License-Identifier: Apache-2.0

package wsproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrame_RoundTrip(t *testing.T) {
	tests := []struct {
		description string
		frame       Frame
	}{
		{
			description: "small unmasked text",
			frame:       Frame{Fin: true, Opcode: OpText, Payload: []byte("hello")},
		},
		{
			description: "masked binary",
			frame:       Frame{Fin: true, Opcode: OpBinary, Masked: true, MaskKey: [4]byte{1, 2, 3, 4}, Payload: []byte{0, 1, 2, 3, 4, 5}},
		},
		{
			description: "medium payload (126 length prefix)",
			frame:       Frame{Fin: true, Opcode: OpBinary, Payload: make([]byte, 200)},
		},
		{
			description: "large payload (127 length prefix)",
			frame:       Frame{Fin: true, Opcode: OpBinary, Payload: make([]byte, 70000)},
		},
		{
			description: "first fragment with rsv1",
			frame:       Frame{Fin: false, RSV1: true, Opcode: OpText, Payload: []byte("part")},
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			wire := Encode(tc.frame)
			got, res, n := Decode(wire, 0)
			assert.Equal(t, ParseOK, res)
			assert.Equal(t, len(wire), n)
			assert.Equal(t, tc.frame.Fin, got.Fin)
			assert.Equal(t, tc.frame.RSV1, got.RSV1)
			assert.Equal(t, tc.frame.Opcode, got.Opcode)
			assert.Equal(t, tc.frame.Masked, got.Masked)
			assert.Equal(t, tc.frame.Payload, got.Payload)
		})
	}
}

func TestFrame_PartialHeader(t *testing.T) {
	_, res, n := Decode([]byte{0x81}, 0)
	assert.Equal(t, ParsePartial, res)
	assert.Equal(t, 0, n)
}

func TestFrame_PartialPayload(t *testing.T) {
	full := Encode(Frame{Fin: true, Opcode: OpText, Payload: []byte("hello world")})
	_, res, _ := Decode(full[:len(full)-3], 0)
	assert.Equal(t, ParsePartial, res)
}

func TestFrame_ControlMustNotFragment(t *testing.T) {
	wire := []byte{0x09, 0x02, 0x00, 0x00} // fin=0, PING, len=2
	_, res, _ := Decode(wire, 0)
	assert.Equal(t, ParseBad, res)
}

func TestFrame_ControlTooLarge(t *testing.T) {
	f := Frame{Fin: true, Opcode: OpPing, Payload: make([]byte, 126)}
	wire := Encode(f)
	_, res, _ := Decode(wire, 0)
	assert.Equal(t, ParseBad, res)
}

func TestFrame_InvalidOpcode(t *testing.T) {
	wire := []byte{0x83, 0x00} // fin=1, opcode=3 (reserved)
	_, res, _ := Decode(wire, 0)
	assert.Equal(t, ParseBad, res)
}

func TestFrame_MaxPayloadRejected(t *testing.T) {
	f := Frame{Fin: true, Opcode: OpBinary, Payload: make([]byte, 100)}
	wire := Encode(f)
	_, res, _ := Decode(wire, 50)
	assert.Equal(t, ParseBad, res)
}
