// SPDX-License-Identifier: Apache-2.0

package wsproto

import (
	"crypto/rand"
	"encoding/binary"
)

// Close codes used by the core (see §7 of the design this package
// implements); callers above may use others but these are the ones the
// codec and session machinery originate themselves.
const (
	CloseNormal            uint16 = 1000
	CloseProtocolError     uint16 = 1002
	CloseInternalNoPong    uint16 = 1005
	CloseUnsupportedData   uint16 = 1007
)

// NewMaskKey returns a fresh random 4-byte mask key; the client must use a
// new one per frame.
func NewMaskKey() [4]byte {
	var key [4]byte
	_, _ = rand.Read(key[:])
	return key
}

// EncodePing builds a fully-framed PING control frame carrying payload.
func EncodePing(payload []byte, masked bool) []byte {
	return encodeControl(OpPing, payload, masked)
}

// EncodePong builds a fully-framed PONG control frame echoing payload.
func EncodePong(payload []byte, masked bool) []byte {
	return encodeControl(OpPong, payload, masked)
}

// EncodeClose builds a fully-framed CLOSE control frame with a 2-byte
// big-endian code followed by a UTF-8 reason.
func EncodeClose(code uint16, reason string, masked bool) []byte {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, code)
	copy(payload[2:], reason)
	if len(payload) > MaxControlPayload {
		payload = payload[:MaxControlPayload]
	}
	return encodeControl(OpClose, payload, masked)
}

func encodeControl(op Opcode, payload []byte, masked bool) []byte {
	f := Frame{Fin: true, Opcode: op, Payload: payload, Masked: masked}
	if masked {
		f.MaskKey = NewMaskKey()
	}
	return Encode(f)
}

// DecodeCloseReason splits a CLOSE frame's payload into its code and text;
// a payload shorter than 2 bytes reports CloseNormal with no text.
func DecodeCloseReason(payload []byte) (code uint16, reason string) {
	if len(payload) < 2 {
		return CloseNormal, ""
	}
	return binary.BigEndian.Uint16(payload[:2]), string(payload[2:])
}
