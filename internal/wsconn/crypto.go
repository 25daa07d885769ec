// SPDX-License-Identifier: Apache-2.0

package wsconn

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrCiphertextTooShort is returned when Decrypt is given fewer bytes than
// the cipher's nonce size.
var ErrCiphertextTooShort = errors.New("wsconn: ciphertext shorter than nonce")

// Cipher is the external collaborator a session uses for optional payload
// encryption (the `crypted` session flag). Encrypt/Decrypt operate on
// already-compressed application payloads, one call per frame-worthy
// message.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// ChaCha20Poly1305Cipher derives a 256-bit key from a passphrase and salt
// via HKDF-SHA256, then seals/opens payloads with ChaCha20-Poly1305,
// prefixing each ciphertext with its random nonce.
type ChaCha20Poly1305Cipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewChaCha20Poly1305Cipher derives a key from pass/salt and constructs the
// AEAD cipher.
func NewChaCha20Poly1305Cipher(pass, salt []byte) (*ChaCha20Poly1305Cipher, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, pass, salt, []byte("wsconn-payload"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &ChaCha20Poly1305Cipher{aead: aead}, nil
}

func (c *ChaCha20Poly1305Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := c.aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, out...), nil
}

func (c *ChaCha20Poly1305Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, ErrCiphertextTooShort
	}
	return c.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
}
