// Package crypto provides authenticated encryption for individual
// sensitive columns (AES-256-GCM, random nonce per call).
//
// Key derivation is intentionally naive for compatibility with existing
// deployments: the operator passphrase is truncated or zero-padded to the
// AES-256 key width. This is NOT a proper KDF and should not be used for
// new deployments; derive real keys out-of-band instead.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
)

const keyLen = 32 // AES-256

// FieldCipher encrypts and decrypts single string fields.
// The zero value is unusable; construct with New.
type FieldCipher struct {
	aead cipher.AEAD
}

// New derives a fixed-width key from the operator passphrase and returns a
// ready cipher. An empty passphrase is rejected by the caller (store layer),
// not here.
func New(passphrase string) (*FieldCipher, error) {
	key := make([]byte, keyLen)
	copy(key, passphrase) // truncate or zero-pad

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &FieldCipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. The nonce travels with
// the ciphertext in the returned string: base64(nonce || ciphertext || tag).
// Equal plaintexts produce different outputs on every call.
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. It reports ok=false for empty
// input, truncated input, tampered ciphertext, and ciphertext produced under
// a different key. The causes are deliberately indistinguishable.
func (c *FieldCipher) Decrypt(encoded string) (string, bool) {
	if encoded == "" {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", false
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", false
	}
	return string(plain), true
}
