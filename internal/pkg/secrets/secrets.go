// Package secrets encrypts mailbox credential passwords at rest.
//
// Secrets are sealed with AES-256-GCM under a key derived from the
// configured passphrase. Ciphertexts are stored base64-encoded with the
// nonce prepended, so a single column holds everything needed to decrypt.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

// ErrInvalidCiphertext is returned when a stored secret cannot be decoded
// or fails authentication (wrong key or corrupted value).
var ErrInvalidCiphertext = errors.New("secrets: invalid ciphertext")

// Box seals and opens credential secrets.
type Box struct {
	aead cipher.AEAD
}

// New creates a Box from the given passphrase. The passphrase is hashed
// to a 32-byte key so any non-empty string works.
func New(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("secrets: passphrase is required")
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and returns a base64 string safe for storage.
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value previously produced by Seal.
func (b *Box) Open(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	ns := b.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := b.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
