package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrSealedTooShort = errors.New("crypto: sealed data too short")
	ErrUnsealFailed   = errors.New("crypto: unseal failed")
)

// Box wraps ChaCha20-Poly1305 for protecting key material at rest.
// It is not used on the radio link, which has its own frame cipher.
type Box struct {
	aead cipher.AEAD
}

// NewBox creates a Box from a 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("crypto: invalid key size for ChaCha20-Poly1305")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts and authenticates plaintext under a fresh random nonce.
// Returns: nonce (12 bytes) || ciphertext || tag (16 bytes)
func (b *Box) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return b.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open verifies and decrypts data produced by Seal.
func (b *Box) Open(sealed, additionalData []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSize
	if len(sealed) < nonceSize+b.aead.Overhead() {
		return nil, ErrSealedTooShort
	}
	plaintext, err := b.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], additionalData)
	if err != nil {
		return nil, ErrUnsealFailed
	}
	return plaintext, nil
}

// Overhead is the number of bytes Seal adds to the plaintext.
func (b *Box) Overhead() int { return chacha20poly1305.NonceSize + b.aead.Overhead() }
