package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"errors"

	"github.com/aead/cmac"
)

const (
	// NonceSize is the length of the derived nonce. The remaining four bytes
	// of the AES-CTR counter block start at zero.
	NonceSize = 12
	// TagSize is the truncated CMAC length carried in every frame.
	TagSize = 4
)

var (
	ErrInvalidNonce = errors.New("crypto: nonce must be 12 bytes")
	ErrInvalidTag   = errors.New("crypto: tag must be 4 bytes")
	ErrAuthFailure  = errors.New("crypto: authentication tag mismatch")
)

// Encrypt encrypts plaintext with AES-CTR and authenticates the ciphertext
// with a truncated AES-CMAC. The same key is used for both. Identical inputs
// always produce identical outputs.
func Encrypt(key, nonce, plaintext []byte) (ciphertext, tag []byte, err error) {
	block, err := newBlock(key, nonce)
	if err != nil {
		return nil, nil, err
	}
	ciphertext = make([]byte, len(plaintext))
	ctr(block, nonce).XORKeyStream(ciphertext, plaintext)

	tag, err = authTag(block, ciphertext)
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, tag, nil
}

// VerifyAndDecrypt checks tag against the ciphertext in constant time and
// only then decrypts. On mismatch it returns ErrAuthFailure and no plaintext.
func VerifyAndDecrypt(key, nonce, ciphertext, tag []byte) ([]byte, error) {
	if len(tag) != TagSize {
		return nil, ErrInvalidTag
	}
	block, err := newBlock(key, nonce)
	if err != nil {
		return nil, err
	}
	want, err := authTag(block, ciphertext)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(want, tag) != 1 {
		return nil, ErrAuthFailure
	}
	plaintext := make([]byte, len(ciphertext))
	ctr(block, nonce).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

// Tag returns the truncated CMAC of ciphertext under key.
func Tag(key, ciphertext []byte) ([]byte, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return authTag(block, ciphertext)
}

func newBlock(key, nonce []byte) (cipher.Block, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, ErrInvalidKeyLength
	}
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonce
	}
	return aes.NewCipher(key)
}

// ctr builds the keystream from the counter block nonce || 00 00 00 00.
func ctr(block cipher.Block, nonce []byte) cipher.Stream {
	var iv [aes.BlockSize]byte
	copy(iv[:], nonce)
	return cipher.NewCTR(block, iv[:])
}

func authTag(block cipher.Block, ciphertext []byte) ([]byte, error) {
	mac, err := cmac.New(block)
	if err != nil {
		return nil, err
	}
	mac.Write(ciphertext)
	sum := mac.Sum(nil)
	tag := make([]byte, TagSize)
	copy(tag, sum)
	clear(sum)
	return tag, nil
}
