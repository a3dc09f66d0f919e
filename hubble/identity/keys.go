package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"
)

const (
	// KeySize128 and KeySize256 are the only accepted master key lengths.
	// The selected length fixes the AES variant for the whole derivation chain.
	KeySize128 = 16
	KeySize256 = 32
)

var ErrInvalidKeyLength = errors.New("identity: master key must be 16 or 32 bytes")

// MasterKey is the secret provisioned into a beacon and shared with its
// receivers. It is immutable once constructed.
type MasterKey struct {
	key []byte
}

// NewMasterKey copies b into a MasterKey after checking its length.
func NewMasterKey(b []byte) (MasterKey, error) {
	if !ValidKeySize(len(b)) {
		return MasterKey{}, ErrInvalidKeyLength
	}
	return MasterKey{key: append([]byte(nil), b...)}, nil
}

// GenerateMasterKey returns a random master key of the given size.
func GenerateMasterKey(size int) (MasterKey, error) {
	if !ValidKeySize(size) {
		return MasterKey{}, ErrInvalidKeyLength
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return MasterKey{}, err
	}
	return MasterKey{key: b}, nil
}

func ValidKeySize(n int) bool {
	return n == KeySize128 || n == KeySize256
}

// Size is the key length in bytes (16 or 32), or 0 for the zero value.
func (k MasterKey) Size() int { return len(k.key) }

// IsZero reports whether k was never initialised.
func (k MasterKey) IsZero() bool { return len(k.key) == 0 }

// Bytes returns a copy of the raw key material.
// Handle with care; this is the root of every derived key.
func (k MasterKey) Bytes() []byte {
	return append([]byte(nil), k.key...)
}

// Equal compares two keys in constant time.
func (k MasterKey) Equal(other MasterKey) bool {
	return len(k.key) == len(other.key) && subtle.ConstantTimeCompare(k.key, other.key) == 1
}
