// Package keystore loads master keys from disk.
//
// Keys are stored either as plain files (raw bytes or base64 text, the
// form produced by provisioning tools) or sealed under a passphrase:
//
//	4 bytes  magic "HBK1"
//	4 bytes  argon2id time cost (big endian)
//	4 bytes  argon2id memory in KiB (big endian)
//	1 byte   argon2id parallelism
//	16 bytes salt
//	N bytes  ChaCha20-Poly1305 box of the key, header as associated data
package keystore

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/hubblenetwork/hubble-go/hubble/crypto"
	"github.com/hubblenetwork/hubble-go/hubble/identity"
)

// Encoding selects how a plain key file is stored.
type Encoding int

const (
	Raw Encoding = iota
	Base64
)

const (
	magic      = "HBK1"
	saltSize   = 16
	headerSize = len(magic) + 4 + 4 + 1 + saltSize

	// maxMemory bounds the cost a sealed file can demand, in KiB.
	maxMemory = 1 << 20
)

var (
	ErrSealedKeyInvalid = errors.New("keystore: sealed key is corrupt or passphrase is wrong")
	ErrNotSealed        = errors.New("keystore: data is not a sealed key")
	ErrInvalidParams    = errors.New("keystore: invalid argon2id parameters")
)

// Params are the argon2id costs used when sealing.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultParams follow the argon2id recommendation for interactive use.
var DefaultParams = Params{Time: 1, Memory: 64 * 1024, Threads: 4}

func (p Params) validate() error {
	if p.Time < 1 || p.Threads < 1 || p.Memory > maxMemory {
		return fmt.Errorf("%w: time=%d memory=%d threads=%d", ErrInvalidParams, p.Time, p.Memory, p.Threads)
	}
	return nil
}

// ParseKey decodes a plain key file body.
func ParseKey(data []byte, enc Encoding) (identity.MasterKey, error) {
	switch enc {
	case Raw:
		return identity.NewMasterKey(data)
	case Base64:
		text := strings.Join(strings.Fields(string(data)), "")
		raw, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return identity.MasterKey{}, fmt.Errorf("keystore: decode base64 key: %w", err)
		}
		defer clear(raw)
		return identity.NewMasterKey(raw)
	default:
		return identity.MasterKey{}, fmt.Errorf("keystore: unknown encoding %d", enc)
	}
}

// LoadFile reads a plain key file.
func LoadFile(path string, enc Encoding) (identity.MasterKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return identity.MasterKey{}, fmt.Errorf("keystore: %w", err)
	}
	defer clear(data)
	mk, err := ParseKey(data, enc)
	if err != nil {
		return identity.MasterKey{}, fmt.Errorf("keystore: %s: %w", path, err)
	}
	return mk, nil
}

// IsSealed reports whether data starts with the sealed key magic.
func IsSealed(data []byte) bool {
	return len(data) >= headerSize && bytes.HasPrefix(data, []byte(magic))
}

// Seal encrypts mk under passphrase.
func Seal(mk identity.MasterKey, passphrase []byte, p Params) ([]byte, error) {
	if mk.IsZero() {
		return nil, identity.ErrInvalidKeyLength
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	header := make([]byte, headerSize)
	copy(header, magic)
	binary.BigEndian.PutUint32(header[4:8], p.Time)
	binary.BigEndian.PutUint32(header[8:12], p.Memory)
	header[12] = p.Threads
	if _, err := rand.Read(header[13:]); err != nil {
		return nil, err
	}

	box, err := newBox(passphrase, header)
	if err != nil {
		return nil, err
	}
	secret := mk.Bytes()
	defer clear(secret)
	sealed, err := box.Seal(secret, header)
	if err != nil {
		return nil, err
	}
	return append(header, sealed...), nil
}

// Open decrypts a sealed key.
func Open(data, passphrase []byte) (identity.MasterKey, error) {
	if !IsSealed(data) {
		return identity.MasterKey{}, ErrNotSealed
	}
	header := data[:headerSize]
	if err := headerParams(header).validate(); err != nil {
		return identity.MasterKey{}, fmt.Errorf("%w: %w", ErrSealedKeyInvalid, err)
	}
	box, err := newBox(passphrase, header)
	if err != nil {
		return identity.MasterKey{}, err
	}
	secret, err := box.Open(data[headerSize:], header)
	if err != nil {
		return identity.MasterKey{}, ErrSealedKeyInvalid
	}
	defer clear(secret)
	return identity.NewMasterKey(secret)
}

// LoadSealedFile reads and opens a sealed key file.
func LoadSealedFile(path string, passphrase []byte) (identity.MasterKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return identity.MasterKey{}, fmt.Errorf("keystore: %w", err)
	}
	mk, err := Open(data, passphrase)
	if err != nil {
		return identity.MasterKey{}, fmt.Errorf("keystore: %s: %w", path, err)
	}
	return mk, nil
}

// WriteSealedFile seals mk and writes it with owner-only permissions.
func WriteSealedFile(path string, mk identity.MasterKey, passphrase []byte, p Params) error {
	data, err := Seal(mk, passphrase, p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func headerParams(header []byte) Params {
	return Params{
		Time:    binary.BigEndian.Uint32(header[4:8]),
		Memory:  binary.BigEndian.Uint32(header[8:12]),
		Threads: header[12],
	}
}

func newBox(passphrase, header []byte) (*crypto.Box, error) {
	p := headerParams(header)
	salt := header[13:headerSize]
	key := argon2.IDKey(passphrase, salt, p.Time, p.Memory, p.Threads, 32)
	defer clear(key)
	return crypto.NewBox(key)
}
