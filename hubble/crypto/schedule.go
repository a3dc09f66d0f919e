package crypto

import (
	"github.com/hubblenetwork/hubble-go/hubble/identity"
)

// Labels of the derivation chain. They are part of the interoperability
// contract and must match the beacon firmware byte for byte.
const (
	LabelDeviceKey     = "DeviceKey"
	LabelDeviceID      = "DeviceID"
	LabelNonceKey      = "NonceKey"
	LabelNonce         = "Nonce"
	LabelEncryptionKey = "EncryptionKey"
	LabelKey           = "Key"
)

// Schedule derives the per-day and per-message values of one master key:
//
//	DeviceKey  = Derive(MasterKey,  KeySize, "DeviceKey",     TimeCounter)
//	DeviceID   = Derive(DeviceKey,  4,       "DeviceID",      0)
//	NonceKey   = Derive(MasterKey,  KeySize, "NonceKey",      TimeCounter)
//	Nonce      = Derive(NonceKey,   12,      "Nonce",         SeqNo)
//	EncKeyRoot = Derive(MasterKey,  KeySize, "EncryptionKey", TimeCounter)
//	EncKey     = Derive(EncKeyRoot, KeySize, "Key",           SeqNo)
//
// A Schedule holds only the master key; every value is recomputed per call.
type Schedule struct {
	master identity.MasterKey
}

func NewSchedule(master identity.MasterKey) (*Schedule, error) {
	if master.IsZero() {
		return nil, ErrInvalidKeyLength
	}
	return &Schedule{master: master}, nil
}

// KeySize is the AES key length used throughout the chain.
func (s *Schedule) KeySize() int { return s.master.Size() }

// DeviceID returns the pseudo-identity of the beacon for the given day.
func (s *Schedule) DeviceID(timeCounter uint32) (identity.DeviceID, error) {
	b, err := s.derive2(LabelDeviceKey, timeCounter, LabelDeviceID, 0, identity.DeviceIDSize)
	if err != nil {
		return identity.DeviceID{}, err
	}
	return identity.DeviceIDFromBytes(b)
}

// Nonce returns the 12-byte CTR nonce for a message.
func (s *Schedule) Nonce(timeCounter uint32, seqNo uint16) ([]byte, error) {
	return s.derive2(LabelNonceKey, timeCounter, LabelNonce, uint32(seqNo), NonceSize)
}

// EncryptionKey returns the per-message key used for both CTR and CMAC.
func (s *Schedule) EncryptionKey(timeCounter uint32, seqNo uint16) ([]byte, error) {
	return s.derive2(LabelEncryptionKey, timeCounter, LabelKey, uint32(seqNo), s.KeySize())
}

// MessageKeys returns the encryption key and nonce for one message.
// Callers should clear both once the message is processed.
func (s *Schedule) MessageKeys(timeCounter uint32, seqNo uint16) (key, nonce []byte, err error) {
	key, err = s.EncryptionKey(timeCounter, seqNo)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = s.Nonce(timeCounter, seqNo)
	if err != nil {
		clear(key)
		return nil, nil, err
	}
	return key, nonce, nil
}

// Seal derives the message keys and encrypts plaintext.
func (s *Schedule) Seal(timeCounter uint32, seqNo uint16, plaintext []byte) (ciphertext, tag []byte, err error) {
	key, nonce, err := s.MessageKeys(timeCounter, seqNo)
	if err != nil {
		return nil, nil, err
	}
	defer clear(key)
	defer clear(nonce)
	return Encrypt(key, nonce, plaintext)
}

// Open derives the message keys and verifies then decrypts ciphertext.
func (s *Schedule) Open(timeCounter uint32, seqNo uint16, ciphertext, tag []byte) ([]byte, error) {
	key, nonce, err := s.MessageKeys(timeCounter, seqNo)
	if err != nil {
		return nil, err
	}
	defer clear(key)
	defer clear(nonce)
	return VerifyAndDecrypt(key, nonce, ciphertext, tag)
}

// derive2 runs the two-level chain: an intermediate key from the master key
// and the day counter, then the final value from that key and ctx.
func (s *Schedule) derive2(rootLabel string, timeCounter uint32, label string, ctx uint32, outLen int) ([]byte, error) {
	master := s.master.Bytes()
	defer clear(master)

	intermediate, err := Derive(master, s.KeySize(), rootLabel, timeCounter)
	if err != nil {
		return nil, err
	}
	defer clear(intermediate)

	return Derive(intermediate, outLen, label, ctx)
}
