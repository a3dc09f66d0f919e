package identity

import (
	"bytes"
	"testing"
)

func TestMasterKeyLengths(t *testing.T) {
	for _, n := range []int{0, 1, 15, 17, 24, 31, 33, 64} {
		if _, err := NewMasterKey(make([]byte, n)); err != ErrInvalidKeyLength {
			t.Fatalf("len %d: expected ErrInvalidKeyLength, got %v", n, err)
		}
	}
	for _, n := range []int{KeySize128, KeySize256} {
		k, err := NewMasterKey(make([]byte, n))
		if err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		if k.Size() != n {
			t.Fatalf("Size() = %d, want %d", k.Size(), n)
		}
	}
}

func TestMasterKeyIsCopied(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, KeySize128)
	k, err := NewMasterKey(raw)
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}
	raw[0] = 0
	if k.Bytes()[0] != 0x42 {
		t.Fatalf("master key aliased caller buffer")
	}
	out := k.Bytes()
	out[1] = 0
	if k.Bytes()[1] != 0x42 {
		t.Fatalf("Bytes() exposed internal buffer")
	}
}

func TestGenerateMasterKey(t *testing.T) {
	a, err := GenerateMasterKey(KeySize256)
	if err != nil {
		t.Fatalf("GenerateMasterKey: %v", err)
	}
	b, _ := GenerateMasterKey(KeySize256)
	if a.Equal(b) {
		t.Fatalf("two generated keys are equal")
	}
	if !a.Equal(a) {
		t.Fatalf("key not equal to itself")
	}
	if _, err := GenerateMasterKey(20); err != ErrInvalidKeyLength {
		t.Fatalf("expected ErrInvalidKeyLength, got %v", err)
	}
}

func TestDeviceIDHexRoundTrip(t *testing.T) {
	id := DeviceID{0x60, 0xdb, 0x85, 0x95}
	if id.String() != "60db8595" {
		t.Fatalf("String() = %s", id.String())
	}
	if id.Uint32() != 0x60db8595 {
		t.Fatalf("Uint32() = %#x", id.Uint32())
	}
	parsed, err := ParseDeviceIDHex(id.String())
	if err != nil {
		t.Fatalf("ParseDeviceIDHex: %v", err)
	}
	if parsed != id {
		t.Fatalf("ParseDeviceIDHex mismatch")
	}
	if _, err := ParseDeviceIDHex("60db85"); err != ErrInvalidDeviceID {
		t.Fatalf("expected ErrInvalidDeviceID, got %v", err)
	}
}
