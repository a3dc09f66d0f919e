package identity

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
)

const DeviceIDSize = 4

var ErrInvalidDeviceID = errors.New("identity: device id must be 4 bytes")

// DeviceID is the daily pseudo-identity of a beacon.
// It is derived from the master key and the time counter and is never
// linked to the master key on the wire, so it rotates every day.
type DeviceID [DeviceIDSize]byte

func DeviceIDFromBytes(b []byte) (DeviceID, error) {
	if len(b) != DeviceIDSize {
		return DeviceID{}, ErrInvalidDeviceID
	}
	var id DeviceID
	copy(id[:], b)
	return id, nil
}

func ParseDeviceIDHex(s string) (DeviceID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return DeviceID{}, err
	}
	return DeviceIDFromBytes(b)
}

// Uint32 interprets the wire bytes as a big-endian integer.
func (id DeviceID) Uint32() uint32 {
	return binary.BigEndian.Uint32(id[:])
}

func (id DeviceID) String() string {
	return hex.EncodeToString(id[:])
}
