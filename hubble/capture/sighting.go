// Package capture records decoded advertisements and packs them into
// compressed batches for hand-off to a collector.
package capture

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hubblenetwork/hubble-go/hubble/identity"
	"github.com/hubblenetwork/hubble-go/hubble/scan"
)

// MaxPayloadSize bounds a sighting payload. Decoded frames carry at most
// 13 bytes; the extra room is for future frame versions.
const MaxPayloadSize = 255

var ErrPayloadTooLarge = errors.New("capture: payload exceeds 255 bytes")

// Location is where a receiver was when it heard a beacon.
type Location struct {
	Latitude  float64
	Longitude float64
	// Accuracy is the horizontal accuracy radius in meters.
	Accuracy float64
}

// Sighting is one authenticated advertisement together with the receiver
// metadata that travels outside the frame.
type Sighting struct {
	ID         uuid.UUID
	Device     uuid.UUID
	DeviceID   identity.DeviceID
	SeqNo      uint16
	Payload    []byte
	DayOffset  int
	RSSI       int
	ReceivedAt time.Time
	Location   *Location
}

// FromResult builds a sighting for device from a scan result.
func FromResult(device uuid.UUID, res scan.Result, rssi int, at time.Time) Sighting {
	return Sighting{
		ID:         uuid.New(),
		Device:     device,
		DeviceID:   res.DeviceID,
		SeqNo:      res.SeqNo,
		Payload:    append([]byte(nil), res.Plaintext...),
		DayOffset:  res.DayOffset,
		RSSI:       rssi,
		ReceivedAt: at.UTC(),
	}
}

const (
	flagLocation = 1 << 0

	// id + device + device ID + seq + day offset + rssi + time + flags + payload len
	sightingFixedSize = 16 + 16 + identity.DeviceIDSize + 2 + 2 + 2 + 8 + 1 + 1
	locationSize      = 3 * 8
)

func (s *Sighting) encodedSize() int {
	n := sightingFixedSize + len(s.Payload)
	if s.Location != nil {
		n += locationSize
	}
	return n
}

// appendBinary appends the record encoding:
//
//	16 bytes: sighting ID
//	16 bytes: device UUID
//	4 bytes: over-the-air device ID
//	2 bytes: sequence number
//	2 bytes: day offset (signed)
//	2 bytes: RSSI in dBm (signed)
//	8 bytes: receive time, Unix nanoseconds
//	1 byte: flags
//	[24 bytes: latitude, longitude, accuracy as float64 bits]
//	1 byte: payload length
//	N bytes: payload
func (s *Sighting) appendBinary(buf []byte) ([]byte, error) {
	if len(s.Payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	buf = append(buf, s.ID[:]...)
	buf = append(buf, s.Device[:]...)
	buf = append(buf, s.DeviceID[:]...)
	buf = binary.BigEndian.AppendUint16(buf, s.SeqNo)
	buf = binary.BigEndian.AppendUint16(buf, uint16(int16(s.DayOffset)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(int16(s.RSSI)))
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.ReceivedAt.UnixNano()))

	var flags byte
	if s.Location != nil {
		flags |= flagLocation
	}
	buf = append(buf, flags)
	if s.Location != nil {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(s.Location.Latitude))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(s.Location.Longitude))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(s.Location.Accuracy))
	}
	buf = append(buf, byte(len(s.Payload)))
	buf = append(buf, s.Payload...)
	return buf, nil
}

// decodeSighting parses one record and returns the bytes consumed.
func decodeSighting(data []byte) (Sighting, int, error) {
	if len(data) < sightingFixedSize {
		return Sighting{}, 0, errTruncated
	}
	var s Sighting
	off := 0
	copy(s.ID[:], data[off:])
	off += 16
	copy(s.Device[:], data[off:])
	off += 16
	copy(s.DeviceID[:], data[off:])
	off += identity.DeviceIDSize
	s.SeqNo = binary.BigEndian.Uint16(data[off:])
	off += 2
	s.DayOffset = int(int16(binary.BigEndian.Uint16(data[off:])))
	off += 2
	s.RSSI = int(int16(binary.BigEndian.Uint16(data[off:])))
	off += 2
	s.ReceivedAt = time.Unix(0, int64(binary.BigEndian.Uint64(data[off:]))).UTC()
	off += 8
	flags := data[off]
	off++

	if flags&flagLocation != 0 {
		if len(data) < off+locationSize+1 {
			return Sighting{}, 0, errTruncated
		}
		s.Location = &Location{
			Latitude:  math.Float64frombits(binary.BigEndian.Uint64(data[off:])),
			Longitude: math.Float64frombits(binary.BigEndian.Uint64(data[off+8:])),
			Accuracy:  math.Float64frombits(binary.BigEndian.Uint64(data[off+16:])),
		}
		off += locationSize
	}

	n := int(data[off])
	off++
	if len(data) < off+n {
		return Sighting{}, 0, errTruncated
	}
	s.Payload = append([]byte(nil), data[off:off+n]...)
	off += n
	return s, off, nil
}
