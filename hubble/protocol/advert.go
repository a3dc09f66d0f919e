package protocol

import (
	"encoding/binary"
	"fmt"
)

// AD types used by Hubble advertisements.
const (
	ADTypeComplete16BitServiceUUIDs = 0x03
	ADTypeServiceData16Bit          = 0x16
)

// MaxAdvertisingDataLen is the legacy advertising payload limit.
const MaxAdvertisingDataLen = 31

// ADStructure is one length-type-value element of advertising data.
// The encoded length byte covers Type and Data.
type ADStructure struct {
	Type byte
	Data []byte
}

// ServiceData prefixes frame with the little-endian service UUID, the form
// it takes inside a Service Data 16-bit element.
func ServiceData(uuid uint16, frame []byte) []byte {
	out := make([]byte, 2, 2+len(frame))
	binary.LittleEndian.PutUint16(out, uuid)
	return append(out, frame...)
}

// SplitServiceData returns the UUID and body of a service data element.
func SplitServiceData(sd []byte) (uint16, []byte, error) {
	if len(sd) < 2 {
		return 0, nil, fmt.Errorf("%w: service data of %d bytes", ErrServiceDataMissing, len(sd))
	}
	return binary.LittleEndian.Uint16(sd), sd[2:], nil
}

// FrameFromServiceData checks the Hubble UUID prefix and decodes the frame.
func FrameFromServiceData(sd []byte) (Frame, error) {
	uuid, body, err := SplitServiceData(sd)
	if err != nil {
		return Frame{}, err
	}
	if uuid != ServiceUUID {
		return Frame{}, fmt.Errorf("%w: uuid %#04x", ErrServiceDataMissing, uuid)
	}
	return DecodeFrame(body)
}

// BuildAdvertisingData wraps an encoded frame into advertising data: a
// complete 16-bit service UUID list followed by the service data element.
func BuildAdvertisingData(frame []byte) ([]byte, error) {
	if len(frame) < MinFrameSize || len(frame) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(frame))
	}
	uuids := make([]byte, 2)
	binary.LittleEndian.PutUint16(uuids, ServiceUUID)
	return EncodeADStructures([]ADStructure{
		{Type: ADTypeComplete16BitServiceUUIDs, Data: uuids},
		{Type: ADTypeServiceData16Bit, Data: ServiceData(ServiceUUID, frame)},
	})
}

// ParseAdvertisingData finds the Hubble service data element in raw
// advertising data and returns its body with the UUID prefix.
func ParseAdvertisingData(adv []byte) ([]byte, error) {
	structures, err := DecodeADStructures(adv)
	if err != nil {
		return nil, err
	}
	for _, s := range structures {
		if s.Type != ADTypeServiceData16Bit || len(s.Data) < 2 {
			continue
		}
		if binary.LittleEndian.Uint16(s.Data) == ServiceUUID {
			return s.Data, nil
		}
	}
	return nil, ErrServiceDataMissing
}

// EncodeADStructures serializes structures in order.
func EncodeADStructures(structures []ADStructure) ([]byte, error) {
	var buf []byte
	for _, s := range structures {
		length := 1 + len(s.Data)
		if length > 255 {
			return nil, fmt.Errorf("protocol: AD structure too long: %d bytes", length)
		}
		buf = append(buf, byte(length), s.Type)
		buf = append(buf, s.Data...)
	}
	if len(buf) > MaxAdvertisingDataLen {
		return nil, fmt.Errorf("protocol: advertising data exceeds %d bytes: %d", MaxAdvertisingDataLen, len(buf))
	}
	return buf, nil
}

// DecodeADStructures splits advertising data into its elements. A zero
// length byte terminates the data early, as controllers pad with zeros.
func DecodeADStructures(data []byte) ([]ADStructure, error) {
	var out []ADStructure
	for i := 0; i < len(data); {
		length := int(data[i])
		if length == 0 {
			break
		}
		if i+1+length > len(data) {
			return nil, fmt.Errorf("protocol: AD structure at offset %d truncated", i)
		}
		out = append(out, ADStructure{
			Type: data[i+1],
			Data: append([]byte(nil), data[i+2:i+1+length]...),
		})
		i += 1 + length
	}
	return out, nil
}
