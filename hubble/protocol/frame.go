package protocol

import (
	"fmt"

	"github.com/hubblenetwork/hubble-go/hubble/identity"
)

// Frame is a decoded advertisement.
type Frame struct {
	Version    uint8
	SeqNo      uint16
	DeviceID   identity.DeviceID
	Tag        [TagSize]byte
	Ciphertext []byte
}

// EncodeFrame packs a version 0 frame.
func EncodeFrame(deviceID identity.DeviceID, seqNo uint16, tag, ciphertext []byte) ([]byte, error) {
	if len(tag) != TagSize {
		return nil, ErrInvalidTag
	}
	f := Frame{SeqNo: seqNo, DeviceID: deviceID, Ciphertext: ciphertext}
	copy(f.Tag[:], tag)
	return f.Encode()
}

// Encode serializes the frame. The Version field is written as-is.
func (f Frame) Encode() ([]byte, error) {
	if len(f.Ciphertext) > MaxCiphertextSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Ciphertext))
	}
	if f.SeqNo > MaxSeqNo {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSequence, f.SeqNo)
	}
	if f.Version >= 1<<6 {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedFrame, f.Version)
	}

	w := BitWriter{buf: make([]byte, 0, MinFrameSize+len(f.Ciphertext))}
	w.WriteBits(uint64(f.Version), 6)
	w.WriteBits(uint64(f.SeqNo), 10)
	w.WriteBytes(f.DeviceID[:])
	w.WriteBytes(f.Tag[:])
	w.WriteBytes(f.Ciphertext)
	return w.Bytes(), nil
}

// DecodeFrame parses a frame. Unknown versions are returned to the caller
// rather than rejected.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < MinFrameSize || len(b) > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(b))
	}
	r := NewBitReader(b)
	version, _ := r.ReadBits(6)
	seq, _ := r.ReadBits(10)
	id, _ := r.ReadBytes(identity.DeviceIDSize)
	tag, _ := r.ReadBytes(TagSize)
	ct, _ := r.ReadBytes(r.Remaining() / 8)

	f := Frame{
		Version:    uint8(version),
		SeqNo:      uint16(seq),
		Ciphertext: ct,
	}
	copy(f.DeviceID[:], id)
	copy(f.Tag[:], tag)
	return f, nil
}
