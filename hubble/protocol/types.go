package protocol

import "errors"

const (
	// Version is the only protocol version emitted by this package.
	Version = 0

	// MaxSeqNo is the largest 10-bit sequence number.
	MaxSeqNo = 1<<10 - 1

	// HeaderSize covers version, sequence number and device ID.
	HeaderSize = 6
	// TagSize is the truncated authentication tag length.
	TagSize = 4
	// MinFrameSize is a frame with an empty ciphertext.
	MinFrameSize = HeaderSize + TagSize
	// MaxCiphertextSize bounds the encrypted payload.
	MaxCiphertextSize = 13
	// MaxFrameSize fits the service data element of a legacy advertisement.
	MaxFrameSize = MinFrameSize + MaxCiphertextSize
)

// 16-bit service UUIDs assigned to Hubble.
const (
	ServiceUUID     uint16 = 0xFCA6
	SyncServiceUUID uint16 = 0xFCA7
)

var (
	ErrPayloadTooLarge    = errors.New("protocol: ciphertext exceeds 13 bytes")
	ErrMalformedFrame     = errors.New("protocol: malformed frame")
	ErrInvalidSequence    = errors.New("protocol: sequence number exceeds 10 bits")
	ErrInvalidTag         = errors.New("protocol: tag must be 4 bytes")
	ErrServiceDataMissing = errors.New("protocol: hubble service data not found")
)
