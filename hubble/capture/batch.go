package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrBatchTooLarge = errors.New("capture: batch exceeds maximum size")
	ErrInvalidBatch  = errors.New("capture: invalid batch")

	errTruncated = fmt.Errorf("%w: truncated", ErrInvalidBatch)
)

const (
	// MaxBatchSize is the largest encoded or decoded batch body (4 MB).
	MaxBatchSize = 4 * 1024 * 1024
	// BatchMagic identifies a sighting batch ("HBSB").
	BatchMagic = uint32(0x48425342)

	batchHeaderSize = 4 + 1 + 4 + 4

	flagCompressed = 1 << 0
)

// Batch groups sightings for a single hand-off.
type Batch struct {
	Sightings []Sighting
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{Sightings: make([]Sighting, 0)}
}

// Add appends a sighting.
func (b *Batch) Add(s Sighting) {
	b.Sightings = append(b.Sightings, s)
}

// Len returns the number of sightings.
func (b *Batch) Len() int { return len(b.Sightings) }

// Size returns the uncompressed record size of the batch.
func (b *Batch) Size() int {
	size := 0
	for i := range b.Sightings {
		size += b.Sightings[i].encodedSize()
	}
	return size
}

// Encode serializes the batch, compressing records with LZ4 when that
// makes them smaller.
// Format:
//
//	4 bytes: magic
//	1 byte: flags (bit 0: compressed)
//	4 bytes: sighting count
//	4 bytes: uncompressed record length
//	N bytes: records
func (b *Batch) Encode(level CompressionLevel) ([]byte, error) {
	size := b.Size()
	if size > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	records := make([]byte, 0, size)
	for i := range b.Sightings {
		var err error
		records, err = b.Sightings[i].appendBinary(records)
		if err != nil {
			return nil, fmt.Errorf("capture: sighting %d: %w", i, err)
		}
	}

	var flags byte
	body := records
	if len(records) > 0 {
		c, err := compress(records, level)
		if err != nil {
			return nil, err
		}
		if len(c) < len(records) {
			body = c
			flags |= flagCompressed
		}
	}

	buf := make([]byte, batchHeaderSize, batchHeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[0:], BatchMagic)
	buf[4] = flags
	binary.BigEndian.PutUint32(buf[5:], uint32(len(b.Sightings)))
	binary.BigEndian.PutUint32(buf[9:], uint32(len(records)))
	return append(buf, body...), nil
}

// DecodeBatch deserializes a batch from wire format.
func DecodeBatch(data []byte) (*Batch, error) {
	if len(data) < batchHeaderSize {
		return nil, errTruncated
	}
	if binary.BigEndian.Uint32(data[0:]) != BatchMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidBatch)
	}
	flags := data[4]
	count := binary.BigEndian.Uint32(data[5:])
	rawLen := binary.BigEndian.Uint32(data[9:])
	if rawLen > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	if uint64(count)*sightingFixedSize > uint64(rawLen) {
		return nil, fmt.Errorf("%w: %d sightings cannot fit %d bytes", ErrInvalidBatch, count, rawLen)
	}

	records := data[batchHeaderSize:]
	if flags&flagCompressed != 0 {
		var err error
		records, err = decompress(records, int(rawLen))
		if err != nil {
			return nil, err
		}
	}
	if len(records) != int(rawLen) {
		return nil, fmt.Errorf("%w: record length %d, header says %d", ErrInvalidBatch, len(records), rawLen)
	}

	b := &Batch{Sightings: make([]Sighting, 0, count)}
	off := 0
	for i := uint32(0); i < count; i++ {
		s, n, err := decodeSighting(records[off:])
		if err != nil {
			return nil, err
		}
		b.Sightings = append(b.Sightings, s)
		off += n
	}
	if off != len(records) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidBatch, len(records)-off)
	}
	return b, nil
}

// WriteBatch writes a length-prefixed batch to w.
func WriteBatch(w io.Writer, b *Batch, level CompressionLevel) error {
	data, err := b.Encode(level)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadBatch reads a batch written by WriteBatch.
func ReadBatch(r io.Reader) (*Batch, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	dataLen := binary.BigEndian.Uint32(lenBuf[:])
	if dataLen > MaxBatchSize+batchHeaderSize {
		return nil, ErrBatchTooLarge
	}
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return DecodeBatch(data)
}
