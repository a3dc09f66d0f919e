package capture

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hubblenetwork/hubble-go/hubble/identity"
	"github.com/hubblenetwork/hubble-go/hubble/scan"
)

func sampleSighting(i int) Sighting {
	id, _ := identity.ParseDeviceIDHex("60db8595")
	return Sighting{
		ID:         uuid.New(),
		Device:     uuid.MustParse("7a6f1c1e-2f5d-4b7e-9c59-0b2b9d4f3a11"),
		DeviceID:   id,
		SeqNo:      uint16(i % 1024),
		Payload:    []byte("Hello"),
		DayOffset:  -1,
		RSSI:       -67,
		ReceivedAt: time.Unix(1_700_000_000, int64(i)).UTC(),
	}
}

func TestBatchRoundTrip(t *testing.T) {
	b := NewBatch()
	for i := 0; i < 50; i++ {
		b.Add(sampleSighting(i))
	}
	loc := sampleSighting(99)
	loc.Location = &Location{Latitude: 37.7749, Longitude: -122.4194, Accuracy: 12.5}
	loc.Payload = nil
	b.Add(loc)

	data, err := b.Encode(CompressionDefault)
	require.NoError(t, err)
	// Repetitive records compress.
	require.Equal(t, byte(flagCompressed), data[4]&flagCompressed)
	require.Less(t, len(data), b.Size())

	got, err := DecodeBatch(data)
	require.NoError(t, err)
	require.Equal(t, b.Len(), got.Len())
	for i := range b.Sightings {
		want := b.Sightings[i]
		have := got.Sightings[i]
		require.Equal(t, want.ID, have.ID)
		require.Equal(t, want.DeviceID, have.DeviceID)
		require.Equal(t, want.SeqNo, have.SeqNo)
		require.Equal(t, want.DayOffset, have.DayOffset)
		require.Equal(t, want.RSSI, have.RSSI)
		require.True(t, want.ReceivedAt.Equal(have.ReceivedAt))
		require.True(t, bytes.Equal(want.Payload, have.Payload))
	}
	require.Equal(t, loc.Location, got.Sightings[50].Location)
	require.Nil(t, got.Sightings[0].Location)
}

func TestBatchUncompressedWhenNotSmaller(t *testing.T) {
	b := NewBatch()
	b.Add(sampleSighting(1))
	data, err := b.Encode(CompressionFast)
	require.NoError(t, err)

	got, err := DecodeBatch(data)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())

	empty, err := NewBatch().Encode(CompressionDefault)
	require.NoError(t, err)
	got, err = DecodeBatch(empty)
	require.NoError(t, err)
	require.Equal(t, 0, got.Len())
}

func TestUnknownCompressionLevel(t *testing.T) {
	_, err := compress([]byte("records"), CompressionLevel(42))
	require.ErrorIs(t, err, ErrCompressionFailed)

	b := NewBatch()
	b.Add(sampleSighting(1))
	_, err = b.Encode(CompressionLevel(42))
	require.ErrorIs(t, err, ErrCompressionFailed)

	for _, lvl := range []CompressionLevel{CompressionFast, CompressionDefault, CompressionBest} {
		_, err := compress([]byte("records"), lvl)
		require.NoError(t, err)
	}
}

func TestDecodeBatchRejectsCorruption(t *testing.T) {
	b := NewBatch()
	b.Add(sampleSighting(1))
	data, err := b.Encode(CompressionFast)
	require.NoError(t, err)

	_, err = DecodeBatch(data[:5])
	require.ErrorIs(t, err, ErrInvalidBatch)

	bad := append([]byte(nil), data...)
	bad[0] = 'X'
	_, err = DecodeBatch(bad)
	require.ErrorIs(t, err, ErrInvalidBatch)

	_, err = DecodeBatch(data[:len(data)-1])
	require.ErrorIs(t, err, ErrInvalidBatch)

	bad = append([]byte(nil), data...)
	bad[8] = 200 // count far beyond the records
	_, err = DecodeBatch(bad)
	require.ErrorIs(t, err, ErrInvalidBatch)
}

func TestSightingPayloadLimit(t *testing.T) {
	b := NewBatch()
	s := sampleSighting(1)
	s.Payload = make([]byte, MaxPayloadSize+1)
	b.Add(s)
	_, err := b.Encode(CompressionDefault)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestWriteReadBatch(t *testing.T) {
	var buf bytes.Buffer
	b := NewBatch()
	b.Add(sampleSighting(3))
	b.Add(sampleSighting(4))
	require.NoError(t, WriteBatch(&buf, b, CompressionBest))
	require.NoError(t, WriteBatch(&buf, NewBatch(), CompressionBest))

	got, err := ReadBatch(&buf)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	got, err = ReadBatch(&buf)
	require.NoError(t, err)
	require.Equal(t, 0, got.Len())
}

func TestFromResult(t *testing.T) {
	device := uuid.New()
	res := scan.Result{SeqNo: 9, Plaintext: []byte{1, 2}, DayOffset: 1}
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	s := FromResult(device, res, -80, at)
	require.Equal(t, device, s.Device)
	require.NotEqual(t, uuid.Nil, s.ID)
	require.Equal(t, time.UTC, s.ReceivedAt.Location())
	res.Plaintext[0] = 9
	require.Equal(t, byte(1), s.Payload[0])
}

func TestBuffer(t *testing.T) {
	buf := NewBuffer(2)
	require.Nil(t, buf.Flush())
	require.Nil(t, buf.Add(sampleSighting(1)))
	full := buf.Add(sampleSighting(2))
	require.NotNil(t, full)
	require.Equal(t, 2, full.Len())
	require.Nil(t, buf.Add(sampleSighting(3)))
	rest := buf.Flush()
	require.NotNil(t, rest)
	require.Equal(t, 1, rest.Len())
	require.Nil(t, buf.Flush())
}
