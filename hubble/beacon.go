package hubble

import (
	"fmt"

	"github.com/hubblenetwork/hubble-go/hubble/clock"
	"github.com/hubblenetwork/hubble-go/hubble/crypto"
	"github.com/hubblenetwork/hubble-go/hubble/identity"
	"github.com/hubblenetwork/hubble-go/hubble/protocol"
	"github.com/hubblenetwork/hubble-go/hubble/sequence"
)

// Packet is one encoded advertisement.
type Packet struct {
	TimeCounter uint32
	SeqNo       uint16
	DeviceID    identity.DeviceID
	Frame       []byte
}

// ServiceData returns the frame prefixed with the Hubble service UUID.
func (p Packet) ServiceData() []byte {
	return protocol.ServiceData(protocol.ServiceUUID, p.Frame)
}

// AdvertisingData returns complete legacy advertising data for the frame.
func (p Packet) AdvertisingData() ([]byte, error) {
	return protocol.BuildAdvertisingData(p.Frame)
}

// Encode builds a frame for payload under master at the given time
// counter and sequence number. It holds no state; see Beacon for the
// counter and nonce-reuse checks.
func Encode(master identity.MasterKey, timeCounter uint32, seqNo uint16, payload []byte) (Packet, error) {
	sched, err := crypto.NewSchedule(master)
	if err != nil {
		return Packet{}, err
	}
	return encode(sched, timeCounter, seqNo, payload)
}

func encode(sched *crypto.Schedule, timeCounter uint32, seqNo uint16, payload []byte) (Packet, error) {
	if len(payload) > protocol.MaxCiphertextSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", protocol.ErrPayloadTooLarge, len(payload))
	}
	if seqNo > protocol.MaxSeqNo {
		return Packet{}, fmt.Errorf("%w: %d", protocol.ErrInvalidSequence, seqNo)
	}
	id, err := sched.DeviceID(timeCounter)
	if err != nil {
		return Packet{}, err
	}
	ct, tag, err := sched.Seal(timeCounter, seqNo, payload)
	if err != nil {
		return Packet{}, err
	}
	frame, err := protocol.EncodeFrame(id, seqNo, tag, ct)
	if err != nil {
		return Packet{}, err
	}
	return Packet{TimeCounter: timeCounter, SeqNo: seqNo, DeviceID: id, Frame: frame}, nil
}

// BeaconConfig configures a Beacon.
type BeaconConfig struct {
	Key identity.MasterKey
	// Clock defaults to the system clock. Beacons without a real-time
	// clock use a clock.Synced source set over the time-sync service.
	Clock clock.Source
	// Counter defaults to a counter starting at 0.
	Counter *sequence.Counter
}

// Beacon produces advertisements for one device.
type Beacon struct {
	sched   *crypto.Schedule
	clock   clock.Source
	counter *sequence.Counter
	guard   sequence.Guard
}

func NewBeacon(cfg BeaconConfig) (*Beacon, error) {
	sched, err := crypto.NewSchedule(cfg.Key)
	if err != nil {
		return nil, err
	}
	b := &Beacon{sched: sched, clock: cfg.Clock, counter: cfg.Counter}
	if b.clock == nil {
		b.clock = clock.System{}
	}
	if b.counter == nil {
		b.counter = sequence.NewCounter(0)
	}
	return b, nil
}

// Next encodes payload with the current time counter and the next
// sequence number.
func (b *Beacon) Next(payload []byte) (Packet, error) {
	now := b.clock.Now()
	if now.IsZero() {
		return Packet{}, clock.ErrZeroTime
	}
	return b.EncodeAt(clock.TimeCounter(now), b.counter.Next(), payload)
}

// EncodeAt encodes payload with an explicit time counter and sequence
// number, refusing a pair this beacon already used.
func (b *Beacon) EncodeAt(timeCounter uint32, seqNo uint16, payload []byte) (Packet, error) {
	if len(payload) > protocol.MaxCiphertextSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", protocol.ErrPayloadTooLarge, len(payload))
	}
	if seqNo > protocol.MaxSeqNo {
		return Packet{}, fmt.Errorf("%w: %d", protocol.ErrInvalidSequence, seqNo)
	}
	if err := b.guard.Check(timeCounter, seqNo); err != nil {
		return Packet{}, fmt.Errorf("hubble: time counter %d seq %d: %w", timeCounter, seqNo, err)
	}
	return encode(b.sched, timeCounter, seqNo, payload)
}

// DeviceID returns the device ID advertised during the current day.
func (b *Beacon) DeviceID() (identity.DeviceID, error) {
	return b.sched.DeviceID(clock.TimeCounter(b.clock.Now()))
}
