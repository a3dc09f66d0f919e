// Package scan recovers payloads from received frames when the sender's
// time counter is not known exactly.
//
// The receiver tries candidate time counters around its own, nearest
// first, and accepts the first one whose derived keys authenticate the
// frame. The offset that matched is reported as the day offset between
// sender and receiver clocks.
package scan

import (
	"errors"
	"fmt"

	"github.com/hubblenetwork/hubble-go/hubble/clock"
	"github.com/hubblenetwork/hubble-go/hubble/crypto"
	"github.com/hubblenetwork/hubble-go/hubble/identity"
	"github.com/hubblenetwork/hubble-go/hubble/protocol"
)

// DefaultWindow is the number of days tried on each side of the local
// time counter.
const DefaultWindow = 4

var ErrAuthenticationFailure = errors.New("scan: no time counter in window authenticates frame")

// Result is a successfully authenticated frame.
type Result struct {
	DeviceID  identity.DeviceID
	SeqNo     uint16
	Plaintext []byte
	DayOffset int
}

// InSync reports whether the sender used the receiver's time counter.
func (r Result) InSync() bool { return r.DayOffset == 0 }

// Option configures a Scanner.
type Option func(*Scanner)

// WithWindow sets the search window. Negative values are treated as 0.
func WithWindow(w int) Option {
	return func(s *Scanner) {
		if w < 0 {
			w = 0
		}
		s.window = w
	}
}

// WithClock sets the source of the local time counter.
func WithClock(c clock.Source) Option {
	return func(s *Scanner) { s.clock = c }
}

// Scanner decodes frames for one master key. It holds no per-device
// state and is safe for concurrent use.
type Scanner struct {
	schedule *crypto.Schedule
	window   int
	clock    clock.Source
	offsets  []int
}

// New creates a scanner for master.
func New(master identity.MasterKey, opts ...Option) (*Scanner, error) {
	sched, err := crypto.NewSchedule(master)
	if err != nil {
		return nil, err
	}
	s := &Scanner{
		schedule: sched,
		window:   DefaultWindow,
		clock:    clock.System{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.offsets = Offsets(s.window)
	return s, nil
}

// Window returns the configured search window.
func (s *Scanner) Window() int { return s.window }

// Offsets lists candidate day offsets nearest first, earlier before later
// at equal distance: 0, -1, +1, ..., -w, +w.
func Offsets(w int) []int {
	if w < 0 {
		w = 0
	}
	out := make([]int, 0, 2*w+1)
	out = append(out, 0)
	for d := 1; d <= w; d++ {
		out = append(out, -d, d)
	}
	return out
}

// Decode authenticates f against the local time counter.
func (s *Scanner) Decode(f protocol.Frame) (Result, error) {
	return s.DecodeAt(f, clock.TimeCounter(s.clock.Now()))
}

// DecodeAt authenticates f against timeCounter and its neighbours.
// Candidates below zero are skipped.
func (s *Scanner) DecodeAt(f protocol.Frame, timeCounter uint32) (Result, error) {
	for _, off := range s.offsets {
		candidate := int64(timeCounter) + int64(off)
		if candidate < 0 || candidate > int64(^uint32(0)) {
			continue
		}
		pt, err := s.schedule.Open(uint32(candidate), f.SeqNo, f.Ciphertext, f.Tag[:])
		if errors.Is(err, crypto.ErrAuthFailure) {
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("scan: derive keys for time counter %d: %w", candidate, err)
		}
		return Result{
			DeviceID:  f.DeviceID,
			SeqNo:     f.SeqNo,
			Plaintext: pt,
			DayOffset: off,
		}, nil
	}
	return Result{}, ErrAuthenticationFailure
}

// DecodeBytes parses and authenticates a raw frame.
func (s *Scanner) DecodeBytes(b []byte) (Result, error) {
	f, err := protocol.DecodeFrame(b)
	if err != nil {
		return Result{}, err
	}
	return s.Decode(f)
}

// DecodeServiceData strips the Hubble service UUID and decodes the frame.
func (s *Scanner) DecodeServiceData(sd []byte) (Result, error) {
	f, err := protocol.FrameFromServiceData(sd)
	if err != nil {
		return Result{}, err
	}
	return s.Decode(f)
}
