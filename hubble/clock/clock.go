// Package clock computes the daily time counter that keys are derived
// from, and keeps a UTC estimate for devices synced over the air.
package clock

import (
	"errors"
	"sync"
	"time"
)

// Epoch is the length of one time counter step.
const Epoch = 24 * time.Hour

var ErrZeroTime = errors.New("clock: refusing to sync to zero time")

// TimeCounter returns the number of whole days since the Unix epoch.
// Times before the epoch map to 0.
func TimeCounter(t time.Time) uint32 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint32(s / int64(Epoch/time.Second))
}

// Source supplies the current UTC time.
type Source interface {
	Now() time.Time
}

// System reads the host clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// Synced estimates UTC from the last sync point plus elapsed monotonic
// time, the way a beacon without a real-time clock tracks the date.
type Synced struct {
	mu       sync.RWMutex
	base     time.Time
	at       time.Time
	lastSync time.Time
	since    func(time.Time) time.Duration
}

// NewSynced returns a source that must be Set before use. Until then Now
// reports the zero time.
func NewSynced() *Synced {
	return &Synced{since: time.Since}
}

// Set records utc as the current time.
func (s *Synced) Set(utc time.Time) error {
	if utc.IsZero() || utc.Unix() == 0 {
		return ErrZeroTime
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = utc.UTC()
	s.at = time.Now()
	s.lastSync = s.base
	return nil
}

// Now returns the estimated UTC time.
func (s *Synced) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.base.IsZero() {
		return time.Time{}
	}
	return s.base.Add(s.since(s.at))
}

// LastSynced returns the UTC value passed to the last successful Set.
func (s *Synced) LastSynced() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}
