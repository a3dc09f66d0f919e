// Package sequence hands out 10-bit sequence numbers for a sender and
// guards against reusing a (time counter, sequence number) pair, which
// would repeat a nonce and key.
package sequence

import (
	"errors"
	"sync"
)

// MaxSeqNo is the largest value a Counter returns before wrapping.
const MaxSeqNo = 1<<10 - 1

var (
	ErrNonceReuse      = errors.New("sequence: sequence number already used for this time counter")
	ErrInvalidSequence = errors.New("sequence: sequence number exceeds 10 bits")
)

// Counter returns increasing sequence numbers, wrapping to 0 after
// MaxSeqNo.
type Counter struct {
	mu   sync.Mutex
	next uint16
}

// SeqNo converts v to a sequence number. Values above MaxSeqNo are
// rejected rather than wrapped.
func SeqNo(v uint64) (uint16, error) {
	if v > MaxSeqNo {
		return 0, ErrInvalidSequence
	}
	return uint16(v), nil
}

// NewCounter starts a counter at start (taken modulo 1024).
func NewCounter(start uint16) *Counter {
	return &Counter{next: start & MaxSeqNo}
}

// Next returns the current value and advances the counter.
func (c *Counter) Next() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.next
	c.next = (c.next + 1) & MaxSeqNo
	return n
}

// Peek returns the value the next call to Next will return.
func (c *Counter) Peek() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Guard tracks the sequence numbers used within the current time counter.
// Sequence numbers are expected to increase. One wrap per time counter is
// allowed, after which a value may not reach the first sequence number
// seen for that time counter.
type Guard struct {
	mu      sync.Mutex
	started bool
	tc      uint32
	last    uint16
	first   uint16
	wrapped bool
}

// Check records (timeCounter, seqNo) if it is safe to use and returns
// ErrNonceReuse otherwise. A new time counter resets the window.
func (g *Guard) Check(timeCounter uint32, seqNo uint16) error {
	if seqNo > MaxSeqNo {
		return ErrInvalidSequence
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.started || g.tc != timeCounter {
		g.started = true
		g.tc = timeCounter
		g.first = seqNo
		g.last = seqNo
		g.wrapped = false
		return nil
	}

	if seqNo == g.last || (g.wrapped && seqNo >= g.first) {
		return ErrNonceReuse
	}
	if seqNo < g.last {
		if seqNo >= g.first {
			return ErrNonceReuse
		}
		g.wrapped = true
	}
	g.last = seqNo
	return nil
}

// Reset forgets all recorded state.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started = false
	g.tc, g.last, g.first = 0, 0, 0
	g.wrapped = false
}
