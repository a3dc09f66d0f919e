package capture

import "sync"

// Buffer accumulates sightings until a batch is full.
type Buffer struct {
	mu      sync.Mutex
	limit   int
	pending *Batch
}

// NewBuffer returns a buffer that fills batches of up to limit sightings.
func NewBuffer(limit int) *Buffer {
	if limit < 1 {
		limit = 1
	}
	return &Buffer{limit: limit, pending: NewBatch()}
}

// Add appends s. When the pending batch reaches the limit it is returned
// and a new one is started; otherwise Add returns nil.
func (b *Buffer) Add(s Sighting) *Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending.Add(s)
	if b.pending.Len() < b.limit {
		return nil
	}
	full := b.pending
	b.pending = NewBatch()
	return full
}

// Flush returns the pending batch, or nil if it is empty.
func (b *Buffer) Flush() *Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending.Len() == 0 {
		return nil
	}
	out := b.pending
	b.pending = NewBatch()
	return out
}
