package sequence

import (
	"errors"
	"sync"
	"testing"
)

func TestCounterWraps(t *testing.T) {
	c := NewCounter(MaxSeqNo - 1)
	if got := c.Next(); got != MaxSeqNo-1 {
		t.Fatalf("Next = %d", got)
	}
	if got := c.Next(); got != MaxSeqNo {
		t.Fatalf("Next = %d", got)
	}
	if got := c.Next(); got != 0 {
		t.Fatalf("expected wrap to 0, got %d", got)
	}
	if got := c.Peek(); got != 1 {
		t.Fatalf("Peek = %d", got)
	}
	if got := NewCounter(1024 + 5).Next(); got != 5 {
		t.Fatalf("start not reduced modulo 1024: %d", got)
	}
}

func TestSeqNoRange(t *testing.T) {
	for _, v := range []uint64{0, 1, MaxSeqNo} {
		got, err := SeqNo(v)
		if err != nil || uint64(got) != v {
			t.Fatalf("SeqNo(%d) = %d, %v", v, got, err)
		}
	}
	for _, v := range []uint64{MaxSeqNo + 1, 1 << 16, 1<<16 + 5} {
		if _, err := SeqNo(v); !errors.Is(err, ErrInvalidSequence) {
			t.Fatalf("SeqNo(%d): expected ErrInvalidSequence, got %v", v, err)
		}
	}
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter(0)
	seen := make(map[uint16]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n := c.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 800 {
		t.Fatalf("expected 800 distinct values, got %d", len(seen))
	}
}

func TestGuard(t *testing.T) {
	type step struct {
		tc   uint32
		seq  uint16
		want error
	}
	tests := []struct {
		name  string
		steps []step
	}{
		{"increasing", []step{{10, 0, nil}, {10, 1, nil}, {10, 5, nil}}},
		{"repeat", []step{{10, 3, nil}, {10, 3, ErrNonceReuse}}},
		{"new day resets", []step{{10, 3, nil}, {11, 3, nil}, {11, 3, ErrNonceReuse}}},
		{"wrap below first", []step{{10, 500, nil}, {10, 1023, nil}, {10, 0, nil}, {10, 499, nil}}},
		{"wrap onto first", []step{{10, 500, nil}, {10, 1023, nil}, {10, 500, ErrNonceReuse}}},
		{"wrap past first", []step{{10, 500, nil}, {10, 1023, nil}, {10, 0, nil}, {10, 600, ErrNonceReuse}}},
		{"backwards above first", []step{{10, 5, nil}, {10, 9, nil}, {10, 7, ErrNonceReuse}}},
		{"out of range", []step{{10, 1024, ErrInvalidSequence}}},
		{"time counter zero tracked", []step{{0, 1, nil}, {0, 1, ErrNonceReuse}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var g Guard
			for i, s := range tt.steps {
				if err := g.Check(s.tc, s.seq); err != s.want {
					t.Fatalf("step %d (tc=%d seq=%d): got %v, want %v", i, s.tc, s.seq, err, s.want)
				}
			}
		})
	}
}

func TestGuardReset(t *testing.T) {
	var g Guard
	if err := g.Check(1, 1); err != nil {
		t.Fatalf("Check: %v", err)
	}
	g.Reset()
	if err := g.Check(1, 1); err != nil {
		t.Fatalf("after Reset: %v", err)
	}
}
