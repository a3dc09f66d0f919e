package hubble

import (
	"context"
	"io"
	"sync"

	"github.com/hubblenetwork/hubble-go/hubble/capture"
)

// SliceSource replays a fixed list of advertisements.
type SliceSource struct {
	mu   sync.Mutex
	advs []Advertisement
}

func NewSliceSource(advs ...Advertisement) *SliceSource {
	return &SliceSource{advs: advs}
}

func (s *SliceSource) Next(ctx context.Context) (Advertisement, error) {
	if err := ctx.Err(); err != nil {
		return Advertisement{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.advs) == 0 {
		return Advertisement{}, io.EOF
	}
	adv := s.advs[0]
	s.advs = s.advs[1:]
	return adv, nil
}

// ChanSource adapts a channel fed by a radio driver. Closing the channel
// ends the source.
type ChanSource <-chan Advertisement

func (c ChanSource) Next(ctx context.Context) (Advertisement, error) {
	select {
	case adv, ok := <-c:
		if !ok {
			return Advertisement{}, io.EOF
		}
		return adv, nil
	case <-ctx.Done():
		return Advertisement{}, ctx.Err()
	}
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, s capture.Sighting) error

func (f SinkFunc) Record(ctx context.Context, s capture.Sighting) error { return f(ctx, s) }
