package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hubblenetwork/hubble-go/hubble/capture"
)

// BatchSender is satisfied by Sender.
type BatchSender interface {
	Send(ctx context.Context, b *capture.Batch) error
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithSpool stores batches that fail to send in sp instead of returning
// the error. Replay forwards them later.
func WithSpool(sp *capture.Spool, log *slog.Logger) SinkOption {
	return func(k *Sink) {
		k.spool = sp
		if log != nil {
			k.log = log
		}
	}
}

// Sink buffers sightings and forwards them in batches.
type Sink struct {
	sender BatchSender
	buf    *capture.Buffer
	spool  *capture.Spool
	log    *slog.Logger
}

// NewSink forwards batches of batchSize sightings to sender.
func NewSink(sender BatchSender, batchSize int, opts ...SinkOption) *Sink {
	k := &Sink{sender: sender, buf: capture.NewBuffer(batchSize), log: slog.Default()}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Record buffers s and sends the batch once it is full.
func (k *Sink) Record(ctx context.Context, s capture.Sighting) error {
	if b := k.buf.Add(s); b != nil {
		return k.send(ctx, b)
	}
	return nil
}

// Flush sends any buffered sightings.
func (k *Sink) Flush(ctx context.Context) error {
	if b := k.buf.Flush(); b != nil {
		return k.send(ctx, b)
	}
	return nil
}

// Replay sends spooled batches, oldest first. It returns the number
// delivered.
func (k *Sink) Replay(ctx context.Context) (int, error) {
	if k.spool == nil {
		return 0, nil
	}
	return k.spool.Drain(ctx, k.sender.Send)
}

func (k *Sink) send(ctx context.Context, b *capture.Batch) error {
	err := k.sender.Send(ctx, b)
	if err == nil || k.spool == nil || errors.Is(err, ErrRejected) || errors.Is(err, ErrUnauthorized) {
		return err
	}
	name, serr := k.spool.Put(b)
	if serr != nil {
		k.log.Error("spooling batch", "err", serr, "send_err", err)
		return err
	}
	k.log.Warn("collector unavailable, batch spooled", "file", name, "sightings", b.Len(), "err", err)
	return nil
}
