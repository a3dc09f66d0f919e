package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	q "github.com/quic-go/quic-go"

	"github.com/hubblenetwork/hubble-go/hubble/capture"
)

// SenderConfig configures a Sender.
type SenderConfig struct {
	// Collector is the pinned fingerprint of the collector certificate.
	// Dial fails before sending the token if the server presents another.
	Collector   Fingerprint
	Gateway     uuid.UUID
	Token       []byte
	Compression capture.CompressionLevel
	Log         *slog.Logger
}

// Sender ships batches from a gateway to a collector over one QUIC stream.
// Send calls are serialized.
type Sender struct {
	cfg  SenderConfig
	log  *slog.Logger
	conn q.Connection

	mu     sync.Mutex
	stream q.Stream
	closed bool
}

// Dial connects to a collector and sends the hello.
func Dial(ctx context.Context, addr string, cfg SenderConfig) (*Sender, error) {
	tlsConf, err := clientTLSConfig(cfg.Collector)
	if err != nil {
		return nil, err
	}
	conn, err := q.DialAddr(ctx, addr, tlsConf, &q.Config{})
	if err != nil {
		return nil, fmt.Errorf("relay: dial %s: %w", addr, err)
	}
	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(codeProtocol, "open stream")
		return nil, err
	}
	if cfg.Gateway == uuid.Nil {
		cfg.Gateway = uuid.New()
	}
	if err := writeHello(st, hello{Gateway: cfg.Gateway, Token: cfg.Token}); err != nil {
		_ = conn.CloseWithError(codeProtocol, "hello")
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Sender{
		cfg:    cfg,
		log:    log.With("component", "relay-sender", "gateway", cfg.Gateway),
		conn:   conn,
		stream: st,
	}, nil
}

// Gateway returns the UUID this sender presents.
func (s *Sender) Gateway() uuid.UUID { return s.cfg.Gateway }

// Send writes b and waits for the collector's acknowledgement.
func (s *Sender) Send(ctx context.Context, b *capture.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = s.stream.SetDeadline(deadline)

	if err := capture.WriteBatch(s.stream, b, s.cfg.Compression); err != nil {
		return fmt.Errorf("relay: send batch: %w", err)
	}
	var ack [1]byte
	if _, err := io.ReadFull(s.stream, ack[:]); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("relay: read ack: %w", err)
	}
	if ack[0] != ackOK {
		return ErrRejected
	}
	s.log.Debug("batch sent", "sightings", b.Len())
	return nil
}

// Close ends the stream and the connection.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Close()
	return s.conn.CloseWithError(codeOK, "")
}
