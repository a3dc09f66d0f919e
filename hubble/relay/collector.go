package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	q "github.com/quic-go/quic-go"

	"github.com/hubblenetwork/hubble-go/hubble/capture"
)

var ErrClosed = errors.New("relay: closed")

const (
	codeOK           q.ApplicationErrorCode = 0
	codeUnauthorized q.ApplicationErrorCode = 1
	codeProtocol     q.ApplicationErrorCode = 2
)

// Handler receives batches from a gateway. A non-nil error is reported to
// the gateway as a rejected batch.
type Handler func(ctx context.Context, gateway uuid.UUID, b *capture.Batch) error

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	// Certificate identifies the collector. Gateways pin its fingerprint,
	// so it must persist across restarts (see LoadOrCreateCertificate).
	Certificate tls.Certificate
	// Token, when set, must match the token each gateway presents.
	Token   []byte
	Handler Handler
	Log     *slog.Logger
}

// Collector accepts gateway connections and hands their batches to a
// Handler.
type Collector struct {
	cfg      CollectorConfig
	log      *slog.Logger
	listener *q.Listener

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Listen starts a collector on addr.
func Listen(addr string, cfg CollectorConfig) (*Collector, error) {
	if cfg.Handler == nil {
		return nil, errors.New("relay: collector needs a handler")
	}
	tlsConf, err := serverTLSConfig(cfg.Certificate)
	if err != nil {
		return nil, err
	}
	ln, err := q.ListenAddr(addr, tlsConf, &q.Config{})
	if err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Collector{cfg: cfg, log: log.With("component", "relay-collector"), listener: ln}, nil
}

func (c *Collector) Addr() net.Addr { return c.listener.Addr() }

// Fingerprint returns the value gateways must pin.
func (c *Collector) Fingerprint() Fingerprint {
	fp, _ := CertificateFingerprint(c.cfg.Certificate)
	return fp
}

// Serve accepts connections until ctx is cancelled or the collector is
// closed. It waits for in-flight connections before returning.
func (c *Collector) Serve(ctx context.Context) error {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return ErrClosed
	}
	c.cancel = cancel
	c.mu.Unlock()
	defer c.wg.Wait()
	defer cancel()

	for {
		conn, err := c.listener.Accept(ctx)
		if err != nil {
			if c.isClosed() {
				return ErrClosed
			}
			if parent.Err() != nil {
				return parent.Err()
			}
			return err
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.serveConn(ctx, conn)
		}()
	}
}

func (c *Collector) serveConn(ctx context.Context, conn q.Connection) {
	log := c.log.With("remote", conn.RemoteAddr().String())
	stop := context.AfterFunc(ctx, func() {
		_ = conn.CloseWithError(codeOK, "collector shutting down")
	})
	defer stop()

	st, err := conn.AcceptStream(ctx)
	if err != nil {
		log.Debug("no stream opened", "err", err)
		_ = conn.CloseWithError(codeProtocol, "no stream")
		return
	}

	h, err := readHello(st)
	if err != nil {
		log.Warn("bad hello", "err", err)
		_ = conn.CloseWithError(codeProtocol, "bad hello")
		return
	}
	if len(c.cfg.Token) > 0 && !tokenMatches(c.cfg.Token, h.Token) {
		log.Warn("gateway rejected", "gateway", h.Gateway)
		_ = conn.CloseWithError(codeUnauthorized, "unauthorized")
		return
	}
	log = log.With("gateway", h.Gateway)
	log.Info("gateway connected")

	for {
		b, err := capture.ReadBatch(st)
		if err != nil {
			if !errors.Is(err, capture.ErrInvalidBatch) && !errors.Is(err, capture.ErrBatchTooLarge) {
				log.Info("gateway disconnected", "err", err)
				_ = conn.CloseWithError(codeOK, "")
				return
			}
			log.Warn("invalid batch", "err", err)
			_ = conn.CloseWithError(codeProtocol, "invalid batch")
			return
		}

		ack := ackOK
		if err := c.cfg.Handler(ctx, h.Gateway, b); err != nil {
			log.Error("handler failed", "sightings", b.Len(), "err", err)
			ack = ackRejected
		} else {
			log.Debug("batch received", "sightings", b.Len())
		}
		if _, err := st.Write([]byte{ack}); err != nil {
			log.Info("ack failed", "err", err)
			return
		}
	}
}

func (c *Collector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops accepting connections and disconnects gateways.
func (c *Collector) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	return c.listener.Close()
}
