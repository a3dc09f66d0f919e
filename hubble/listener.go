package hubble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hubblenetwork/hubble-go/hubble/capture"
	"github.com/hubblenetwork/hubble-go/hubble/clock"
	"github.com/hubblenetwork/hubble-go/hubble/discovery"
	"github.com/hubblenetwork/hubble-go/hubble/protocol"
	"github.com/hubblenetwork/hubble-go/hubble/scan"
)

var ErrNoDevices = errors.New("hubble: no devices registered")

// Advertisement is what the radio layer reports for one received packet.
// Only ServiceData is authenticated; the rest is receiver metadata.
type Advertisement struct {
	ServiceData []byte
	RSSI        int
	ReceivedAt  time.Time
	Address     string
}

// Source yields received advertisements. Next returns io.EOF when the
// source is exhausted.
type Source interface {
	Next(ctx context.Context) (Advertisement, error)
}

// Sink consumes decoded sightings.
type Sink interface {
	Record(ctx context.Context, s capture.Sighting) error
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	Devices discovery.Resolver
	Sink    Sink
	// Window is the sync search window in days. 0 tries only the local
	// day; a negative value selects scan.DefaultWindow.
	Window  int
	Clock   clock.Source
	Workers int
	// QueueSize bounds advertisements waiting for a worker.
	QueueSize int
	Log       *slog.Logger
}

// Stats counts advertisements by outcome.
type Stats struct {
	Received  uint64
	Decoded   uint64
	Malformed uint64
	Unmatched uint64
	SinkErrs  uint64
}

type deviceScanner struct {
	id      uuid.UUID
	name    string
	scanner *scan.Scanner
}

// Listener decodes advertisements for all registered devices on a pool
// of workers.
type Listener struct {
	cfg ListenerConfig
	log *slog.Logger

	mu      sync.RWMutex
	devices []deviceScanner

	received  atomic.Uint64
	decoded   atomic.Uint64
	malformed atomic.Uint64
	unmatched atomic.Uint64
	sinkErrs  atomic.Uint64
}

func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.Devices == nil {
		return nil, errors.New("hubble: listener needs a device registry")
	}
	if cfg.Sink == nil {
		return nil, errors.New("hubble: listener needs a sink")
	}
	if cfg.Window < 0 {
		cfg.Window = scan.DefaultWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	l := &Listener{cfg: cfg, log: log.With("component", "listener")}
	if err := l.Refresh(); err != nil {
		return nil, err
	}
	return l, nil
}

// Refresh rebuilds per-device scanners from the registry.
func (l *Listener) Refresh() error {
	devices, err := l.cfg.Devices.List()
	if err != nil {
		return fmt.Errorf("hubble: list devices: %w", err)
	}
	if len(devices) == 0 {
		return ErrNoDevices
	}
	scanners := make([]deviceScanner, 0, len(devices))
	for _, d := range devices {
		s, err := scan.New(d.Key, scan.WithWindow(l.cfg.Window), scan.WithClock(l.cfg.Clock))
		if err != nil {
			return fmt.Errorf("hubble: device %s: %w", d.ID, err)
		}
		scanners = append(scanners, deviceScanner{id: d.ID, name: d.Name, scanner: s})
	}
	l.mu.Lock()
	l.devices = scanners
	l.mu.Unlock()
	l.log.Info("devices loaded", "count", len(scanners), "window", l.cfg.Window)
	return nil
}

// Stats returns a snapshot of the counters.
func (l *Listener) Stats() Stats {
	return Stats{
		Received:  l.received.Load(),
		Decoded:   l.decoded.Load(),
		Malformed: l.malformed.Load(),
		Unmatched: l.unmatched.Load(),
		SinkErrs:  l.sinkErrs.Load(),
	}
}

// Run reads from src until it is exhausted or ctx is cancelled, and
// waits for queued advertisements to be processed. It returns nil when
// src reports io.EOF.
func (l *Listener) Run(ctx context.Context, src Source) error {
	queue := make(chan Advertisement, l.cfg.QueueSize)

	var wg sync.WaitGroup
	for i := 0; i < l.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for adv := range queue {
				l.Handle(ctx, adv)
			}
		}()
	}

	err := l.feed(ctx, src, queue)
	close(queue)
	wg.Wait()
	return err
}

func (l *Listener) feed(ctx context.Context, src Source, queue chan<- Advertisement) error {
	for {
		adv, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case queue <- adv:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Handle decodes one advertisement and records it if a device matches.
// It reports whether a sighting was produced.
func (l *Listener) Handle(ctx context.Context, adv Advertisement) bool {
	l.received.Add(1)

	f, err := protocol.FrameFromServiceData(adv.ServiceData)
	if err != nil {
		l.malformed.Add(1)
		l.log.Debug("dropping advertisement", "addr", adv.Address, "err", err)
		return false
	}
	if f.Version != protocol.Version {
		l.malformed.Add(1)
		l.log.Warn("unsupported frame version", "addr", adv.Address, "version", f.Version)
		return false
	}

	at := adv.ReceivedAt
	if at.IsZero() {
		at = l.cfg.Clock.Now()
	}
	tc := clock.TimeCounter(at)

	l.mu.RLock()
	devices := l.devices
	l.mu.RUnlock()

	for _, d := range devices {
		res, err := d.scanner.DecodeAt(f, tc)
		if errors.Is(err, scan.ErrAuthenticationFailure) {
			continue
		}
		if err != nil {
			l.log.Error("decode failed", "device", d.name, "err", err)
			continue
		}
		l.decoded.Add(1)
		if !res.InSync() {
			l.log.Warn("beacon clock drift", "device", d.name, "device_id", res.DeviceID, "day_offset", res.DayOffset)
		}
		s := capture.FromResult(d.id, res, adv.RSSI, at)
		if err := l.cfg.Sink.Record(ctx, s); err != nil {
			l.sinkErrs.Add(1)
			l.log.Error("sink failed", "device", d.name, "err", err)
		}
		return true
	}

	l.unmatched.Add(1)
	l.log.Debug("no device authenticated frame", "addr", adv.Address, "device_id", f.DeviceID, "seq", f.SeqNo)
	return false
}
