// Package config loads receiver and beacon settings from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hubblenetwork/hubble-go/hubble/discovery"
	"github.com/hubblenetwork/hubble-go/hubble/identity"
	"github.com/hubblenetwork/hubble-go/hubble/keystore"
	"github.com/hubblenetwork/hubble-go/hubble/relay"
)

const (
	EnvKeyPath       = "HUBBLE_KEY_PATH"
	EnvKeyBase64     = "HUBBLE_KEY_BASE64"
	EnvKeyPassphrase = "HUBBLE_KEY_PASSPHRASE"
	EnvSyncWindow    = "HUBBLE_SYNC_WINDOW"
	EnvWorkers       = "HUBBLE_WORKERS"
	EnvRelayAddr     = "HUBBLE_RELAY_ADDR"
	EnvRelayToken    = "HUBBLE_RELAY_TOKEN"
	EnvRelaySpool    = "HUBBLE_RELAY_SPOOL"
	EnvRelayPin      = "HUBBLE_RELAY_FINGERPRINT"
	EnvLogLevel      = "HUBBLE_LOG_LEVEL"

	DefaultSyncWindow = 4
	DefaultWorkers    = 4
	DefaultQueueSize  = 256
	DefaultBatchSize  = 64

	// MaxSyncWindow keeps the per-frame search bounded.
	MaxSyncWindow = 30
)

// Key encodings accepted in configuration.
const (
	EncodingRaw    = "raw"
	EncodingBase64 = "base64"
	EncodingSealed = "sealed"
)

var ErrNoKeys = errors.New("config: no master key or devices configured")

// KeyConfig locates a master key file.
type KeyConfig struct {
	Path     string `yaml:"path"`
	Encoding string `yaml:"encoding"`
	// Passphrase opens sealed key files. Prefer HUBBLE_KEY_PASSPHRASE.
	Passphrase string `yaml:"passphrase,omitempty"`
}

// DeviceConfig registers one beacon with the receiver.
type DeviceConfig struct {
	ID   string    `yaml:"id"`
	Name string    `yaml:"name"`
	Key  KeyConfig `yaml:"key"`
}

// ScanConfig tunes decoding.
type ScanConfig struct {
	Window    int `yaml:"window"`
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// RelayConfig points a gateway at a collector. An empty Addr disables
// relaying.
type RelayConfig struct {
	Addr      string `yaml:"addr"`
	Token     string `yaml:"token"`
	Gateway   string `yaml:"gateway"`
	BatchSize int    `yaml:"batch_size"`
	// Fingerprint is the SHA-256 of the collector certificate, in hex.
	Fingerprint string `yaml:"collector_fingerprint"`

	// SpoolDir keeps batches on disk while the collector is unreachable.
	SpoolDir     string `yaml:"spool_dir"`
	DataShards   int    `yaml:"data_shards"`
	ParityShards int    `yaml:"parity_shards"`
}

// Config is the full configuration.
type Config struct {
	// Key is the master key of a single-device setup; Devices lists keys
	// for a receiver tracking several beacons. Both may be set.
	Key      KeyConfig      `yaml:"key"`
	Devices  []DeviceConfig `yaml:"devices"`
	Scan     ScanConfig     `yaml:"scan"`
	Relay    RelayConfig    `yaml:"relay"`
	LogLevel string         `yaml:"log_level"`
}

// Default returns a configuration with defaults filled in and no keys.
func Default() *Config {
	return &Config{
		Key:      KeyConfig{Encoding: EncodingRaw},
		Scan:     ScanConfig{Window: DefaultSyncWindow, Workers: DefaultWorkers, QueueSize: DefaultQueueSize},
		Relay:    RelayConfig{BatchSize: DefaultBatchSize},
		LogLevel: "info",
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HUBBLE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := envString(EnvKeyPath); v != "" {
		c.Key.Path = v
	}
	if v := envString(EnvKeyBase64); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvKeyBase64, err)
		}
		if b {
			c.Key.Encoding = EncodingBase64
		} else if c.Key.Encoding == EncodingBase64 {
			c.Key.Encoding = EncodingRaw
		}
	}
	if v := envString(EnvKeyPassphrase); v != "" {
		c.Key.Passphrase = v
		for i := range c.Devices {
			if c.Devices[i].Key.Passphrase == "" {
				c.Devices[i].Key.Passphrase = v
			}
		}
	}
	if err := envInt(EnvSyncWindow, &c.Scan.Window); err != nil {
		return err
	}
	if err := envInt(EnvWorkers, &c.Scan.Workers); err != nil {
		return err
	}
	if v := envString(EnvRelayAddr); v != "" {
		c.Relay.Addr = v
	}
	if v := envString(EnvRelayToken); v != "" {
		c.Relay.Token = v
	}
	if v := envString(EnvRelayPin); v != "" {
		c.Relay.Fingerprint = v
	}
	if v := envString(EnvRelaySpool); v != "" {
		c.Relay.SpoolDir = v
	}
	if v := envString(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks that the configuration is coherent.
func (c *Config) Validate() error {
	if c.Key.Path == "" && len(c.Devices) == 0 {
		return ErrNoKeys
	}
	if c.Key.Path != "" {
		if err := c.Key.validate("key"); err != nil {
			return err
		}
	}
	for i, d := range c.Devices {
		where := fmt.Sprintf("devices[%d]", i)
		if d.Name == "" {
			return fmt.Errorf("invalid %s.name: must not be empty", where)
		}
		if d.ID != "" {
			if _, err := uuid.Parse(d.ID); err != nil {
				return fmt.Errorf("invalid %s.id: %w", where, err)
			}
		}
		if d.Key.Path == "" {
			return fmt.Errorf("invalid %s.key.path: must not be empty", where)
		}
		if err := d.Key.validate(where + ".key"); err != nil {
			return err
		}
	}
	if c.Scan.Window < 0 || c.Scan.Window > MaxSyncWindow {
		return fmt.Errorf("invalid %s: must be in range 0..%d", EnvSyncWindow, MaxSyncWindow)
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvWorkers)
	}
	if c.Scan.QueueSize <= 0 {
		return fmt.Errorf("invalid scan.queue_size: must be > 0")
	}
	if c.Relay.Addr != "" && c.Relay.BatchSize <= 0 {
		return fmt.Errorf("invalid relay.batch_size: must be > 0")
	}
	if c.Relay.Addr != "" {
		if c.Relay.Fingerprint == "" {
			return fmt.Errorf("invalid relay.collector_fingerprint: required with relay.addr (%s)", EnvRelayPin)
		}
		if _, err := relay.ParseFingerprint(c.Relay.Fingerprint); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRelayPin, err)
		}
	}
	if c.Relay.DataShards < 0 || c.Relay.ParityShards < 0 || c.Relay.DataShards+c.Relay.ParityShards > 255 {
		return fmt.Errorf("invalid relay shards: need 0 <= data, parity and data+parity <= 255")
	}
	if c.Relay.Gateway != "" {
		if _, err := uuid.Parse(c.Relay.Gateway); err != nil {
			return fmt.Errorf("invalid relay.gateway: %w", err)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func (k KeyConfig) validate(where string) error {
	switch k.Encoding {
	case "", EncodingRaw, EncodingBase64:
	case EncodingSealed:
		if k.Passphrase == "" {
			return fmt.Errorf("invalid %s: sealed keys need a passphrase (%s)", where, EnvKeyPassphrase)
		}
	default:
		return fmt.Errorf("invalid %s.encoding: %q", where, k.Encoding)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid %s: %w", EnvLogLevel, err)
	}
	return l, nil
}

// CollectorFingerprint parses the pinned collector fingerprint.
func (c *Config) CollectorFingerprint() (relay.Fingerprint, error) {
	return relay.ParseFingerprint(c.Relay.Fingerprint)
}

// GatewayID returns the configured gateway UUID, or uuid.Nil.
func (c *Config) GatewayID() uuid.UUID {
	id, err := uuid.Parse(c.Relay.Gateway)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Load reads the master key the config points at.
func (k KeyConfig) Load() (identity.MasterKey, error) {
	switch k.Encoding {
	case EncodingSealed:
		return keystore.LoadSealedFile(k.Path, []byte(k.Passphrase))
	case EncodingBase64:
		return keystore.LoadFile(k.Path, keystore.Base64)
	default:
		return keystore.LoadFile(k.Path, keystore.Raw)
	}
}

// RegisterDevices loads every configured key into r. The top-level key,
// when set, is registered under the name "default".
func (c *Config) RegisterDevices(r discovery.Resolver) error {
	devices := c.Devices
	if c.Key.Path != "" {
		devices = append([]DeviceConfig{{Name: "default", Key: c.Key}}, devices...)
	}
	for _, d := range devices {
		mk, err := d.Key.Load()
		if err != nil {
			return fmt.Errorf("config: device %q: %w", d.Name, err)
		}
		dev := discovery.Device{Name: d.Name, Key: mk}
		if d.ID != "" {
			if dev.ID, err = uuid.Parse(d.ID); err != nil {
				return fmt.Errorf("config: device %q: %w", d.Name, err)
			}
		}
		if err := r.Register(dev); err != nil {
			return fmt.Errorf("config: device %q: %w", d.Name, err)
		}
	}
	return nil
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, dst *int) error {
	v := envString(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
