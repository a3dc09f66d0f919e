package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/reedsolomon"
)

var (
	ErrSpoolCorrupt     = errors.New("capture: spooled batch cannot be recovered")
	ErrInvalidSpoolConf = errors.New("capture: invalid data/parity shard configuration")
)

const (
	// SpoolMagic identifies a spooled batch file ("HBSP").
	SpoolMagic = uint32(0x48425350)

	DefaultDataShards   = 4
	DefaultParityShards = 2

	spoolExt        = ".hbsp"
	badExt          = ".bad"
	spoolHeaderSize = 4 + 1 + 1 + 4 + 4
	shardCRCSize    = 4
)

// Spool keeps batches on disk while the collector is unreachable. Each
// file holds the encoded batch split into Reed-Solomon shards with a
// CRC per shard, so up to ParityShards damaged shards are repaired on
// load.
type Spool struct {
	dir    string
	enc    reedsolomon.Encoder
	data   int
	parity int
	level  CompressionLevel

	mu   sync.Mutex
	last int64
}

// NewSpool opens (creating if needed) a spool directory. Zero shard
// counts select DefaultDataShards and DefaultParityShards.
func NewSpool(dir string, dataShards, parityShards int) (*Spool, error) {
	if dataShards == 0 {
		dataShards = DefaultDataShards
	}
	if parityShards == 0 {
		parityShards = DefaultParityShards
	}
	if dataShards < 0 || parityShards < 0 || dataShards+parityShards > 255 {
		return nil, ErrInvalidSpoolConf
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpoolConf, err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Spool{dir: dir, enc: enc, data: dataShards, parity: parityShards, level: CompressionDefault}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string { return s.dir }

// Put writes b to the spool and returns the file name. Names sort in
// insertion order.
func (s *Spool) Put(b *Batch) (string, error) {
	body, err := b.Encode(s.level)
	if err != nil {
		return "", err
	}
	shards, err := s.enc.Split(body)
	if err != nil {
		return "", err
	}
	if err := s.enc.Encode(shards); err != nil {
		return "", err
	}
	shardSize := len(shards[0])

	buf := make([]byte, spoolHeaderSize, spoolHeaderSize+len(shards)*(shardCRCSize+shardSize))
	binary.BigEndian.PutUint32(buf[0:4], SpoolMagic)
	buf[4] = byte(s.data)
	buf[5] = byte(s.parity)
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(body)))
	binary.BigEndian.PutUint32(buf[10:14], uint32(shardSize))
	for _, sh := range shards {
		buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(sh))
		buf = append(buf, sh...)
	}

	name := fmt.Sprintf("%020d%s", s.nextStamp(), spoolExt)
	tmp, err := os.CreateTemp(s.dir, "put-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Spool) nextStamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return now
}

// Pending lists spooled batch files, oldest first.
func (s *Spool) Pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), spoolExt) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Load reads a spooled batch, repairing damaged shards where possible.
func (s *Spool) Load(name string) (*Batch, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	body, err := s.recover(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return DecodeBatch(body)
}

func (s *Spool) recover(raw []byte) ([]byte, error) {
	if len(raw) < spoolHeaderSize || binary.BigEndian.Uint32(raw[0:4]) != SpoolMagic {
		return nil, ErrSpoolCorrupt
	}
	if int(raw[4]) != s.data || int(raw[5]) != s.parity {
		return nil, fmt.Errorf("%w: written with %d+%d shards", ErrSpoolCorrupt, raw[4], raw[5])
	}
	size := int(binary.BigEndian.Uint32(raw[6:10]))
	shardSize := int(binary.BigEndian.Uint32(raw[10:14]))
	total := s.data + s.parity
	if size > MaxBatchSize || shardSize*s.data < size {
		return nil, ErrSpoolCorrupt
	}

	shards := make([][]byte, total)
	rest := raw[spoolHeaderSize:]
	for i := range shards {
		if len(rest) < shardCRCSize+shardSize {
			break
		}
		sum := binary.BigEndian.Uint32(rest[:shardCRCSize])
		sh := rest[shardCRCSize : shardCRCSize+shardSize]
		if crc32.ChecksumIEEE(sh) == sum {
			shards[i] = slices.Clone(sh)
		}
		rest = rest[shardCRCSize+shardSize:]
	}
	if err := s.enc.ReconstructData(shards); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpoolCorrupt, err)
	}

	body := make([]byte, 0, size)
	for i := 0; i < s.data && len(body) < size; i++ {
		n := min(size-len(body), len(shards[i]))
		body = append(body, shards[i][:n]...)
	}
	return body, nil
}

// Remove deletes a spooled batch.
func (s *Spool) Remove(name string) error {
	return os.Remove(filepath.Join(s.dir, name))
}

// Drain sends every pending batch in order and removes it once send
// succeeds. Unrecoverable files are renamed with a .bad suffix and
// skipped. It stops at the first send error.
func (s *Spool) Drain(ctx context.Context, send func(context.Context, *Batch) error) (int, error) {
	names, err := s.Pending()
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		b, err := s.Load(name)
		if err != nil {
			if errors.Is(err, ErrSpoolCorrupt) || errors.Is(err, ErrInvalidBatch) {
				path := filepath.Join(s.dir, name)
				if rerr := os.Rename(path, path+badExt); rerr != nil {
					return sent, rerr
				}
				continue
			}
			return sent, err
		}
		if err := send(ctx, b); err != nil {
			return sent, err
		}
		if err := s.Remove(name); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
