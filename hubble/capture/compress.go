package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var (
	ErrCompressionFailed   = errors.New("capture: compression failed")
	ErrDecompressionFailed = fmt.Errorf("%w: decompression failed", ErrInvalidBatch)
)

// CompressionLevel controls the speed/ratio tradeoff.
type CompressionLevel int

const (
	CompressionFast CompressionLevel = iota
	CompressionDefault
	CompressionBest
)

// compressorPool reuses LZ4 writers to reduce allocations.
var compressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

var decompressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

func compress(data []byte, level CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	w := compressorPool.Get().(*lz4.Writer)
	defer compressorPool.Put(w)

	w.Reset(&buf)

	lvl, err := lz4Level(level)
	if err != nil {
		return nil, err
	}
	if err := w.Apply(lz4.CompressionLevelOption(lvl)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}

	if _, err := w.Write(data); err != nil {
		return nil, ErrCompressionFailed
	}
	if err := w.Close(); err != nil {
		return nil, ErrCompressionFailed
	}
	return buf.Bytes(), nil
}

func lz4Level(level CompressionLevel) (lz4.CompressionLevel, error) {
	switch level {
	case CompressionFast:
		return lz4.Fast, nil
	case CompressionDefault:
		return lz4.Level4, nil
	case CompressionBest:
		return lz4.Level9, nil
	}
	return 0, fmt.Errorf("%w: unknown level %d", ErrCompressionFailed, level)
}

// decompress inflates at most limit bytes.
func decompress(data []byte, limit int) ([]byte, error) {
	r := decompressorPool.Get().(*lz4.Reader)
	defer decompressorPool.Put(r)

	r.Reset(bytes.NewReader(data))

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, int64(limit)+1))
	if err != nil || n > int64(limit) {
		return nil, ErrDecompressionFailed
	}
	return buf.Bytes(), nil
}
