package crypto

import (
	"crypto/aes"
	"encoding/binary"
	"errors"
	"strconv"

	"github.com/aead/cmac"
	"github.com/hubblenetwork/hubble-go/hubble/identity"
)

var (
	ErrInvalidKeyLength    = identity.ErrInvalidKeyLength
	ErrInvalidOutputLength = errors.New("crypto: derived output length must be positive")
)

// Derive expands key into outLen bytes using the SP 800-108 counter-mode KDF
// with AES-CMAC as the PRF. Each PRF input is
//
//	BE32(i) || label || 0x00 || decimal(context) || BE32(outLen*8)
//
// for i = 1, 2, ... and the output is the concatenation of the CMAC blocks
// truncated to outLen. The context is the base-10 ASCII text of the integer,
// not its binary form; peers must encode it the same way to interoperate.
func Derive(key []byte, outLen int, label string, context uint32) ([]byte, error) {
	if !identity.ValidKeySize(len(key)) {
		return nil, ErrInvalidKeyLength
	}
	if outLen <= 0 {
		return nil, ErrInvalidOutputLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	prf, err := cmac.New(block)
	if err != nil {
		return nil, err
	}

	ctx := strconv.FormatUint(uint64(context), 10)
	msg := make([]byte, 4+len(label)+1+len(ctx)+4)
	copy(msg[4:], label)
	msg[4+len(label)] = 0x00
	copy(msg[4+len(label)+1:], ctx)
	binary.BigEndian.PutUint32(msg[len(msg)-4:], uint32(outLen)*8)
	defer clear(msg)

	out := make([]byte, 0, outLen+aes.BlockSize)
	for i := uint32(1); len(out) < outLen; i++ {
		binary.BigEndian.PutUint32(msg[:4], i)
		prf.Reset()
		prf.Write(msg)
		out = prf.Sum(out)
	}
	clear(out[outLen:cap(out)])
	return out[:outLen], nil
}
