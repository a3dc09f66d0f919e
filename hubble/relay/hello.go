package relay

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const (
	helloMagic   = "HBR1"
	maxTokenSize = 255

	ackOK       byte = 1
	ackRejected byte = 0
)

var (
	ErrBadHello     = errors.New("relay: malformed hello")
	ErrUnauthorized = errors.New("relay: gateway token rejected")
	ErrRejected     = errors.New("relay: collector rejected batch")
)

// hello opens the batch stream:
//
//	4 bytes: magic
//	16 bytes: gateway UUID
//	1 byte: token length
//	N bytes: token
type hello struct {
	Gateway uuid.UUID
	Token   []byte
}

func writeHello(w io.Writer, h hello) error {
	if len(h.Token) > maxTokenSize {
		return fmt.Errorf("%w: token longer than %d bytes", ErrBadHello, maxTokenSize)
	}
	buf := make([]byte, 0, len(helloMagic)+16+1+len(h.Token))
	buf = append(buf, helloMagic...)
	buf = append(buf, h.Gateway[:]...)
	buf = append(buf, byte(len(h.Token)))
	buf = append(buf, h.Token...)
	_, err := w.Write(buf)
	return err
}

func readHello(r io.Reader) (hello, error) {
	var head [len(helloMagic) + 16 + 1]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return hello{}, err
	}
	if string(head[:len(helloMagic)]) != helloMagic {
		return hello{}, ErrBadHello
	}
	var h hello
	copy(h.Gateway[:], head[len(helloMagic):])
	h.Token = make([]byte, head[len(head)-1])
	if _, err := io.ReadFull(r, h.Token); err != nil {
		return hello{}, err
	}
	return h, nil
}

func tokenMatches(want, got []byte) bool {
	return subtle.ConstantTimeCompare(want, got) == 1
}
