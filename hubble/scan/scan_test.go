package scan

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/hubblenetwork/hubble-go/hubble/clock"
	"github.com/hubblenetwork/hubble-go/hubble/identity"
	"github.com/hubblenetwork/hubble-go/hubble/protocol"
)

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func mustScanner(t testing.TB, key []byte, opts ...Option) *Scanner {
	t.Helper()
	mk, err := identity.NewMasterKey(key)
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}
	s, err := New(mk, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func atDay(tc uint32) clock.Fixed {
	return clock.Fixed(time.Unix(int64(tc)*86400+43200, 0).UTC())
}

func TestOffsets(t *testing.T) {
	want := []int{0, -1, 1, -2, 2, -3, 3, -4, 4}
	got := Offsets(4)
	if len(got) != len(want) {
		t.Fatalf("Offsets(4) = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Offsets(4) = %v, want %v", got, want)
		}
	}
	if got := Offsets(0); len(got) != 1 || got[0] != 0 {
		t.Fatalf("Offsets(0) = %v", got)
	}
	if got := Offsets(-3); len(got) != 1 {
		t.Fatalf("Offsets(-3) = %v", got)
	}
}

func TestDecodeZeroKeyVector(t *testing.T) {
	s := mustScanner(t, make([]byte, 32), WithClock(atDay(20000)))
	res, err := s.DecodeBytes(mustHex(t, "0000a6f75bf004a5f330e51c"))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if string(res.Plaintext) != "hi" || res.DayOffset != 0 || !res.InSync() {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.DeviceID.String() != "a6f75bf0" || res.SeqNo != 0 {
		t.Fatalf("unexpected header fields %+v", res)
	}
}

func TestDecodeReferenceServiceData(t *testing.T) {
	key := mustHex(t, "cd15a5abc060b67288a61e44e995ba77d140bd46564b88de41c15a9273b0ce85")
	tests := []struct {
		tc        uint32
		sd        string
		seq       uint16
		plaintext string
	}{
		{20, "a6fc000060db85958fd7439c", 0, ""},
		{20, "a6fc000160db8595d21bb57182", 1, "aa"},
		{20, "a6fc006460db8595a2a4c7708a6dc72a6b", 100, "48656c6c6f"},
		{20, "a6fc00ff60db859575e693ea756f587d", 255, "deadbeef"},
		{20, "a6fc010060db8595ff8732c0650e093725847061", 256, "0000000000000000"},
		{20, "a6fc020060db85958b85451e226639c43f4a7c5f", 512, "ffffffffffffffff"},
		{20, "a6fc03ff60db85958b21172fb4b985359ae4ce1aa08be5e373", 1023, hex.EncodeToString([]byte("Hello World!!"))},
		{1, "a6fc0000c9f309bc4beb66b6eff3090ddc7b389493f8405328", 0, "000102030405060708090a0b0c"},
		{1000, "a6fc01f4a1087749398c879d3eedb39fb4dc79", 500, hex.EncodeToString([]byte("Test123"))},
		{5000, "a6fc002ad61ea075b2345bf55fb7385de05694ce4f35", 42, "0102030405060708090a"},
	}
	for _, tt := range tests {
		t.Run(tt.sd, func(t *testing.T) {
			// Receiver is one day ahead of the sender.
			s := mustScanner(t, key, WithClock(atDay(tt.tc+1)))
			res, err := s.DecodeServiceData(mustHex(t, tt.sd))
			if err != nil {
				t.Fatalf("DecodeServiceData: %v", err)
			}
			if res.SeqNo != tt.seq {
				t.Fatalf("seq = %d, want %d", res.SeqNo, tt.seq)
			}
			if hex.EncodeToString(res.Plaintext) != tt.plaintext {
				t.Fatalf("plaintext = %x, want %s", res.Plaintext, tt.plaintext)
			}
			if res.DayOffset != -1 {
				t.Fatalf("day offset = %d, want -1", res.DayOffset)
			}
		})
	}
}

func TestDecodeDrift(t *testing.T) {
	// 32 zero-byte key, seq 7, payload "drift", sent at 20000+drift.
	frames := map[int]string{
		-2: "0007a13301514f5998b43927ee2f56",
		1:  "000753ee11851dc7c22429826faba4",
		3:  "0007a5cf203ae2995228df8b7bd83b",
	}
	s := mustScanner(t, make([]byte, 32))
	for drift, h := range frames {
		f, err := protocol.DecodeFrame(mustHex(t, h))
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}
		res, err := s.DecodeAt(f, 20000)
		if err != nil {
			t.Fatalf("drift %d: %v", drift, err)
		}
		if res.DayOffset != drift || string(res.Plaintext) != "drift" {
			t.Fatalf("drift %d: got offset %d plaintext %q", drift, res.DayOffset, res.Plaintext)
		}
		if res.InSync() {
			t.Fatalf("drift %d reported in sync", drift)
		}
	}

	narrow := mustScanner(t, make([]byte, 32), WithWindow(2))
	f, _ := protocol.DecodeFrame(mustHex(t, frames[3]))
	if _, err := narrow.DecodeAt(f, 20000); !errors.Is(err, ErrAuthenticationFailure) {
		t.Fatalf("expected ErrAuthenticationFailure outside window, got %v", err)
	}
	if res, err := narrow.DecodeAt(f, 20001); err != nil || res.DayOffset != 2 {
		t.Fatalf("widened by moving receiver: %+v %v", res, err)
	}
}

func TestDecodeSkipsNegativeCandidates(t *testing.T) {
	key := mustHex(t, "cd15a5abc060b67288a61e44e995ba77d140bd46564b88de41c15a9273b0ce85")
	s := mustScanner(t, key)
	f, _ := protocol.FrameFromServiceData(mustHex(t, "a6fc0000c9f309bc4beb66b6eff3090ddc7b389493f8405328"))
	res, err := s.DecodeAt(f, 0)
	if err != nil {
		t.Fatalf("DecodeAt: %v", err)
	}
	if res.DayOffset != 1 {
		t.Fatalf("day offset = %d", res.DayOffset)
	}
}

func TestDecodeTampered(t *testing.T) {
	orig := mustHex(t, "000753ee11851dc7c22429826faba4")
	s := mustScanner(t, make([]byte, 32))
	// Every bit of the sequence number, tag and ciphertext. The version
	// bits and device ID are not authenticated.
	for i := 0; i < len(orig); i++ {
		if i >= 2 && i < protocol.HeaderSize {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if i == 0 && bit >= 2 {
				continue
			}
			bad := append([]byte(nil), orig...)
			bad[i] ^= 1 << bit
			f, err := protocol.DecodeFrame(bad)
			if err != nil {
				t.Fatalf("DecodeFrame: %v", err)
			}
			res, err := s.DecodeAt(f, 20000)
			if !errors.Is(err, ErrAuthenticationFailure) {
				t.Fatalf("byte %d bit %d: expected ErrAuthenticationFailure, got %v", i, bit, err)
			}
			if res.Plaintext != nil {
				t.Fatalf("byte %d bit %d: plaintext leaked on failure", i, bit)
			}
		}
	}
}

func TestDecodeDeviceIDNotAuthenticated(t *testing.T) {
	// The device ID is carried for lookup only; keys do not depend on it.
	orig := mustHex(t, "0000a6f75bf004a5f330e51c")
	orig[2] ^= 0xff
	s := mustScanner(t, make([]byte, 32))
	res, err := s.DecodeAt(mustFrame(t, orig), 20000)
	if err != nil {
		t.Fatalf("DecodeAt: %v", err)
	}
	if !bytes.Equal(res.Plaintext, []byte("hi")) {
		t.Fatalf("plaintext = %q", res.Plaintext)
	}
}

func TestDecodeWrongKey(t *testing.T) {
	s := mustScanner(t, bytes.Repeat([]byte{1}, 32))
	_, err := s.DecodeAt(mustFrame(t, mustHex(t, "0000a6f75bf004a5f330e51c")), 20000)
	if !errors.Is(err, ErrAuthenticationFailure) {
		t.Fatalf("expected ErrAuthenticationFailure, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	s := mustScanner(t, make([]byte, 16))
	if _, err := s.DecodeBytes(make([]byte, 9)); !errors.Is(err, protocol.ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
	if _, err := s.DecodeServiceData([]byte{0xa7, 0xfc, 0, 0}); !errors.Is(err, protocol.ErrServiceDataMissing) {
		t.Fatalf("expected ErrServiceDataMissing, got %v", err)
	}
}

func TestNewRejectsZeroKey(t *testing.T) {
	if _, err := New(identity.MasterKey{}); !errors.Is(err, identity.ErrInvalidKeyLength) {
		t.Fatalf("expected ErrInvalidKeyLength, got %v", err)
	}
}

func mustFrame(t *testing.T, b []byte) protocol.Frame {
	t.Helper()
	f, err := protocol.DecodeFrame(b)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	return f
}

func BenchmarkDecodeWorstCase(b *testing.B) {
	s := mustScanner(b, make([]byte, 32))
	f, _ := protocol.DecodeFrame(mustHex(b, "0007a5cf203ae2995228df8b7bd83b"))
	f.Tag[0] ^= 0xff
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.DecodeAt(f, 20000)
	}
}
