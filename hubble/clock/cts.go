package clock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// CTSSize is the length of a Current Time characteristic value.
const CTSSize = 10

var ErrInvalidCTS = errors.New("clock: invalid current time payload")

// CurrentTime is the Bluetooth Current Time characteristic (0x2A2B)
// used to push UTC to a beacon after it advertises the sync service.
type CurrentTime struct {
	Time         time.Time
	AdjustReason uint8
}

// EncodeCTS packs t in UTC: year (LE16), month, day, hour, minute,
// second, ISO weekday, 1/256 fractions, adjust reason.
func EncodeCTS(ct CurrentTime) []byte {
	t := ct.Time.UTC()
	b := make([]byte, CTSSize)
	binary.LittleEndian.PutUint16(b[0:2], uint16(t.Year()))
	b[2] = byte(t.Month())
	b[3] = byte(t.Day())
	b[4] = byte(t.Hour())
	b[5] = byte(t.Minute())
	b[6] = byte(t.Second())
	b[7] = isoWeekday(t.Weekday())
	b[8] = byte(t.Nanosecond() * 256 / int(time.Second))
	b[9] = ct.AdjustReason
	return b
}

// DecodeCTS parses a Current Time value. The weekday byte is checked
// against the date when it is non-zero (zero means unknown).
func DecodeCTS(b []byte) (CurrentTime, error) {
	if len(b) != CTSSize {
		return CurrentTime{}, fmt.Errorf("%w: %d bytes", ErrInvalidCTS, len(b))
	}
	year := int(binary.LittleEndian.Uint16(b[0:2]))
	month, day := int(b[2]), int(b[3])
	hour, minute, second := int(b[4]), int(b[5]), int(b[6])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return CurrentTime{}, fmt.Errorf("%w: %04d-%02d-%02d %02d:%02d:%02d", ErrInvalidCTS, year, month, day, hour, minute, second)
	}
	nsec := int(b[8]) * int(time.Second) / 256
	t := time.Date(year, time.Month(month), day, hour, minute, second, nsec, time.UTC)
	if t.Day() != day {
		return CurrentTime{}, fmt.Errorf("%w: day %d out of range for month %d", ErrInvalidCTS, day, month)
	}
	if b[7] != 0 && b[7] != isoWeekday(t.Weekday()) {
		return CurrentTime{}, fmt.Errorf("%w: weekday %d does not match date", ErrInvalidCTS, b[7])
	}
	return CurrentTime{Time: t, AdjustReason: b[9]}, nil
}

func isoWeekday(d time.Weekday) byte {
	if d == time.Sunday {
		return 7
	}
	return byte(d)
}
