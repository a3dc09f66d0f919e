package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeCounter(t *testing.T) {
	require.Equal(t, uint32(0), TimeCounter(time.Unix(0, 0)))
	require.Equal(t, uint32(0), TimeCounter(time.Unix(86399, 0)))
	require.Equal(t, uint32(1), TimeCounter(time.Unix(86400, 0)))
	require.Equal(t, uint32(20000), TimeCounter(time.Unix(20000*86400+3600, 0)))
	require.Equal(t, uint32(0), TimeCounter(time.Unix(-5, 0)))

	// Time zone does not matter.
	loc := time.FixedZone("UTC+10", 10*3600)
	now := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
	require.Equal(t, TimeCounter(now), TimeCounter(now.In(loc)))
}

func TestFixed(t *testing.T) {
	at := time.Date(2024, 9, 30, 12, 0, 0, 0, time.UTC)
	require.Equal(t, at, Fixed(at).Now())
}

func TestSynced(t *testing.T) {
	s := NewSynced()
	require.True(t, s.Now().IsZero())

	require.ErrorIs(t, s.Set(time.Time{}), ErrZeroTime)
	require.ErrorIs(t, s.Set(time.Unix(0, 0)), ErrZeroTime)

	elapsed := 90 * time.Second
	s.since = func(time.Time) time.Duration { return elapsed }

	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Set(base))
	require.Equal(t, base.Add(elapsed), s.Now())
	require.Equal(t, base, s.LastSynced())
}

func TestCTSRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 15, 8, 9, 10, 500_000_000, time.UTC)
	b := EncodeCTS(CurrentTime{Time: at, AdjustReason: 1})
	require.Equal(t, []byte{0xe9, 0x07, 6, 15, 8, 9, 10, 7, 128, 1}, b)

	ct, err := DecodeCTS(b)
	require.NoError(t, err)
	require.True(t, at.Equal(ct.Time))
	require.Equal(t, uint8(1), ct.AdjustReason)
}

func TestCTSConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	at := time.Date(2025, 12, 31, 22, 0, 0, 0, loc)
	b := EncodeCTS(CurrentTime{Time: at})
	require.Equal(t, []byte{0xea, 0x07, 1, 1, 3, 0, 0, 4, 0, 0}, b)
}

func TestDecodeCTSInvalid(t *testing.T) {
	valid := EncodeCTS(CurrentTime{Time: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)})

	_, err := DecodeCTS(valid[:9])
	require.ErrorIs(t, err, ErrInvalidCTS)

	bad := append([]byte(nil), valid...)
	bad[2] = 13
	_, err = DecodeCTS(bad)
	require.ErrorIs(t, err, ErrInvalidCTS)

	bad = append([]byte(nil), valid...)
	bad[3] = 30 // February 30th
	_, err = DecodeCTS(bad)
	require.ErrorIs(t, err, ErrInvalidCTS)

	bad = append([]byte(nil), valid...)
	bad[7] = 1 + bad[7]%7
	_, err = DecodeCTS(bad)
	require.ErrorIs(t, err, ErrInvalidCTS)

	unknownWeekday := append([]byte(nil), valid...)
	unknownWeekday[7] = 0
	_, err = DecodeCTS(unknownWeekday)
	require.NoError(t, err)
}
