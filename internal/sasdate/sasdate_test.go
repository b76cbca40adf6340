package sasdate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/jvdlinde/xportcsv/internal/ibmfloat"
)

func decodeIBM(t *testing.T, b [8]byte) ibmfloat.Value {
	t.Helper()
	v, err := ibmfloat.Decode(b)
	require.NoError(t, err)
	return v
}

func TestDecodeDate(t *testing.T) {
	v := decodeIBM(t, [8]byte{0x44, 0x56, 0x17, 0x00, 0x00, 0x00, 0x00, 0x00})
	s, ok := DecodeDate(v)
	require.True(t, ok)
	assert.Equal(t, "2020-05-04", s)
}

func TestDecodeTime(t *testing.T) {
	v := decodeIBM(t, [8]byte{0x44, 0xC8, 0xDC, 0x00, 0x00, 0x00, 0x00, 0x00})
	s, ok := DecodeTime(v)
	require.True(t, ok)
	assert.Equal(t, "14:17:00", s)
}

func TestDecodeDateTime(t *testing.T) {
	v := decodeIBM(t, [8]byte{0x48, 0x71, 0x80, 0x1B, 0x5C, 0x00, 0x00, 0x00})
	s, ok := DecodeDateTime(v)
	require.True(t, ok)
	assert.Equal(t, "2020-05-04 14:17:00", s)
}

func TestDecodeDate_missingIsNull(t *testing.T) {
	v := decodeIBM(t, [8]byte{0x2E, 0, 0, 0, 0, 0, 0, 0})
	_, ok := DecodeDate(v)
	assert.False(t, ok)
}

func TestParseSASDatetimeText(t *testing.T) {
	got, err := ParseSASDatetimeText("31DEC68:23:59:59")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2068, time.December, 31, 23, 59, 59, 0, time.UTC), got)

	got, err = ParseSASDatetimeText("01JAN69:00:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(1969, time.January, 1, 0, 0, 0, 0, time.UTC), got)
}

// TestParseSASDatetimeText_roundTrip exercises the spec's round-trip
// invariant over the pivot-unambiguous range [1969, 2068].
func TestParseSASDatetimeText_roundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		year := rapid.IntRange(1969, 2068).Draw(rt, "year")
		month := rapid.IntRange(1, 12).Draw(rt, "month")
		day := rapid.IntRange(1, 28).Draw(rt, "day")
		hour := rapid.IntRange(0, 23).Draw(rt, "hour")
		minute := rapid.IntRange(0, 59).Draw(rt, "minute")
		second := rapid.IntRange(0, 59).Draw(rt, "second")

		want := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
		got, err := ParseSASDatetimeText(FormatSASDatetimeText(want))
		require.NoError(rt, err)
		assert.True(rt, want.Equal(got))
	})
}
