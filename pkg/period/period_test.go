package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpenEnded(t *testing.T) {
	p, err := Parse(`["2024-01-02 03:04:05.123456+00",)`)
	require.NoError(t, err)

	assert.False(t, p.IsZero())
	assert.False(t, p.Empty())
	assert.True(t, p.UpperUnbounded())
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC), p.Lower().UTC())
}

func TestParseClosed(t *testing.T) {
	p, err := Parse(`["2024-01-02 03:04:05+00","2024-01-02 03:04:06+00")`)
	require.NoError(t, err)

	assert.False(t, p.UpperUnbounded())
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), p.Lower().UTC())
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC), p.Upper().UTC())
}

func TestParseEmpty(t *testing.T) {
	p, err := Parse("empty")
	require.NoError(t, err)
	assert.True(t, p.Empty())
	assert.False(t, p.IsZero())
}

func TestParseInfinity(t *testing.T) {
	p, err := Parse(`["2024-01-02 03:04:05+00",infinity)`)
	require.NoError(t, err)
	assert.True(t, p.UpperUnbounded())
}

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{"", "[", "{1,2}", `["not a time",)`, `["2024-01-02 03:04:05+00"`} {
		_, err := Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseInclusiveUpperNormalized(t *testing.T) {
	p, err := Parse(`["2024-01-02 03:04:05+00","2024-01-02 03:04:06+00"]`)
	require.NoError(t, err)
	// ']' upper bound is shifted by one microsecond to the canonical [) shape.
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 6, 1000, time.UTC), p.Upper().UTC())
}

func TestRoundTripString(t *testing.T) {
	lo := time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC)
	hi := lo.Add(42 * time.Second)

	reparsed, err := Parse(Between(lo, hi).String())
	require.NoError(t, err)
	assert.Equal(t, lo, reparsed.Lower().UTC())
	assert.Equal(t, hi, reparsed.Upper().UTC())

	open, err := Parse(From(lo).String())
	require.NoError(t, err)
	assert.True(t, open.UpperUnbounded())
	assert.Equal(t, lo, open.Lower().UTC())
}

func TestScan(t *testing.T) {
	var p Period
	require.NoError(t, p.Scan([]byte(`["2024-01-02 03:04:05+00",)`)))
	assert.True(t, p.UpperUnbounded())

	require.NoError(t, p.Scan(nil))
	assert.True(t, p.IsZero())

	assert.Error(t, p.Scan(42))
}

func TestTruncate(t *testing.T) {
	in := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC), Truncate(in))
}
