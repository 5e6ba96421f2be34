package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuesEqual(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"nils", nil, nil, true},
		{"nil left", nil, "x", false},
		{"strings", "a", "a", true},
		{"strings differ", "a", "b", false},
		{"bytes", []byte("a"), []byte("a"), true},
		{"times", now, now.UTC(), true},
		{"ints", int64(4), int64(4), true},
		{"int widths", int32(4), int64(4), true},
		{"int vs float", int64(4), float64(4.0), true},
		{"floats differ", float64(4.0), float64(4.5), false},
		{"bools", true, true, true},
	}
	for _, tc := range tests {
		got, err := valuesEqual("c", tc.a, tc.b)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestValuesEqualIncomparable(t *testing.T) {
	_, err := valuesEqual("payload", "text", []byte("bytes"))
	require.Error(t, err)
	assert.True(t, IsIncomparableErr(err))
	assert.Contains(t, err.Error(), `"payload"`)

	_, err = valuesEqual("fn", func() {}, func() {})
	assert.True(t, IsIncomparableErr(err))
}
