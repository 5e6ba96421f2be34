package period

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemTimeOverride(t *testing.T) {
	clock := NewSystemTime()
	ctx := context.Background()

	clock.Set("2021-06-01 12:00:00.500000")
	got := clock.Now(ctx)
	assert.Equal(t, time.Date(2021, 6, 1, 12, 0, 0, 500000000, time.UTC), got)

	clock.Set("2021-06-01 12:00:00")
	got = clock.Now(ctx)
	assert.Equal(t, time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC), got)
}

func TestSystemTimeClear(t *testing.T) {
	clock := NewSystemTime()
	clock.Set("2021-06-01 12:00:00")
	clock.Clear()

	_, ok := clock.Override()
	assert.False(t, ok)
	assert.WithinDuration(t, time.Now(), clock.Now(context.Background()), time.Minute)
}

func TestSystemTimeUnparseableFallsBack(t *testing.T) {
	clock := NewSystemTime()
	clock.Set("not a timestamp")

	_, ok := clock.Override()
	assert.False(t, ok)
	assert.WithinDuration(t, time.Now(), clock.Now(context.Background()), time.Minute)
}

func TestSystemClockTruncates(t *testing.T) {
	now := SystemClock{}.Now(context.Background())
	assert.Zero(t, now.Nanosecond()%1000)
}
