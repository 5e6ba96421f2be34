package period

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Clock supplies the effective timestamp for versioning operations. The
// engine receives a Clock rather than reading wall time directly so tests
// and migrations can pin "now" deterministically.
type Clock interface {
	Now(ctx context.Context) time.Time
}

// SystemClock reads the real wall clock, truncated to PostgreSQL
// timestamp resolution.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now(context.Context) time.Time {
	return Truncate(time.Now())
}

// overrideLayouts accepted by SystemTime.Set, most specific first.
var overrideLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// SystemTime is a Clock with a settable process-scoped override. The
// stored value is kept as the raw string: an unparseable override falls
// back to the real clock at read time rather than failing the write,
// matching the pgchrono_system_time() helper the installer ships.
type SystemTime struct {
	mu       sync.RWMutex
	raw      string
	fallback Clock
}

// NewSystemTime returns an unset SystemTime falling back to SystemClock.
func NewSystemTime() *SystemTime {
	return &SystemTime{fallback: SystemClock{}}
}

// Set stores the override. Format: "2006-01-02 15:04:05" with optional
// fractional seconds, interpreted as UTC. An empty or all-space value
// clears the override.
func (c *SystemTime) Set(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = strings.TrimSpace(value)
}

// Clear removes the override.
func (c *SystemTime) Clear() {
	c.Set("")
}

// Override returns the parsed override and whether one is in effect.
func (c *SystemTime) Override() (time.Time, bool) {
	c.mu.RLock()
	raw := c.raw
	c.mu.RUnlock()
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range overrideLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return Truncate(t), true
		}
	}
	return time.Time{}, false
}

// Now implements Clock: the override when set and parseable, the
// fallback clock otherwise.
func (c *SystemTime) Now(ctx context.Context) time.Time {
	if t, ok := c.Override(); ok {
		return t
	}
	return c.fallback.Now(ctx)
}
