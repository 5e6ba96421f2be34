// Package period provides the validity-interval value type used by
// system-versioned tables, plus the clock source that supplies effective
// timestamps.
//
// A Period mirrors a PostgreSQL tstzrange with inclusive lower and
// exclusive upper bounds, which is the only shape the versioning protocol
// produces: live rows carry [lower, infinity) and archived rows carry
// [lower, upper).
package period

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// PGType is the PostgreSQL type every validity attribute must have.
const PGType = "tstzrange"

// TimeFormat is the timestamp layout used when rendering bounds and when
// parsing clock overrides. Fractional seconds are optional on input.
const TimeFormat = "2006-01-02 15:04:05.999999-07"

// Period is a half-open timestamp range. The zero value is distinct from
// an empty range: IsZero reports an unset value, Empty reports the
// PostgreSQL 'empty' range.
type Period struct {
	lower    time.Time
	upper    time.Time
	lowerInf bool
	upperInf bool
	empty    bool
	valid    bool
}

// From returns the open-ended period [t, infinity).
func From(t time.Time) Period {
	return Period{lower: Truncate(t), upperInf: true, valid: true}
}

// Between returns the closed period [lo, hi).
func Between(lo, hi time.Time) Period {
	return Period{lower: Truncate(lo), upper: Truncate(hi), valid: true}
}

// Truncate drops sub-microsecond precision, matching PostgreSQL timestamp
// resolution so round-tripped values compare equal.
func Truncate(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}

// IsZero reports whether the period has never been set or scanned.
func (p Period) IsZero() bool { return !p.valid }

// Empty reports the PostgreSQL 'empty' range.
func (p Period) Empty() bool { return p.empty }

// LowerUnbounded reports whether the lower bound is -infinity or absent.
func (p Period) LowerUnbounded() bool { return p.lowerInf }

// UpperUnbounded reports whether the upper bound is infinity or absent.
// Live current-table rows must satisfy this.
func (p Period) UpperUnbounded() bool { return p.upperInf }

// Lower returns the inclusive lower bound. Only meaningful when the
// period is valid, non-empty and not lower-unbounded.
func (p Period) Lower() time.Time { return p.lower }

// Upper returns the exclusive upper bound.
func (p Period) Upper() time.Time { return p.upper }

// String renders the period in PostgreSQL range text format.
func (p Period) String() string {
	if !p.valid {
		return "<nil>"
	}
	if p.empty {
		return "empty"
	}
	var sb strings.Builder
	sb.WriteString("[")
	if !p.lowerInf {
		sb.WriteString(`"` + p.lower.UTC().Format(TimeFormat) + `"`)
	}
	sb.WriteString(",")
	if !p.upperInf {
		sb.WriteString(`"` + p.upper.UTC().Format(TimeFormat) + `"`)
	}
	sb.WriteString(")")
	return sb.String()
}

// Value implements driver.Valuer, rendering the range text format.
func (p Period) Value() (driver.Value, error) {
	if !p.valid {
		return nil, nil
	}
	return p.String(), nil
}

// Scan implements sql.Scanner for tstzrange columns.
func (p *Period) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Period{}
		return nil
	case string:
		return p.parse(v)
	case []byte:
		return p.parse(string(v))
	default:
		return fmt.Errorf("period: cannot scan %T into Period", src)
	}
}

// Parse parses the PostgreSQL range text format, e.g.
// ["2024-01-02 03:04:05+00","2024-01-02 03:04:06+00") or empty.
func Parse(s string) (Period, error) {
	var p Period
	if err := p.parse(s); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (p *Period) parse(s string) error {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "empty") {
		*p = Period{empty: true, valid: true}
		return nil
	}
	if len(s) < 3 {
		return fmt.Errorf("period: malformed range %q", s)
	}
	open, close := s[0], s[len(s)-1]
	if (open != '[' && open != '(') || (close != ')' && close != ']') {
		return fmt.Errorf("period: malformed range %q", s)
	}
	lowerRaw, upperRaw, err := splitBounds(s[1 : len(s)-1])
	if err != nil {
		return fmt.Errorf("period: malformed range %q: %w", s, err)
	}

	out := Period{valid: true}
	out.lower, out.lowerInf, err = parseBound(lowerRaw)
	if err != nil {
		return fmt.Errorf("period: lower bound of %q: %w", s, err)
	}
	out.upper, out.upperInf, err = parseBound(upperRaw)
	if err != nil {
		return fmt.Errorf("period: upper bound of %q: %w", s, err)
	}

	// Normalize to the canonical [) shape PostgreSQL itself emits for
	// timestamp ranges; other bound kinds never occur in practice.
	if open != '[' && !out.lowerInf {
		out.lower = out.lower.Add(time.Microsecond)
	}
	if close == ']' && !out.upperInf {
		out.upper = out.upper.Add(time.Microsecond)
	}
	*p = out
	return nil
}

// splitBounds splits "lo,hi" at the comma that separates the bounds,
// respecting double-quoted bounds that may themselves contain commas.
func splitBounds(s string) (string, string, error) {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				return s[:i], s[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("missing bound separator")
}

func parseBound(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, `"`)
	if raw == "" || strings.EqualFold(raw, "infinity") || strings.EqualFold(raw, "-infinity") {
		return time.Time{}, true, nil
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999-07",
		"2006-01-02 15:04:05.999999-07:00",
		"2006-01-02 15:04:05.999999Z07:00",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return Truncate(t), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unparseable timestamp %q", raw)
}
