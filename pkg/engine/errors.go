package engine

import (
	"errors"
	"fmt"
)

// The versioning protocol distinguishes five failure classes so callers
// can tell a misconfigured trigger from corrupted data from a concurrent
// write race. Each class has a sentinel; rich errors wrap one.
var (
	// ErrProtocol: the engine was invoked with the wrong timing, level,
	// operation, or argument count. Always a misconfiguration.
	ErrProtocol = errors.New("engine: protocol violation")

	// ErrSchema: a required relation or column is missing or has the
	// wrong type.
	ErrSchema = errors.New("engine: schema mismatch")

	// ErrData: an existing row's validity or version value violates a
	// data invariant, which indicates prior corruption or manual edits.
	ErrData = errors.New("engine: data invariant violation")

	// ErrConflict: the effective timestamp would not advance the
	// existing validity interval and mitigation is disabled.
	ErrConflict = errors.New("engine: ordering conflict")

	// ErrIncomparable: change detection hit a column whose values the
	// engine cannot compare. A documented limitation, not a defect.
	ErrIncomparable = errors.New("engine: incomparable column")
)

// IsProtocolErr returns true if err is or wraps ErrProtocol.
func IsProtocolErr(err error) bool { return errors.Is(err, ErrProtocol) }

// IsSchemaErr returns true if err is or wraps ErrSchema.
func IsSchemaErr(err error) bool { return errors.Is(err, ErrSchema) }

// IsDataErr returns true if err is or wraps ErrData.
func IsDataErr(err error) bool { return errors.Is(err, ErrData) }

// IsConflictErr returns true if err is or wraps ErrConflict.
func IsConflictErr(err error) bool { return errors.Is(err, ErrConflict) }

// IsIncomparableErr returns true if err is or wraps ErrIncomparable.
func IsIncomparableErr(err error) bool { return errors.Is(err, ErrIncomparable) }

func protocolf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

func schemaf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, args...))
}

func dataf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrData, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
