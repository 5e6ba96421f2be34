package engine

import (
	"bytes"
	"fmt"
	"math/big"
	"reflect"
	"time"
)

// valuesEqual reports whether two column values are indistinguishable
// for change detection. Driver values arrive in a handful of concrete
// types; anything the helper cannot normalize surfaces as an
// ErrIncomparable so the limitation is loud rather than silent.
func valuesEqual(column string, a, b any) (bool, error) {
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}

	switch av := a.(type) {
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Equal(av, bv), nil
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Equal(bv), nil
		}
	case string:
		if bv, ok := b.(string); ok {
			return av == bv, nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return av == bv, nil
		}
	}

	if ar, ok := asRat(a); ok {
		if br, ok := asRat(b); ok {
			return ar.Cmp(br) == 0, nil
		}
	}

	at, bt := reflect.TypeOf(a), reflect.TypeOf(b)
	if at != bt {
		return false, fmt.Errorf("%w: column %q has values of types %T and %T", ErrIncomparable, column, a, b)
	}
	switch at.Kind() {
	case reflect.Func, reflect.Chan:
		return false, fmt.Errorf("%w: column %q has type %T without an equality operator", ErrIncomparable, column, a)
	}
	return reflect.DeepEqual(a, b), nil
}

// asRat widens any numeric driver value so int64 4 equals float64 4.0.
func asRat(v any) (*big.Rat, bool) {
	switch n := v.(type) {
	case int:
		return new(big.Rat).SetInt64(int64(n)), true
	case int8:
		return new(big.Rat).SetInt64(int64(n)), true
	case int16:
		return new(big.Rat).SetInt64(int64(n)), true
	case int32:
		return new(big.Rat).SetInt64(int64(n)), true
	case int64:
		return new(big.Rat).SetInt64(n), true
	case uint:
		return new(big.Rat).SetUint64(uint64(n)), true
	case uint8:
		return new(big.Rat).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Rat).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Rat).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Rat).SetUint64(n), true
	case float32:
		return new(big.Rat).SetFloat64(float64(n)), true
	case float64:
		return new(big.Rat).SetFloat64(n), true
	}
	return nil, false
}
