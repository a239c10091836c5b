package mathx

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	return Max(lo, Min(v, hi))
}

// Between reports lo <= v && v <= hi (order-insensitive). NaN is never between.
func Between[T constraints.Ordered](v, lo, hi T) bool {
	if hi < lo {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// AbsDiff returns |a-b| without overflowing the operand type.
func AbsDiff[T constraints.Signed](a, b T) uint64 {
	d := int64(a) - int64(b)
	if d < 0 {
		return uint64(-d)
	}
	return uint64(d)
}

// IsSet reports whether f holds a value, i.e. is not the NaN "unset" marker.
func IsSet(f float64) bool { return !math.IsNaN(f) }

// Unset is the NaN marker for an absent float setting.
func Unset() float64 { return math.NaN() }
