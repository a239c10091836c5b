package mathx

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	cases := []struct{ v, lo, hi, want float64 }{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
		{11, 10, 0, 10},
	}
	for _, c := range cases {
		if got := Clamp(c.v, c.lo, c.hi); got != c.want {
			t.Fatalf("Clamp(%v,%v,%v) = %v", c.v, c.lo, c.hi, got)
		}
	}
}

func TestBetweenRejectsNaN(t *testing.T) {
	if Between(math.NaN(), 700.0, 1200.0) {
		t.Fatal("NaN must not be in range")
	}
	if !Between(700.0, 1200.0, 700.0) {
		t.Fatal("bounds are inclusive and order-insensitive")
	}
}

func TestAbsDiff(t *testing.T) {
	if got := AbsDiff(int32(math.MinInt32), int32(math.MaxInt32)); got != 1<<32-1 {
		t.Fatalf("AbsDiff extremes = %d", got)
	}
	if got := AbsDiff(int32(10), int32(61)); got != 51 {
		t.Fatalf("AbsDiff = %d", got)
	}
}

func TestUnset(t *testing.T) {
	if IsSet(Unset()) || !IsSet(0) {
		t.Fatal("IsSet/Unset mismatch")
	}
}
