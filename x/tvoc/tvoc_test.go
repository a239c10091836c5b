package tvoc

import (
	"math"
	"testing"
)

func TestWellNonNegativeAndMonotonic(t *testing.T) {
	prev := math.Inf(-1)
	for i := 0; i <= 5000; i++ {
		v := float64(i) / 10
		got := Well(v)
		if got < 0 {
			t.Fatalf("Well(%v) = %v < 0", v, got)
		}
		if got <= prev {
			t.Fatalf("Well not increasing at %v: %v <= %v", v, got, prev)
		}
		prev = got
	}
}

func TestCeiling(t *testing.T) {
	for _, f := range []func(float64) float64{Well, Reset, Ethanol} {
		if got := f(501); got != 0 {
			t.Fatalf("f(501) = %v, want 0", got)
		}
		if got := f(9999); got != 0 {
			t.Fatalf("f(9999) = %v, want 0", got)
		}
	}
	if Well(500.95) != Well(indexCeiling) {
		t.Fatal("values above the ceiling must clamp")
	}
}

func TestKnownValue(t *testing.T) {
	want := (math.Log(401) - 6.24) * EthanolFactor
	if got := Ethanol(100); got != want {
		t.Fatalf("Ethanol(100) = %v want %v", got, want)
	}
	if Reset(100) == Well(100) {
		t.Fatal("standards must differ")
	}
}
