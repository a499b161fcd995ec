package fixmath

import (
	"errors"
	"math"
	"testing"

	"github.com/obmx/pool-engine/internal/enginerr"
)

func TestMulDiv_Floors(t *testing.T) {
	got, err := MulDiv(7, 3, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 10 { // 21/2 floors
		t.Errorf("expected 10, got %d", got)
	}
}

func TestMulDiv_LargeIntermediate(t *testing.T) {
	// a*b exceeds 64 bits but the quotient fits.
	a := uint64(math.MaxUint64 / 2)
	got, err := MulDiv(a, 8, 2)
	if err == nil {
		t.Fatalf("expected overflow, got %d", got)
	}

	got, err = MulDiv(a, 4, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != a {
		t.Errorf("expected %d, got %d", a, got)
	}
}

func TestMulDiv_Overflow(t *testing.T) {
	_, err := MulDiv(math.MaxUint64, math.MaxUint64, 1)
	if !errors.Is(err, enginerr.Computation) {
		t.Errorf("expected computation error, got %v", err)
	}
	if enginerr.CodeOf(err) != enginerr.CodeMulOverflow {
		t.Errorf("expected overflow sub-code, got %d", enginerr.CodeOf(err))
	}
}

func TestMulDiv_DivByZero(t *testing.T) {
	_, err := MulDiv(1, 1, 0)
	if !errors.Is(err, enginerr.Computation) {
		t.Errorf("expected computation error, got %v", err)
	}
	if enginerr.CodeOf(err) != enginerr.CodeDivByZero {
		t.Errorf("expected div-by-zero sub-code, got %d", enginerr.CodeOf(err))
	}
}

func TestMulDivCeil(t *testing.T) {
	cases := []struct {
		a, b, den, want uint64
	}{
		{7, 3, 2, 11},   // 21/2 → 10.5 → 11
		{40, 5000, 10000, 20}, // exact, no bump
		{1, 1, 3, 1},
		{0, 5, 7, 0},
	}
	for _, c := range cases {
		got, err := MulDivCeil(c.a, c.b, c.den)
		if err != nil {
			t.Fatalf("MulDivCeil(%d,%d,%d): %v", c.a, c.b, c.den, err)
		}
		if got != c.want {
			t.Errorf("MulDivCeil(%d,%d,%d) = %d, want %d", c.a, c.b, c.den, got, c.want)
		}
	}
}

func TestCeilDiv(t *testing.T) {
	if got, _ := CeilDiv(10, 3); got != 4 {
		t.Errorf("expected 4, got %d", got)
	}
	if got, _ := CeilDiv(9, 3); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if _, err := CeilDiv(1, 0); !errors.Is(err, enginerr.Computation) {
		t.Errorf("expected computation error, got %v", err)
	}
}

func TestAddChecked(t *testing.T) {
	if got, err := AddChecked(1, 2); err != nil || got != 3 {
		t.Errorf("expected 3, got %d (%v)", got, err)
	}
	if _, err := AddChecked(math.MaxUint64, 1); !errors.Is(err, enginerr.Computation) {
		t.Errorf("expected computation error, got %v", err)
	}
}
