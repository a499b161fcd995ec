// Package fixmath provides overflow-checked multiply-then-divide and
// ceiling-division primitives for the pool ledger.
//
// All amounts in the engine are unsigned 64-bit integers in base units.
// Products are computed through a 128-bit intermediate (math/bits), so a
// multiplication never silently wraps; a result that does not fit back in
// 64 bits is a Computation error, never a truncation.
package fixmath

import (
	"math/bits"

	"github.com/obmx/pool-engine/internal/enginerr"
)

// AccScale is the fixed-point scale for the proceeds-per-unit accumulator.
// 1e12 leaves headroom for pool balances up to ~1.8e7 whole tokens at
// 18-decimal base units inside the 128-bit intermediate.
const AccScale uint64 = 1_000_000_000_000

// MulDiv returns floor(a*b/den).
// Fails with a Computation error when den is zero or the quotient does not
// fit in 64 bits.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, enginerr.New(enginerr.KindComputation, enginerr.CodeDivByZero,
			"muldiv: division by zero")
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, enginerr.New(enginerr.KindComputation, enginerr.CodeMulOverflow,
			"muldiv: %d*%d/%d overflows", a, b, den)
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

// MulDivCeil returns ceil(a*b/den), with the same failure modes as MulDiv.
func MulDivCeil(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, enginerr.New(enginerr.KindComputation, enginerr.CodeDivByZero,
			"muldivceil: division by zero")
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, enginerr.New(enginerr.KindComputation, enginerr.CodeMulOverflow,
			"muldivceil: %d*%d/%d overflows", a, b, den)
	}
	q, r := bits.Div64(hi, lo, den)
	if r > 0 {
		if q == ^uint64(0) {
			return 0, enginerr.New(enginerr.KindComputation, enginerr.CodeMulOverflow,
				"muldivceil: rounding %d*%d/%d overflows", a, b, den)
		}
		q++
	}
	return q, nil
}

// CeilDiv returns ceil(a/b). Fails with a Computation error when b is zero.
func CeilDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, enginerr.New(enginerr.KindComputation, enginerr.CodeDivByZero,
			"ceildiv: division by zero")
	}
	q := a / b
	if a%b > 0 {
		q++
	}
	return q, nil
}

// AddChecked returns a+b, failing with a Computation error on wraparound.
// Used for monotonic counters (the accumulator, lifetime proceeds) where
// wrapping would corrupt every depositor's claim.
func AddChecked(a, b uint64) (uint64, error) {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, enginerr.New(enginerr.KindComputation, enginerr.CodeAccOverflow,
			"add: %d+%d overflows", a, b)
	}
	return s, nil
}
