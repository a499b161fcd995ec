// Package enginerr defines the error taxonomy for the pool engine.
//
// Every failure carries a Kind (the broad category callers branch on) and
// a short numeric sub-code for diagnosis. Errors compare with errors.Is
// against the kind sentinels below, so call sites never need to match on
// message text.
package enginerr

import (
	"errors"
	"fmt"
)

// Kind is the broad error category.
type Kind int

const (
	// KindValidation covers malformed input: zero amounts, out-of-range
	// prices, dust deposits, oversized withdrawals, unmet minimums.
	KindValidation Kind = iota + 1

	// KindState covers operations that are well-formed but impossible in
	// the current ledger state: closed market, drained pool, empty pool.
	KindState

	// KindLiquidity covers requests exceeding available depth.
	KindLiquidity

	// KindTransfer covers failed or falsy token movements.
	KindTransfer

	// KindTiming covers expired deadlines.
	KindTiming

	// KindComputation covers arithmetic overflow and division by zero.
	KindComputation

	// KindReentrancy covers nested mutating calls detected by the guard.
	KindReentrancy
)

// String returns the kind name used in logs and API responses.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindLiquidity:
		return "liquidity"
	case KindTransfer:
		return "transfer"
	case KindTiming:
		return "timing"
	case KindComputation:
		return "computation"
	case KindReentrancy:
		return "reentrancy"
	default:
		return "unknown"
	}
}

// Sub-codes. Grouped by hundreds per kind so a bare code is still readable.
const (
	CodeZeroAmount       = 101
	CodePriceOutOfRange  = 102
	CodeDustDeposit      = 103
	CodeExceedsUserMax   = 104
	CodeBelowMinFill     = 105
	CodeNothingToWith    = 106
	CodeBadSide          = 107
	CodeSelfTransfer     = 108
	CodeEscrowLimit      = 109
	CodeMarketClosed     = 201
	CodeDrainedPool      = 202
	CodeEmptyPool        = 203
	CodeInsufficientBook = 301
	CodeTransferFailed   = 401
	CodeDeadlinePassed   = 501
	CodeMulOverflow      = 601
	CodeDivByZero        = 602
	CodeAccOverflow      = 603
	CodeReentered        = 701
)

// Error is the concrete error type carried through the engine.
type Error struct {
	Kind Kind
	Code int
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s(%d): %s", e.Kind, e.Code, e.msg)
}

// Is reports kind equality, so errors.Is(err, enginerr.Validation) works
// for any validation error regardless of sub-code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind && (t.Code == 0 || t.Code == e.Code)
	}
	return false
}

// Kind sentinels for errors.Is matching. Code 0 matches any sub-code.
var (
	Validation  = &Error{Kind: KindValidation}
	State       = &Error{Kind: KindState}
	Liquidity   = &Error{Kind: KindLiquidity}
	Transfer    = &Error{Kind: KindTransfer}
	Timing      = &Error{Kind: KindTiming}
	Computation = &Error{Kind: KindComputation}
	Reentrancy  = &Error{Kind: KindReentrancy}
)

// New creates an error with an explicit kind, sub-code and message.
func New(kind Kind, code int, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the sub-code from err, or 0 if err is not an engine error.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// KindOf extracts the kind from err, or 0 if err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
