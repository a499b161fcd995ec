// Package pool implements the accumulator-based ledger shared by ask
// pools (shares for sale, proceeds in collateral) and bid pools
// (collateral offered, proceeds in shares).
//
// The design is the classic staking-reward accumulator: a pool tracks
// aggregate undrained principal, aggregate ownership units, and a running
// proceeds-per-unit accumulator; each position tracks its units and a
// debt baseline. Deposit, fill, withdraw and claim are all O(1) in the
// number of depositors, and a depositor can never claim proceeds from
// fills that predate their deposit.
package pool

import (
	"github.com/obmx/pool-engine/internal/enginerr"
	"github.com/obmx/pool-engine/internal/fixmath"
)

// Side is the binary outcome a pool trades.
type Side uint8

const (
	SideYes Side = iota
	SideNo
)

// String returns the wire name of the side.
func (s Side) String() string {
	if s == SideYes {
		return "YES"
	}
	return "NO"
}

// ParseSide converts a wire name to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "YES":
		return SideYes, nil
	case "NO":
		return SideNo, nil
	}
	return 0, enginerr.New(enginerr.KindValidation, enginerr.CodeBadSide,
		"side must be YES or NO, got %q", s)
}

// Kind distinguishes the two pool families at the same price level.
type Kind uint8

const (
	// KindAsk pools hold shares as principal and earn collateral.
	KindAsk Kind = iota

	// KindBid pools hold collateral as principal and earn shares.
	KindBid
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	if k == KindAsk {
		return "ASK"
	}
	return "BID"
}

// ParseKind converts a wire name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "ASK":
		return KindAsk, nil
	case "BID":
		return KindBid, nil
	}
	return 0, enginerr.New(enginerr.KindValidation, enginerr.CodeBadSide,
		"kind must be ASK or BID, got %q", s)
}

// Key identifies one pool. Two pools with equal market, side and price
// but different kind are disjoint entities.
type Key struct {
	Market string
	Side   Side
	Price  uint32
	Kind   Kind
}

// Pool is the shared ledger for all depositors at one price level.
// Pools are created implicitly by the first deposit and never deleted;
// a fully drained and withdrawn pool returns to the zero state and can
// be re-seeded by a later deposit.
type Pool struct {
	// TotalPrincipal is the undrained principal still available to
	// takers: shares in an ask pool, collateral in a bid pool. Decreases
	// only on fill and withdraw, increases only on deposit.
	TotalPrincipal uint64

	// TotalUnits is the ownership units outstanding across all positions.
	TotalUnits uint64

	// AccProceedsPerUnit is the cumulative proceeds per unit, scaled by
	// fixmath.AccScale. Monotonically non-decreasing.
	AccProceedsPerUnit uint64

	// LifetimeProceeds is a monotonic informational counter of all
	// proceeds ever paid into this pool.
	LifetimeProceeds uint64
}

// Position is one depositor's stake in one pool. Positions persist at
// zero units for later queries and are never deleted.
type Position struct {
	// Units is this depositor's share of the pool's ownership units.
	Units uint64

	// Debt is the accumulator-scaled proceeds already attributed to this
	// position: Units*AccProceedsPerUnit as of the last checkpoint.
	// Unclaimed proceeds are always units*acc/scale - debt/scale, kept
	// non-negative by updating debt on every mutation.
	Debt uint64
}

// Deposit adds amountIn principal for pos and returns the units awarded.
//
// The first depositor sets a 1:1 units-to-principal baseline. Later
// depositors are priced at the live exchange rate, flooring in favor of
// existing depositors. Crediting debt for exactly the newly minted units
// at the current accumulator value is what prevents the new deposit from
// claiming proceeds accrued before it.
func (p *Pool) Deposit(pos *Position, amountIn uint64) (uint64, error) {
	if amountIn == 0 {
		return 0, enginerr.New(enginerr.KindValidation, enginerr.CodeZeroAmount,
			"deposit amount is zero")
	}

	var units uint64
	switch {
	case p.TotalUnits == 0:
		units = amountIn
	case p.TotalPrincipal == 0:
		// Drained but not fully withdrawn: there is no exchange rate
		// between units and principal, so the deposit cannot be priced.
		return 0, enginerr.New(enginerr.KindState, enginerr.CodeDrainedPool,
			"pool has %d units but zero principal", p.TotalUnits)
	default:
		var err error
		units, err = fixmath.MulDiv(amountIn, p.TotalUnits, p.TotalPrincipal)
		if err != nil {
			return 0, err
		}
		if units == 0 {
			return 0, enginerr.New(enginerr.KindValidation, enginerr.CodeDustDeposit,
				"deposit of %d floors to zero units", amountIn)
		}
	}

	debtDelta, err := fixmath.MulDiv(units, p.AccProceedsPerUnit, fixmath.AccScale)
	if err != nil {
		return 0, err
	}

	newPrincipal, err := fixmath.AddChecked(p.TotalPrincipal, amountIn)
	if err != nil {
		return 0, err
	}
	newUnits, err := fixmath.AddChecked(p.TotalUnits, units)
	if err != nil {
		return 0, err
	}

	p.TotalPrincipal = newPrincipal
	p.TotalUnits = newUnits
	pos.Units += units
	pos.Debt += debtDelta
	return units, nil
}

// Fill drains principalOut from the pool and distributes proceedsIn
// across unit holders by bumping the accumulator. The caller computes
// proceedsIn with ceiling rounding so the pool side never loses to a
// rounding remainder.
func (p *Pool) Fill(principalOut, proceedsIn uint64) error {
	if p.TotalUnits == 0 {
		return enginerr.New(enginerr.KindState, enginerr.CodeEmptyPool,
			"cannot fill a pool with zero units")
	}
	if principalOut > p.TotalPrincipal {
		return enginerr.New(enginerr.KindLiquidity, enginerr.CodeInsufficientBook,
			"fill of %d exceeds principal %d", principalOut, p.TotalPrincipal)
	}

	accDelta, err := fixmath.MulDiv(proceedsIn, fixmath.AccScale, p.TotalUnits)
	if err != nil {
		return err
	}
	newAcc, err := fixmath.AddChecked(p.AccProceedsPerUnit, accDelta)
	if err != nil {
		return err
	}
	newLifetime, err := fixmath.AddChecked(p.LifetimeProceeds, proceedsIn)
	if err != nil {
		return err
	}

	p.TotalPrincipal -= principalOut
	p.AccProceedsPerUnit = newAcc
	p.LifetimeProceeds = newLifetime
	return nil
}

// UserMax returns the most principal pos can withdraw right now:
// floor(units * totalPrincipal / totalUnits), or zero with no units
// outstanding.
func (p *Pool) UserMax(pos *Position) (uint64, error) {
	if p.TotalUnits == 0 {
		return 0, nil
	}
	return fixmath.MulDiv(pos.Units, p.TotalPrincipal, p.TotalUnits)
}

// Withdraw removes principal from the pool for pos. principalWanted of
// zero means "everything withdrawable". Returns the principal paid out.
//
// Units to burn round up, charging the rounding remainder to the party
// leaving rather than diluting those who stay. The burn is capped at the
// position's own units; in extreme rounding cases that cap can under-burn
// relative to the proportional formula. Known rounding-tolerance
// boundary, kept as-is.
func (p *Pool) Withdraw(pos *Position, principalWanted uint64) (uint64, error) {
	userMax, err := p.UserMax(pos)
	if err != nil {
		return 0, err
	}
	if userMax == 0 {
		return 0, enginerr.New(enginerr.KindValidation, enginerr.CodeNothingToWith,
			"nothing to withdraw")
	}

	principalOut := principalWanted
	if principalOut == 0 {
		principalOut = userMax
	}
	if principalOut > userMax {
		return 0, enginerr.New(enginerr.KindValidation, enginerr.CodeExceedsUserMax,
			"withdraw of %d exceeds max %d", principalOut, userMax)
	}

	burnUnits, err := fixmath.MulDivCeil(principalOut, p.TotalUnits, p.TotalPrincipal)
	if err != nil {
		return 0, err
	}
	if burnUnits > pos.Units {
		burnUnits = pos.Units
	}

	debtDelta, err := fixmath.MulDiv(burnUnits, p.AccProceedsPerUnit, fixmath.AccScale)
	if err != nil {
		return 0, err
	}

	p.TotalPrincipal -= principalOut
	p.TotalUnits -= burnUnits
	pos.Units -= burnUnits
	if debtDelta > pos.Debt {
		pos.Debt = 0
	} else {
		pos.Debt -= debtDelta
	}
	return principalOut, nil
}

// Claim pays out the proceeds accrued to pos since its last checkpoint
// and advances the debt baseline. Claiming twice with no intervening
// fill yields zero the second time; that no-op is not an error.
func (p *Pool) Claim(pos *Position) (uint64, error) {
	accumulated, err := fixmath.MulDiv(pos.Units, p.AccProceedsPerUnit, fixmath.AccScale)
	if err != nil {
		return 0, err
	}

	var proceeds uint64
	if accumulated > pos.Debt {
		proceeds = accumulated - pos.Debt
	}
	pos.Debt = accumulated
	return proceeds, nil
}

// Pending returns the proceeds Claim would pay out, without mutating.
func (p *Pool) Pending(pos *Position) (uint64, error) {
	accumulated, err := fixmath.MulDiv(pos.Units, p.AccProceedsPerUnit, fixmath.AccScale)
	if err != nil {
		return 0, err
	}
	if accumulated > pos.Debt {
		return accumulated - pos.Debt, nil
	}
	return 0, nil
}
