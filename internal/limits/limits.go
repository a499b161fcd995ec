// Package limits enforces escrow caps on liquidity deposits.
//
// A depositor concentrating principal at one price level, or spread
// across many levels of one market, ties up escrow the engine must be
// able to return in full. The limiter caps both: the position at a
// single pool and the aggregate escrow across all of a user's pools in
// one market.
package limits

import "errors"

var (
	// ErrPerPoolLimitExceeded is returned when a deposit would push a
	// single pool position beyond the per-pool maximum.
	ErrPerPoolLimitExceeded = errors.New("limits: per-pool escrow limit exceeded")

	// ErrPerMarketLimitExceeded is returned when a deposit would push a
	// user's aggregate escrow in one market beyond the market maximum.
	ErrPerMarketLimitExceeded = errors.New("limits: per-market escrow limit exceeded")
)

// EscrowLimiter caps principal a single user may escrow.
// A zero limit disables that check.
type EscrowLimiter struct {
	// MaxPerPool is the maximum principal one user may hold in one pool.
	MaxPerPool uint64

	// MaxPerMarket is the maximum aggregate principal one user may hold
	// across all pools of one market.
	MaxPerMarket uint64
}

// NewEscrowLimiter creates a limiter with the given caps.
func NewEscrowLimiter(maxPerPool, maxPerMarket uint64) *EscrowLimiter {
	return &EscrowLimiter{MaxPerPool: maxPerPool, MaxPerMarket: maxPerMarket}
}

// Check validates a deposit of amount against the user's current escrow.
//
// Parameters:
//   - inPool: the user's current principal at the target pool
//   - inMarket: the user's aggregate principal across the market,
//     including inPool
//
// Returns nil if the deposit is within limits.
func (l *EscrowLimiter) Check(amount, inPool, inMarket uint64) error {
	if l == nil {
		return nil
	}
	if l.MaxPerPool > 0 && inPool+amount > l.MaxPerPool {
		return ErrPerPoolLimitExceeded
	}
	if l.MaxPerMarket > 0 && inMarket+amount > l.MaxPerMarket {
		return ErrPerMarketLimitExceeded
	}
	return nil
}
