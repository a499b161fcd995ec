// Package pricing handles the engine's integer price encoding and its
// conversion to human-readable decimal prices for API responses.
//
// A price is an integer in ten-thousandths of one collateral unit per
// share: 5000 means 0.5. The ledger computes exclusively on the integer
// encoding; decimals appear only at the display boundary.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/obmx/pool-engine/internal/enginerr"
)

// Denom is the price denominator: prices are per-10,000ths.
const Denom uint64 = 10000

// MinPrice and MaxPrice bound the open interval of valid prices.
// A price of 0 would pay nothing; a price of Denom or more would price a
// binary share at or above certain payout.
const (
	MinPrice uint32 = 1
	MaxPrice uint32 = 9999
)

// Validate checks that price lies strictly between 0 and Denom.
func Validate(price uint32) error {
	if price < MinPrice || price > MaxPrice {
		return enginerr.New(enginerr.KindValidation, enginerr.CodePriceOutOfRange,
			"price %d outside (0, %d)", price, Denom)
	}
	return nil
}

// ToDecimal converts an integer price to its decimal form: 5000 → 0.5.
func ToDecimal(price uint64) decimal.Decimal {
	return decimal.New(int64(price), 0).Div(decimal.New(int64(Denom), 0))
}

// Notional returns the decimal collateral value of size shares at price.
func Notional(size, price uint64) decimal.Decimal {
	return decimal.New(int64(size), 0).Mul(ToDecimal(price))
}
