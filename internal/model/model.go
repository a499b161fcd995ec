// Package model defines the domain types shared across the pool engine.
//
// Events are the engine's only durable history: the ledger itself keeps
// current balances, and indexers reconstruct everything else from the
// event journal. Integer amounts are base units; decimal fields exist
// for display only.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types.
const (
	EventDeposit  = "DEPOSIT"
	EventFill     = "FILL"
	EventClaim    = "CLAIM"
	EventWithdraw = "WITHDRAW"
)

// Event is an immutable record of one ledger mutation. Once written,
// events are never modified or deleted.
type Event struct {
	ID       string `json:"id" db:"id"`
	Type     string `json:"type" db:"type"`
	MarketID string `json:"market_id" db:"market_id"`
	Side     string `json:"side" db:"side"` // "YES" or "NO"
	Kind     string `json:"kind" db:"kind"` // "ASK" or "BID"
	Price    uint32 `json:"price" db:"price"`
	Actor    string `json:"actor" db:"actor"`

	// Amount is the operation's primary quantity: principal deposited or
	// withdrawn, principal drained on a fill, proceeds paid on a claim.
	Amount uint64 `json:"amount" db:"amount"`

	// Proceeds is the counter-flow on fills (what the taker paid in) and
	// zero elsewhere.
	Proceeds uint64 `json:"proceeds" db:"proceeds"`

	// Sources lists where a taker fill was served from ("POOL", "AMM",
	// "MINT"); empty for non-fill events.
	Sources []string `json:"sources,omitempty" db:"sources"`

	// PriceDecimal is the display form of Price (5000 → 0.5).
	PriceDecimal decimal.Decimal `json:"price_decimal" db:"price_decimal"`

	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Market is the registry entry for one binary-outcome market known to
// the engine.
type Market struct {
	ID              string    `json:"id" db:"id"`
	CollateralToken string    `json:"collateral_token" db:"collateral_token"`
	Status          string    `json:"status" db:"status"` // "open", "closed"
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// PositionView is the read-model of one depositor's stake in one pool,
// returned by batch position lookups.
type PositionView struct {
	MarketID string `json:"market_id"`
	Side     string `json:"side"`
	Kind     string `json:"kind"`
	Price    uint32 `json:"price"`
	Actor    string `json:"actor"`

	Units           uint64 `json:"units"`
	WithdrawableMax uint64 `json:"withdrawable_max"`
	PendingProceeds uint64 `json:"pending_proceeds"`

	// NotionalValue is the display collateral value of the withdrawable
	// principal at this pool's price.
	NotionalValue decimal.Decimal `json:"notional_value"`
}

// DepthLevel is one price level's live depth.
type DepthLevel struct {
	Price        uint32          `json:"price"`
	PriceDecimal decimal.Decimal `json:"price_decimal"`
	Principal    uint64          `json:"principal"`
}
