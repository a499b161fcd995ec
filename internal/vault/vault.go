// Package vault defines the engine's external collaborators: the
// fully-collateralized token vault that custodies shares and payment,
// and the swap fallback router used when pool depth runs out.
//
// The engine never holds tokens beyond transient escrow inside a single
// request; every durable movement of value goes through these interfaces.
package vault

import "context"

// NativeToken is the sentinel collateral address denoting the chain's
// native asset rather than a token contract.
const NativeToken = "native"

// Vault is the fully-collateralized outcome-token vault.
type Vault interface {
	// IsMarketOpen reports whether marketID accepts deposits and fills.
	IsMarketOpen(ctx context.Context, marketID string) bool

	// CollateralToken returns the payment-token address for marketID.
	// NativeToken denotes the chain's native asset.
	CollateralToken(ctx context.Context, marketID string) string

	// SplitCollateralIntoShares escrows amount collateral and mints
	// amount of both YES and NO shares to recipient.
	SplitCollateralIntoShares(ctx context.Context, marketID string, amount uint64, recipient string) error

	// TransferShares moves amount of tokenID from the engine to `to`.
	// A false return with nil error is a falsy transfer and must be
	// treated as failure.
	TransferShares(ctx context.Context, to, tokenID string, amount uint64) (bool, error)

	// TransferSharesFrom moves amount of tokenID between accounts on the
	// caller's authority.
	TransferSharesFrom(ctx context.Context, from, to, tokenID string, amount uint64) (bool, error)

	// TransferCollateral moves payment between accounts. The low-level
	// safe-transfer mechanics live behind this call.
	TransferCollateral(ctx context.Context, marketID, from, to string, amount uint64) error
}

// FallbackRouter is the swap/vault liquidity source consulted when pool
// depth is insufficient. A call either succeeds as a unit or fails as a
// unit; partial fallback settlement is not observable.
type FallbackRouter interface {
	// BuyWithFallback spends amountIn collateral for shares of
	// (marketID, side), delivering at least minOut shares to recipient.
	// Returns the shares delivered and a source tag for observability.
	BuyWithFallback(ctx context.Context, marketID string, side string, amountIn, minOut uint64, recipient string, deadline int64) (uint64, string, error)

	// SellWithFallback sells amountIn shares of (marketID, side) for
	// collateral, delivering at least minOut to recipient.
	SellWithFallback(ctx context.Context, marketID string, side string, amountIn, minOut uint64, recipient string, deadline int64) (uint64, string, error)
}

// TokenID derives the share-token identifier for one outcome of one
// market. Disjoint from every collateral token.
func TokenID(marketID, side string) string {
	return "share:" + marketID + ":" + side
}
