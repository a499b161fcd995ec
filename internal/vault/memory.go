package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/obmx/pool-engine/internal/enginerr"
	"github.com/obmx/pool-engine/internal/fixmath"
)

// Source tags reported by the memory fallback.
const (
	SourceAMM  = "AMM"
	SourceMint = "MINT"
)

// ammPool is one market-side constant-product pool inside the memory
// fallback: collateral reserve against share reserve.
type ammPool struct {
	reserveCollateral uint64
	reserveShares     uint64
}

// Memory is an in-memory Vault and FallbackRouter for development and
// tests. Balances live in plain maps; the fallback prices swaps with a
// fee-adjusted constant-product formula and falls through to 1:1 minting
// when the swap pool cannot serve a buy.
type Memory struct {
	mu       sync.Mutex
	open     map[string]bool
	balances map[string]map[string]uint64 // account -> token -> amount
	amm      map[string]*ammPool          // market+side -> swap pool
	feeBps   uint64
}

// NewMemory creates an empty in-memory vault with the given swap fee.
func NewMemory(feeBps uint64) *Memory {
	return &Memory{
		open:     make(map[string]bool),
		balances: make(map[string]map[string]uint64),
		amm:      make(map[string]*ammPool),
		feeBps:   feeBps,
	}
}

// OpenMarket registers marketID as open for trading.
func (v *Memory) OpenMarket(marketID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.open[marketID] = true
}

// CloseMarket marks marketID closed.
func (v *Memory) CloseMarket(marketID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.open[marketID] = false
}

// Credit mints balance directly to an account. Test and genesis helper.
func (v *Memory) Credit(account, token string, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(account, token, amount)
}

// Balance reports an account's balance of token.
func (v *Memory) Balance(account, token string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[account][token]
}

// SeedAMM funds the fallback swap pool for one market side.
func (v *Memory) SeedAMM(marketID, side string, reserveCollateral, reserveShares uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.amm[marketID+":"+side] = &ammPool{
		reserveCollateral: reserveCollateral,
		reserveShares:     reserveShares,
	}
}

func (v *Memory) credit(account, token string, amount uint64) {
	acct, ok := v.balances[account]
	if !ok {
		acct = make(map[string]uint64)
		v.balances[account] = acct
	}
	acct[token] += amount
}

func (v *Memory) debit(account, token string, amount uint64) error {
	if v.balances[account][token] < amount {
		return fmt.Errorf("vault: %s has %d of %s, need %d",
			account, v.balances[account][token], token, amount)
	}
	v.balances[account][token] -= amount
	return nil
}

func (v *Memory) IsMarketOpen(_ context.Context, marketID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open[marketID]
}

func (v *Memory) CollateralToken(_ context.Context, marketID string) string {
	return "col:" + marketID
}

func (v *Memory) SplitCollateralIntoShares(ctx context.Context, marketID string, amount uint64, recipient string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.debit(recipient, v.CollateralToken(ctx, marketID), amount); err != nil {
		return err
	}
	v.credit(recipient, TokenID(marketID, "YES"), amount)
	v.credit(recipient, TokenID(marketID, "NO"), amount)
	return nil
}

// EngineAccount is the escrow account the engine moves tokens through.
const EngineAccount = "engine"

func (v *Memory) TransferShares(ctx context.Context, to, tokenID string, amount uint64) (bool, error) {
	return v.TransferSharesFrom(ctx, EngineAccount, to, tokenID, amount)
}

func (v *Memory) TransferSharesFrom(_ context.Context, from, to, tokenID string, amount uint64) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.debit(from, tokenID, amount); err != nil {
		return false, err
	}
	v.credit(to, tokenID, amount)
	return true, nil
}

func (v *Memory) TransferCollateral(ctx context.Context, marketID, from, to string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	token := v.CollateralToken(ctx, marketID)
	if err := v.debit(from, token, amount); err != nil {
		return err
	}
	v.credit(to, token, amount)
	return nil
}

// swapOutput prices a fee-adjusted constant-product swap:
// out = (in*(10000-fee)*reserveOut) / (reserveIn*10000 + in*(10000-fee)).
func (v *Memory) swapOutput(amountIn, reserveIn, reserveOut uint64) (uint64, error) {
	if reserveIn == 0 || reserveOut == 0 {
		return 0, nil
	}
	inWithFee, err := fixmath.MulDiv(amountIn, 10000-v.feeBps, 1)
	if err != nil {
		return 0, err
	}
	scaledIn, err := fixmath.MulDiv(reserveIn, 10000, 1)
	if err != nil {
		return 0, err
	}
	den, err := fixmath.AddChecked(scaledIn, inWithFee)
	if err != nil {
		return 0, err
	}
	return fixmath.MulDiv(inWithFee, reserveOut, den)
}

func (v *Memory) BuyWithFallback(ctx context.Context, marketID, side string, amountIn, minOut uint64, recipient string, _ int64) (uint64, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	colToken := v.CollateralToken(ctx, marketID)
	shareToken := TokenID(marketID, side)

	// Try the swap pool first.
	if p, ok := v.amm[marketID+":"+side]; ok {
		out, err := v.swapOutput(amountIn, p.reserveCollateral, p.reserveShares)
		if err != nil {
			return 0, "", err
		}
		if out > 0 && out < p.reserveShares {
			if out < minOut {
				return 0, "", enginerr.New(enginerr.KindValidation, enginerr.CodeBelowMinFill,
					"fallback swap output %d below minimum %d", out, minOut)
			}
			if err := v.debit(recipient, colToken, amountIn); err != nil {
				return 0, "", enginerr.New(enginerr.KindTransfer, enginerr.CodeTransferFailed, "%v", err)
			}
			p.reserveCollateral += amountIn
			p.reserveShares -= out
			v.credit(recipient, shareToken, out)
			return out, SourceAMM, nil
		}
	}

	// Mint path: split collateral 1:1 and keep only the requested side.
	if amountIn < minOut {
		return 0, "", enginerr.New(enginerr.KindValidation, enginerr.CodeBelowMinFill,
			"fallback mint output %d below minimum %d", amountIn, minOut)
	}
	if err := v.debit(recipient, colToken, amountIn); err != nil {
		return 0, "", enginerr.New(enginerr.KindTransfer, enginerr.CodeTransferFailed, "%v", err)
	}
	v.credit(recipient, shareToken, amountIn)
	other := "NO"
	if side == "NO" {
		other = "YES"
	}
	v.credit("vault:inventory", TokenID(marketID, other), amountIn)
	return amountIn, SourceMint, nil
}

func (v *Memory) SellWithFallback(ctx context.Context, marketID, side string, amountIn, minOut uint64, recipient string, _ int64) (uint64, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.amm[marketID+":"+side]
	if !ok {
		return 0, "", enginerr.New(enginerr.KindLiquidity, enginerr.CodeInsufficientBook,
			"no fallback liquidity for %s %s", marketID, side)
	}

	out, err := v.swapOutput(amountIn, p.reserveShares, p.reserveCollateral)
	if err != nil {
		return 0, "", err
	}
	if out == 0 || out >= p.reserveCollateral {
		return 0, "", enginerr.New(enginerr.KindLiquidity, enginerr.CodeInsufficientBook,
			"fallback cannot absorb %d shares", amountIn)
	}
	if out < minOut {
		return 0, "", enginerr.New(enginerr.KindValidation, enginerr.CodeBelowMinFill,
			"fallback swap output %d below minimum %d", out, minOut)
	}

	shareToken := TokenID(marketID, side)
	if err := v.debit(recipient, shareToken, amountIn); err != nil {
		return 0, "", enginerr.New(enginerr.KindTransfer, enginerr.CodeTransferFailed, "%v", err)
	}
	p.reserveShares += amountIn
	p.reserveCollateral -= out
	v.credit(recipient, v.CollateralToken(ctx, marketID), out)
	return out, SourceAMM, nil
}
