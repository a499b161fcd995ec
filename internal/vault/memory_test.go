package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/obmx/pool-engine/internal/enginerr"
)

const market = "mkt-1"

func newVault(t *testing.T) *Memory {
	t.Helper()
	v := NewMemory(30)
	v.OpenMarket(market)
	return v
}

func TestSplitCollateralIntoShares(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	v.Credit("alice", v.CollateralToken(ctx, market), 100)

	if err := v.SplitCollateralIntoShares(ctx, market, 60, "alice"); err != nil {
		t.Fatalf("split: %v", err)
	}
	if got := v.Balance("alice", TokenID(market, "YES")); got != 60 {
		t.Errorf("yes shares = %d, want 60", got)
	}
	if got := v.Balance("alice", TokenID(market, "NO")); got != 60 {
		t.Errorf("no shares = %d, want 60", got)
	}
	if got := v.Balance("alice", v.CollateralToken(ctx, market)); got != 40 {
		t.Errorf("collateral = %d, want 40", got)
	}
}

func TestTransferSharesFrom_Insufficient(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)

	ok, err := v.TransferSharesFrom(ctx, "alice", "bob", TokenID(market, "YES"), 10)
	if ok || err == nil {
		t.Error("transfer from empty account should fail")
	}
}

func TestBuyWithFallback_AMM(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	v.SeedAMM(market, "YES", 10_000, 10_000)
	v.Credit("taker", v.CollateralToken(ctx, market), 1_000)

	out, source, err := v.BuyWithFallback(ctx, market, "YES", 1_000, 1, "taker", 0)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if source != SourceAMM {
		t.Errorf("source = %s, want AMM", source)
	}
	// Constant product with fee: out < in at 1:1 reserves.
	if out == 0 || out >= 1_000 {
		t.Errorf("swap output %d out of expected range", out)
	}
	if got := v.Balance("taker", TokenID(market, "YES")); got != out {
		t.Errorf("taker shares = %d, want %d", got, out)
	}
}

func TestBuyWithFallback_MintWhenNoAMM(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	v.Credit("taker", v.CollateralToken(ctx, market), 500)

	out, source, err := v.BuyWithFallback(ctx, market, "NO", 500, 1, "taker", 0)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if source != SourceMint {
		t.Errorf("source = %s, want MINT", source)
	}
	if out != 500 {
		t.Errorf("mint is 1:1, got %d", out)
	}
	// The unwanted side stays in vault inventory.
	if got := v.Balance("vault:inventory", TokenID(market, "YES")); got != 500 {
		t.Errorf("inventory = %d, want 500", got)
	}
}

func TestBuyWithFallback_MinOutEnforcedWithoutMutation(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	v.Credit("taker", v.CollateralToken(ctx, market), 500)

	_, _, err := v.BuyWithFallback(ctx, market, "YES", 500, 501, "taker", 0)
	if !errors.Is(err, enginerr.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := v.Balance("taker", v.CollateralToken(ctx, market)); got != 500 {
		t.Errorf("failed buy must not move collateral, balance %d", got)
	}
}

func TestSellWithFallback(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	v.SeedAMM(market, "YES", 10_000, 10_000)
	v.Credit("taker", TokenID(market, "YES"), 1_000)

	out, source, err := v.SellWithFallback(ctx, market, "YES", 1_000, 1, "taker", 0)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if source != SourceAMM {
		t.Errorf("source = %s, want AMM", source)
	}
	if got := v.Balance("taker", v.CollateralToken(ctx, market)); got != out {
		t.Errorf("taker collateral = %d, want %d", got, out)
	}
}

func TestSellWithFallback_NoLiquidity(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	v.Credit("taker", TokenID(market, "YES"), 100)

	_, _, err := v.SellWithFallback(ctx, market, "YES", 100, 1, "taker", 0)
	if !errors.Is(err, enginerr.Liquidity) {
		t.Errorf("expected liquidity error, got %v", err)
	}
}

func TestMarketOpenClose(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	if !v.IsMarketOpen(ctx, market) {
		t.Error("market should be open")
	}
	v.CloseMarket(market)
	if v.IsMarketOpen(ctx, market) {
		t.Error("market should be closed")
	}
}
