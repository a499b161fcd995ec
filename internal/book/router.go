package book

import (
	"context"
	"log/slog"

	"github.com/obmx/pool-engine/internal/enginerr"
	"github.com/obmx/pool-engine/internal/fixmath"
	"github.com/obmx/pool-engine/internal/model"
	"github.com/obmx/pool-engine/internal/pool"
	"github.com/obmx/pool-engine/internal/pricing"
	"github.com/obmx/pool-engine/internal/vault"
)

// FillResult reports how a taker request was served.
type FillResult struct {
	// SizeFilled is the total shares bought or sold across all sources.
	SizeFilled uint64

	// PoolFilled is the share of SizeFilled served from the resting pool.
	PoolFilled uint64

	// PoolFlow is the counter-asset moved by the pool leg: collateral
	// paid in on a buy, collateral paid out on a sell.
	PoolFlow uint64

	// FallbackOut is what the fallback leg delivered: shares on a buy,
	// collateral on a sell.
	FallbackOut uint64

	// Sources lists the venues used, in execution order.
	Sources []string
}

// TakerBuy buys up to sizeWanted shares of (market, side). With a
// non-zero priceLimit the ask pool at exactly that price is drained
// first; any unfilled remainder is forwarded to the fallback with the
// price-implied collateral budget. The whole request succeeds or fails
// as a unit, and fails Validation when the total fill lands under
// minFill.
func (b *Book) TakerBuy(ctx context.Context, market string, side pool.Side, sizeWanted uint64, priceLimit uint32, minFill uint64, actor string, deadline int64) (FillResult, error) {
	var res FillResult

	ctx, err := b.enter(ctx)
	if err != nil {
		return res, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkDeadline(deadline); err != nil {
		return res, err
	}
	if sizeWanted == 0 {
		return res, enginerr.New(enginerr.KindValidation, enginerr.CodeZeroAmount,
			"size is zero")
	}
	if priceLimit != 0 {
		if err := pricing.Validate(priceLimit); err != nil {
			return res, err
		}
	}
	if err := b.requireOpen(ctx, market); err != nil {
		return res, err
	}

	tx := b.begin()
	var refunds []func()
	fail := func(err error) (FillResult, error) {
		tx.rollback()
		for i := len(refunds) - 1; i >= 0; i-- {
			refunds[i]()
		}
		return FillResult{}, err
	}

	remaining := sizeWanted

	// Pool leg: drain the ask pool at the limit price.
	if priceLimit != 0 {
		key := pool.Key{Market: market, Side: side, Price: priceLimit, Kind: pool.KindAsk}
		if p, ok := b.pools[key]; ok && p.TotalPrincipal > 0 {
			fillShares := remaining
			if p.TotalPrincipal < fillShares {
				fillShares = p.TotalPrincipal
			}
			proceeds, err := fixmath.MulDivCeil(fillShares, uint64(priceLimit), pricing.Denom)
			if err != nil {
				return fail(err)
			}

			// Taker pays the pool's proceeds into escrow, receives the
			// drained shares out of escrow.
			if err := b.vault.TransferCollateral(ctx, market, actor, EscrowAccount, proceeds); err != nil {
				return fail(enginerr.New(enginerr.KindTransfer, enginerr.CodeTransferFailed, "%v", err))
			}
			refunds = append(refunds, func() {
				if err := b.vault.TransferCollateral(ctx, market, EscrowAccount, actor, proceeds); err != nil {
					slog.Error("taker refund failed", "actor", actor, "err", err)
				}
			})

			if err := tx.pool(key).Fill(fillShares, proceeds); err != nil {
				return fail(err)
			}
			if b.pools[key].TotalPrincipal == 0 {
				tx.clearBit(bitmapKey(key), priceLimit)
			}

			pay, reclaim := b.payOutPrincipal(ctx, key, actor, fillShares)
			if err := pay(); err != nil {
				return fail(err)
			}
			refunds = append(refunds, reclaim)

			remaining -= fillShares
			res.PoolFilled = fillShares
			res.PoolFlow = proceeds
			res.SizeFilled += fillShares
			res.Sources = append(res.Sources, SourcePool)
		}
	}

	// Fallback leg: forward the remainder with its price-implied budget.
	if remaining > 0 && b.fallback != nil {
		budgetPrice := uint64(priceLimit)
		if budgetPrice == 0 {
			budgetPrice = pricing.Denom // no limit: fund the remainder at par
		}
		budget, err := fixmath.MulDivCeil(remaining, budgetPrice, pricing.Denom)
		if err != nil {
			return fail(err)
		}
		out, source, err := b.fallback.BuyWithFallback(ctx, market, side.String(), budget, 0, actor, deadline)
		if err != nil {
			return fail(err)
		}
		res.FallbackOut = out
		res.SizeFilled += out
		res.Sources = append(res.Sources, source)
	}

	if res.SizeFilled < minFill {
		return fail(enginerr.New(enginerr.KindValidation, enginerr.CodeBelowMinFill,
			"filled %d below minimum %d", res.SizeFilled, minFill))
	}
	if res.SizeFilled == 0 {
		return fail(enginerr.New(enginerr.KindLiquidity, enginerr.CodeInsufficientBook,
			"no liquidity for %s %s at %d", market, side.String(), priceLimit))
	}

	if err := b.emit(ctx, &model.Event{
		Type:     model.EventFill,
		MarketID: market,
		Side:     side.String(),
		Kind:     pool.KindAsk.String(),
		Price:    priceLimit,
		Actor:    actor,
		Amount:   res.SizeFilled,
		Proceeds: res.PoolFlow,
		Sources:  res.Sources,
	}); err != nil {
		return fail(err)
	}

	slog.Info("taker buy",
		"market", market, "side", side.String(), "price", priceLimit,
		"actor", actor, "size", res.SizeFilled, "sources", res.Sources)
	return res, nil
}

// TakerSell sells up to sizeWanted shares of (market, side). With a
// non-zero priceLimit the bid pool at exactly that price absorbs shares
// first, paying out its escrowed collateral; the remainder goes to the
// fallback. All-or-nothing with a minimum on total collateral received.
func (b *Book) TakerSell(ctx context.Context, market string, side pool.Side, sizeWanted uint64, priceLimit uint32, minProceeds uint64, actor string, deadline int64) (FillResult, error) {
	var res FillResult

	ctx, err := b.enter(ctx)
	if err != nil {
		return res, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkDeadline(deadline); err != nil {
		return res, err
	}
	if sizeWanted == 0 {
		return res, enginerr.New(enginerr.KindValidation, enginerr.CodeZeroAmount,
			"size is zero")
	}
	if priceLimit != 0 {
		if err := pricing.Validate(priceLimit); err != nil {
			return res, err
		}
	}
	if err := b.requireOpen(ctx, market); err != nil {
		return res, err
	}

	tx := b.begin()
	var refunds []func()
	fail := func(err error) (FillResult, error) {
		tx.rollback()
		for i := len(refunds) - 1; i >= 0; i-- {
			refunds[i]()
		}
		return FillResult{}, err
	}

	remaining := sizeWanted
	var collateralOut uint64

	// Pool leg: the bid pool's collateral principal pays for shares.
	if priceLimit != 0 {
		key := pool.Key{Market: market, Side: side, Price: priceLimit, Kind: pool.KindBid}
		if p, ok := b.pools[key]; ok && p.TotalPrincipal > 0 {
			// How many shares the pool's collateral can absorb at this
			// price, floored so the payout never exceeds principal.
			maxShares, err := fixmath.MulDiv(p.TotalPrincipal, pricing.Denom, uint64(priceLimit))
			if err != nil {
				return fail(err)
			}
			fillShares := remaining
			if maxShares < fillShares {
				fillShares = maxShares
			}
			payout, err := fixmath.MulDiv(fillShares, uint64(priceLimit), pricing.Denom)
			if err != nil {
				return fail(err)
			}
			// A fill whose floored payout is zero would take the taker's
			// shares for nothing. Leave the pool untouched and route the
			// whole remainder onward instead.
			if payout == 0 {
				fillShares = 0
			}
			if fillShares > 0 {
				// Taker's shares become the pool's proceeds; the pool's
				// collateral principal pays the taker.
				tok := shareToken(key)
				if _, err := b.vault.TransferSharesFrom(ctx, actor, EscrowAccount, tok, fillShares); err != nil {
					return fail(enginerr.New(enginerr.KindTransfer, enginerr.CodeTransferFailed, "%v", err))
				}
				refunds = append(refunds, func() {
					if _, err := b.vault.TransferSharesFrom(ctx, EscrowAccount, actor, tok, fillShares); err != nil {
						slog.Error("taker refund failed", "actor", actor, "err", err)
					}
				})

				if err := tx.pool(key).Fill(payout, fillShares); err != nil {
					return fail(err)
				}
				if b.pools[key].TotalPrincipal == 0 {
					tx.clearBit(bitmapKey(key), priceLimit)
				}

				if err := b.vault.TransferCollateral(ctx, market, EscrowAccount, actor, payout); err != nil {
					return fail(enginerr.New(enginerr.KindTransfer, enginerr.CodeTransferFailed, "%v", err))
				}
				refunds = append(refunds, func() {
					if err := b.vault.TransferCollateral(ctx, market, actor, EscrowAccount, payout); err != nil {
						slog.Error("taker refund failed", "actor", actor, "err", err)
					}
				})

				remaining -= fillShares
				collateralOut += payout
				res.PoolFilled = fillShares
				res.PoolFlow = payout
				res.SizeFilled += fillShares
				res.Sources = append(res.Sources, SourcePool)
			}
		}
	}

	// Fallback leg: sell the remaining shares.
	if remaining > 0 && b.fallback != nil {
		out, source, err := b.fallback.SellWithFallback(ctx, market, side.String(), remaining, 0, actor, deadline)
		if err != nil {
			return fail(err)
		}
		collateralOut += out
		res.FallbackOut = out
		res.SizeFilled += remaining
		res.Sources = append(res.Sources, source)
	}

	if collateralOut < minProceeds {
		return fail(enginerr.New(enginerr.KindValidation, enginerr.CodeBelowMinFill,
			"proceeds %d below minimum %d", collateralOut, minProceeds))
	}
	if res.SizeFilled == 0 {
		return fail(enginerr.New(enginerr.KindLiquidity, enginerr.CodeInsufficientBook,
			"no liquidity for %s %s at %d", market, side.String(), priceLimit))
	}

	if err := b.emit(ctx, &model.Event{
		Type:     model.EventFill,
		MarketID: market,
		Side:     side.String(),
		Kind:     pool.KindBid.String(),
		Price:    priceLimit,
		Actor:    actor,
		Amount:   res.SizeFilled,
		Proceeds: res.PoolFlow,
		Sources:  res.Sources,
	}); err != nil {
		return fail(err)
	}

	slog.Info("taker sell",
		"market", market, "side", side.String(), "price", priceLimit,
		"actor", actor, "size", res.SizeFilled, "collateral", collateralOut, "sources", res.Sources)
	return res, nil
}

func shareToken(key pool.Key) string {
	return vault.TokenID(key.Market, key.Side.String())
}
