package book

import (
	"context"
	"log/slog"

	"github.com/obmx/pool-engine/internal/enginerr"
	"github.com/obmx/pool-engine/internal/model"
	"github.com/obmx/pool-engine/internal/pool"
	"github.com/obmx/pool-engine/internal/pricing"
	"github.com/obmx/pool-engine/internal/vault"
)

type reentrancyMarker struct{}

// enter rejects nested mutating calls within one request. The marker
// travels in the context, so a fallback collaborator calling back into
// a mutating entry point on the same request fails with a Reentrancy
// error instead of deadlocking on the serializer.
func (b *Book) enter(ctx context.Context) (context.Context, error) {
	if ctx.Value(reentrancyMarker{}) != nil {
		return nil, enginerr.New(enginerr.KindReentrancy, enginerr.CodeReentered,
			"nested mutating call rejected")
	}
	return context.WithValue(ctx, reentrancyMarker{}, struct{}{}), nil
}

// checkDeadline validates a caller-supplied unix-seconds deadline once
// at entry. Zero is treated as "now", which always passes.
func (b *Book) checkDeadline(deadline int64) error {
	now := b.now().Unix()
	if deadline == 0 {
		deadline = now
	}
	if now > deadline {
		return enginerr.New(enginerr.KindTiming, enginerr.CodeDeadlinePassed,
			"deadline %d already passed at %d", deadline, now)
	}
	return nil
}

func (b *Book) requireOpen(ctx context.Context, market string) error {
	if !b.vault.IsMarketOpen(ctx, market) {
		return enginerr.New(enginerr.KindState, enginerr.CodeMarketClosed,
			"market %s is not open", market)
	}
	return nil
}

// escrowIn returns the transfer and refund closures moving a pool's
// principal between actor and engine escrow: shares for ask pools,
// collateral for bid pools.
func (b *Book) escrowIn(ctx context.Context, key pool.Key, actor string, amount uint64) (func() error, func()) {
	if key.Kind == pool.KindAsk {
		token := vault.TokenID(key.Market, key.Side.String())
		return func() error {
				ok, err := b.vault.TransferSharesFrom(ctx, actor, EscrowAccount, token, amount)
				return transferResult(ok, err)
			}, func() {
				if _, err := b.vault.TransferSharesFrom(ctx, EscrowAccount, actor, token, amount); err != nil {
					slog.Error("escrow refund failed", "actor", actor, "token", token, "err", err)
				}
			}
	}
	return func() error {
			return b.vault.TransferCollateral(ctx, key.Market, actor, EscrowAccount, amount)
		}, func() {
			if err := b.vault.TransferCollateral(ctx, key.Market, EscrowAccount, actor, amount); err != nil {
				slog.Error("escrow refund failed", "actor", actor, "market", key.Market, "err", err)
			}
		}
}

// payOutPrincipal returns the transfer and reclaim closures moving pool
// principal from escrow back to actor. The reclaim closure runs when a
// later step of the same request fails, pulling the payout back so the
// ledger rollback and the vault stay in step.
func (b *Book) payOutPrincipal(ctx context.Context, key pool.Key, actor string, amount uint64) (func() error, func()) {
	if key.Kind == pool.KindAsk {
		token := vault.TokenID(key.Market, key.Side.String())
		return func() error {
				ok, err := b.vault.TransferShares(ctx, actor, token, amount)
				return transferResult(ok, err)
			}, func() {
				if _, err := b.vault.TransferSharesFrom(ctx, actor, EscrowAccount, token, amount); err != nil {
					slog.Error("payout reclaim failed", "actor", actor, "token", token, "err", err)
				}
			}
	}
	return func() error {
			return b.vault.TransferCollateral(ctx, key.Market, EscrowAccount, actor, amount)
		}, func() {
			if err := b.vault.TransferCollateral(ctx, key.Market, actor, EscrowAccount, amount); err != nil {
				slog.Error("payout reclaim failed", "actor", actor, "market", key.Market, "err", err)
			}
		}
}

// payOutProceeds returns the transfer and reclaim closures moving accrued
// proceeds from escrow to actor: collateral for ask pools, shares for bid
// pools.
func (b *Book) payOutProceeds(ctx context.Context, key pool.Key, actor string, amount uint64) (func() error, func()) {
	if key.Kind == pool.KindAsk {
		return func() error {
				return b.vault.TransferCollateral(ctx, key.Market, EscrowAccount, actor, amount)
			}, func() {
				if err := b.vault.TransferCollateral(ctx, key.Market, actor, EscrowAccount, amount); err != nil {
					slog.Error("payout reclaim failed", "actor", actor, "market", key.Market, "err", err)
				}
			}
	}
	token := vault.TokenID(key.Market, key.Side.String())
	return func() error {
			ok, err := b.vault.TransferShares(ctx, actor, token, amount)
			return transferResult(ok, err)
		}, func() {
			if _, err := b.vault.TransferSharesFrom(ctx, actor, EscrowAccount, token, amount); err != nil {
				slog.Error("payout reclaim failed", "actor", actor, "token", token, "err", err)
			}
		}
}

func transferResult(ok bool, err error) error {
	if err != nil {
		return enginerr.New(enginerr.KindTransfer, enginerr.CodeTransferFailed, "%v", err)
	}
	if !ok {
		return enginerr.New(enginerr.KindTransfer, enginerr.CodeTransferFailed,
			"share transfer returned false")
	}
	return nil
}

// escrowed sums actor's withdrawable principal at one pool and across
// all same-kind pools of the market, for the deposit limiter.
func (b *Book) escrowed(key pool.Key, actor string) (inPool, inMarket uint64) {
	for _, k := range b.userPools[actor] {
		if k.Market != key.Market || k.Kind != key.Kind {
			continue
		}
		p, ok := b.pools[k]
		if !ok {
			continue
		}
		pos := b.positions[positionKey{pool: k, actor: actor}]
		if pos == nil {
			continue
		}
		max, err := p.UserMax(pos)
		if err != nil {
			continue
		}
		inMarket += max
		if k == key {
			inPool = max
		}
	}
	return inPool, inMarket
}

// Deposit escrows amount principal into the pool at (market, side,
// price, kind) and awards ownership units to actor. The pool is created
// implicitly on first deposit; the price bit is set when the pool leaves
// the empty state.
func (b *Book) Deposit(ctx context.Context, market string, side pool.Side, price uint32, kind pool.Kind, actor string, amount uint64) (uint64, error) {
	ctx, err := b.enter(ctx)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := pricing.Validate(price); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, enginerr.New(enginerr.KindValidation, enginerr.CodeZeroAmount,
			"deposit amount is zero")
	}
	if err := b.requireOpen(ctx, market); err != nil {
		return 0, err
	}

	key := pool.Key{Market: market, Side: side, Price: price, Kind: kind}

	inPool, inMarket := b.escrowed(key, actor)
	if err := b.limiter.Check(amount, inPool, inMarket); err != nil {
		return 0, enginerr.New(enginerr.KindValidation, enginerr.CodeEscrowLimit, "%v", err)
	}

	transfer, refund := b.escrowIn(ctx, key, actor, amount)
	if err := transfer(); err != nil {
		return 0, err
	}

	tx := b.begin()
	p := tx.pool(key)
	pos := tx.position(key, actor)

	wasEmpty := p.TotalPrincipal == 0
	units, err := p.Deposit(pos, amount)
	if err != nil {
		tx.rollback()
		refund()
		return 0, err
	}
	if wasEmpty {
		tx.setBit(bitmapKey(key), price)
	}

	if err := b.emit(ctx, &model.Event{
		Type:     model.EventDeposit,
		MarketID: market,
		Side:     side.String(),
		Kind:     kind.String(),
		Price:    price,
		Actor:    actor,
		Amount:   amount,
	}); err != nil {
		tx.rollback()
		refund()
		return 0, err
	}

	slog.Info("deposit",
		"market", market, "side", side.String(), "kind", kind.String(),
		"price", price, "actor", actor, "amount", amount, "units", units)
	return units, nil
}

// Claim pays out actor's accrued proceeds at one pool: collateral from
// an ask pool, shares from a bid pool. A zero claim is a silent no-op.
func (b *Book) Claim(ctx context.Context, market string, side pool.Side, price uint32, kind pool.Kind, actor string) (uint64, error) {
	ctx, err := b.enter(ctx)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := pricing.Validate(price); err != nil {
		return 0, err
	}

	key := pool.Key{Market: market, Side: side, Price: price, Kind: kind}

	tx := b.begin()
	p := tx.pool(key)
	pos := tx.position(key, actor)

	proceeds, err := p.Claim(pos)
	if err != nil {
		tx.rollback()
		return 0, err
	}
	if proceeds == 0 {
		// Idempotent no-op: nothing moved, nothing recorded.
		return 0, nil
	}

	pay, reclaim := b.payOutProceeds(ctx, key, actor, proceeds)
	if err := pay(); err != nil {
		tx.rollback()
		return 0, err
	}

	if err := b.emit(ctx, &model.Event{
		Type:     model.EventClaim,
		MarketID: market,
		Side:     side.String(),
		Kind:     kind.String(),
		Price:    price,
		Actor:    actor,
		Amount:   proceeds,
	}); err != nil {
		tx.rollback()
		reclaim()
		return 0, err
	}

	slog.Info("claim",
		"market", market, "side", side.String(), "kind", kind.String(),
		"price", price, "actor", actor, "proceeds", proceeds)
	return proceeds, nil
}

// Withdraw returns undrained principal to actor, burning units. An
// amount of zero withdraws everything withdrawable. The price bit is
// cleared when the withdrawal drains the pool.
func (b *Book) Withdraw(ctx context.Context, market string, side pool.Side, price uint32, kind pool.Kind, actor string, amount uint64) (uint64, error) {
	ctx, err := b.enter(ctx)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := pricing.Validate(price); err != nil {
		return 0, err
	}

	key := pool.Key{Market: market, Side: side, Price: price, Kind: kind}

	tx := b.begin()
	p := tx.pool(key)
	pos := tx.position(key, actor)

	principalOut, err := p.Withdraw(pos, amount)
	if err != nil {
		tx.rollback()
		return 0, err
	}
	if p.TotalPrincipal == 0 {
		tx.clearBit(bitmapKey(key), price)
	}

	pay, reclaim := b.payOutPrincipal(ctx, key, actor, principalOut)
	if err := pay(); err != nil {
		tx.rollback()
		return 0, err
	}

	if err := b.emit(ctx, &model.Event{
		Type:     model.EventWithdraw,
		MarketID: market,
		Side:     side.String(),
		Kind:     kind.String(),
		Price:    price,
		Actor:    actor,
		Amount:   principalOut,
	}); err != nil {
		tx.rollback()
		reclaim()
		return 0, err
	}

	slog.Info("withdraw",
		"market", market, "side", side.String(), "kind", kind.String(),
		"price", price, "actor", actor, "principal", principalOut)
	return principalOut, nil
}
