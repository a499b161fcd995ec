package book

import (
	"github.com/obmx/pool-engine/internal/fixmath"
	"github.com/obmx/pool-engine/internal/pool"
	"github.com/obmx/pool-engine/internal/pricing"
)

// Quote is the result of a simulated marginal fill.
type Quote struct {
	// SizeOut is the shares a buy would obtain, or the shares a sell
	// would place.
	SizeOut uint64

	// TotalFlow is the collateral spent (buy) or received (sell).
	TotalFlow uint64

	// AvgPrice is the volume-weighted execution price in the integer
	// encoding: floor(TotalFlow * Denom / SizeOut). Zero when nothing
	// fills.
	AvgPrice uint64

	// LevelsTouched counts the price levels the walk consumed.
	LevelsTouched int
}

// QuoteBuy simulates spending budget collateral against the ask pools
// of (market, side), cheapest level first. The walk drains a snapshot
// of the bitmap, never the live index, and reads pool depth without
// mutating it: the call is side-effect-free and safe to repeat.
func (b *Book) QuoteBuy(market string, side pool.Side, budget uint64) (Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var q Quote
	key := bitmapKey(pool.Key{Market: market, Side: side, Kind: pool.KindAsk})
	words := b.index.Snapshot(key)
	remaining := budget

	for remaining > 0 {
		price, ok := words.LowestActive()
		if !ok {
			break
		}
		words.Clear(price)

		p, ok := b.pools[pool.Key{Market: market, Side: side, Price: price, Kind: pool.KindAsk}]
		if !ok || p.TotalPrincipal == 0 {
			continue // stale bit in the local copy; principal is truth
		}

		costFull, err := fixmath.MulDivCeil(p.TotalPrincipal, uint64(price), pricing.Denom)
		if err != nil {
			return Quote{}, err
		}

		if costFull <= remaining {
			remaining -= costFull
			q.SizeOut += p.TotalPrincipal
			q.TotalFlow += costFull
			q.LevelsTouched++
			continue
		}

		// Partial drain of the marginal level.
		shares, err := fixmath.MulDiv(remaining, pricing.Denom, uint64(price))
		if err != nil {
			return Quote{}, err
		}
		if shares > 0 {
			cost, err := fixmath.MulDivCeil(shares, uint64(price), pricing.Denom)
			if err != nil {
				return Quote{}, err
			}
			q.SizeOut += shares
			q.TotalFlow += cost
			q.LevelsTouched++
		}
		break
	}

	if q.SizeOut > 0 {
		avg, err := fixmath.MulDiv(q.TotalFlow, pricing.Denom, q.SizeOut)
		if err != nil {
			return Quote{}, err
		}
		q.AvgPrice = avg
	}
	return q, nil
}

// QuoteSell simulates selling size shares into the bid pools of
// (market, side), best (highest) bid first. Side-effect-free.
func (b *Book) QuoteSell(market string, side pool.Side, size uint64) (Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var q Quote
	key := bitmapKey(pool.Key{Market: market, Side: side, Kind: pool.KindBid})
	words := b.index.Snapshot(key)
	remaining := size

	for remaining > 0 {
		price, ok := words.HighestActive()
		if !ok {
			break
		}
		words.Clear(price)

		p, ok := b.pools[pool.Key{Market: market, Side: side, Price: price, Kind: pool.KindBid}]
		if !ok || p.TotalPrincipal == 0 {
			continue
		}

		// Shares this level's collateral can absorb at its price.
		maxShares, err := fixmath.MulDiv(p.TotalPrincipal, pricing.Denom, uint64(price))
		if err != nil {
			return Quote{}, err
		}
		take := remaining
		if maxShares < take {
			take = maxShares
		}
		if take == 0 {
			continue
		}
		payout, err := fixmath.MulDiv(take, uint64(price), pricing.Denom)
		if err != nil {
			return Quote{}, err
		}

		remaining -= take
		q.SizeOut += take
		q.TotalFlow += payout
		q.LevelsTouched++
	}

	if q.SizeOut > 0 {
		avg, err := fixmath.MulDiv(q.TotalFlow, pricing.Denom, q.SizeOut)
		if err != nil {
			return Quote{}, err
		}
		q.AvgPrice = avg
	}
	return q, nil
}
