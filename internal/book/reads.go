package book

import (
	"github.com/obmx/pool-engine/internal/model"
	"github.com/obmx/pool-engine/internal/pool"
	"github.com/obmx/pool-engine/internal/pricing"
)

// BestAsk returns the lowest-priced ask pool of (market, side) with
// live principal. Bitmap hits are re-validated against the pool before
// being trusted; stale bits are skipped in the local copy.
func (b *Book) BestAsk(market string, side pool.Side) (price uint32, depth uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bestLevel(market, side, pool.KindAsk, false)
}

// BestBid returns the highest-priced bid pool of (market, side) with
// live principal.
func (b *Book) BestBid(market string, side pool.Side) (price uint32, depth uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bestLevel(market, side, pool.KindBid, true)
}

func (b *Book) bestLevel(market string, side pool.Side, kind pool.Kind, highest bool) (uint32, uint64, bool) {
	words := b.index.Snapshot(bitmapKey(pool.Key{Market: market, Side: side, Kind: kind}))
	for {
		var price uint32
		var ok bool
		if highest {
			price, ok = words.HighestActive()
		} else {
			price, ok = words.LowestActive()
		}
		if !ok {
			return 0, 0, false
		}
		words.Clear(price)

		p, exists := b.pools[pool.Key{Market: market, Side: side, Price: price, Kind: kind}]
		if exists && p.TotalPrincipal > 0 {
			return price, p.TotalPrincipal, true
		}
	}
}

// Depth returns every live price level of (market, side, kind) with its
// principal, in ascending price order.
func (b *Book) Depth(market string, side pool.Side, kind pool.Kind) []model.DepthLevel {
	b.mu.Lock()
	defer b.mu.Unlock()

	var levels []model.DepthLevel
	key := bitmapKey(pool.Key{Market: market, Side: side, Kind: kind})
	for _, price := range b.index.Active(key) {
		p, ok := b.pools[pool.Key{Market: market, Side: side, Price: price, Kind: kind}]
		if !ok || p.TotalPrincipal == 0 {
			continue
		}
		levels = append(levels, model.DepthLevel{
			Price:        price,
			PriceDecimal: pricing.ToDecimal(uint64(price)),
			Principal:    p.TotalPrincipal,
		})
	}
	return levels
}

// DepthAt returns the live principal at one exact pool, which may be
// zero. Principal reads always come from the pool, never the bitmap.
func (b *Book) DepthAt(market string, side pool.Side, price uint32, kind pool.Kind) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pools[pool.Key{Market: market, Side: side, Price: price, Kind: kind}]; ok {
		return p.TotalPrincipal
	}
	return 0
}

// UserPositions returns actor's positions across every pool they have
// ever touched in market, including positions at zero units.
func (b *Book) UserPositions(market, actor string) []model.PositionView {
	b.mu.Lock()
	defer b.mu.Unlock()

	var views []model.PositionView
	for _, key := range b.userPools[actor] {
		if key.Market != market {
			continue
		}
		p := b.pools[key]
		pos := b.positions[positionKey{pool: key, actor: actor}]
		if p == nil || pos == nil {
			continue
		}

		userMax, err := p.UserMax(pos)
		if err != nil {
			continue
		}
		pending, err := p.Pending(pos)
		if err != nil {
			continue
		}

		views = append(views, model.PositionView{
			MarketID:        key.Market,
			Side:            key.Side.String(),
			Kind:            key.Kind.String(),
			Price:           key.Price,
			Actor:           actor,
			Units:           pos.Units,
			WithdrawableMax: userMax,
			PendingProceeds: pending,
			NotionalValue:   pricing.Notional(userMax, uint64(key.Price)),
		})
	}
	return views
}
