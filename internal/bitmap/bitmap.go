// Package bitmap implements the sparse price-level existence index.
//
// One bitset per (market, side, pool-kind) key covers the discrete price
// domain: a set bit means the pool at that price currently holds non-zero
// principal. The index only accelerates best-price discovery and depth
// enumeration; principal truth always lives in the pool itself, and scan
// results must be re-validated against it.
package bitmap

import "math/bits"

const (
	// WordCount * 64 bits spans prices 0..10239. Valid prices are the
	// open interval (0, 10000); callers enforce the range, not the index.
	WordCount = 160

	// MaxPrice is the highest representable price slot.
	MaxPrice = WordCount*64 - 1
)

// Words is one key's packed bitset. It is a value type so the quote
// engine can take a snapshot and drain it locally without touching the
// live index.
type Words [WordCount]uint64

// Set marks price as active. Prices beyond the span are ignored.
func (w *Words) Set(price uint32) {
	if price > MaxPrice {
		return
	}
	w[price>>6] |= 1 << (price & 63)
}

// Clear marks price as inactive.
func (w *Words) Clear(price uint32) {
	if price > MaxPrice {
		return
	}
	w[price>>6] &^= 1 << (price & 63)
}

// Has reports whether price is marked active.
func (w *Words) Has(price uint32) bool {
	if price > MaxPrice {
		return false
	}
	return w[price>>6]&(1<<(price&63)) != 0
}

// LowestActive returns the lowest active price (best ask order).
// The second result is false when no bit is set.
func (w *Words) LowestActive() (uint32, bool) {
	for i := 0; i < WordCount; i++ {
		if w[i] != 0 {
			return uint32(i<<6 + bits.TrailingZeros64(w[i])), true
		}
	}
	return 0, false
}

// HighestActive returns the highest active price (best bid order).
func (w *Words) HighestActive() (uint32, bool) {
	for i := WordCount - 1; i >= 0; i-- {
		if w[i] != 0 {
			return uint32(i<<6 + 63 - bits.LeadingZeros64(w[i])), true
		}
	}
	return 0, false
}

// Active returns every set price in ascending order. Used for depth
// enumeration; cost is proportional to the number of set bits plus the
// fixed word walk.
func (w *Words) Active() []uint32 {
	var prices []uint32
	for i := 0; i < WordCount; i++ {
		word := w[i]
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			prices = append(prices, uint32(i<<6+bit))
			word &^= 1 << bit
		}
	}
	return prices
}

// Key addresses one bitset: a market's ask pools and bid pools on each
// outcome side are disjoint price spaces.
type Key struct {
	Market string
	Side   uint8
	Kind   uint8
}

// Index holds the per-key bitsets. Zero-valued keys simply have no words
// allocated; an absent entry scans as empty.
type Index struct {
	words map[Key]*Words
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{words: make(map[Key]*Words)}
}

// Set marks price active for key, allocating the bitset on first use.
func (x *Index) Set(key Key, price uint32) {
	w, ok := x.words[key]
	if !ok {
		w = &Words{}
		x.words[key] = w
	}
	w.Set(price)
}

// Clear marks price inactive for key.
func (x *Index) Clear(key Key, price uint32) {
	if w, ok := x.words[key]; ok {
		w.Clear(price)
	}
}

// Has reports whether price is active for key.
func (x *Index) Has(key Key, price uint32) bool {
	w, ok := x.words[key]
	return ok && w.Has(price)
}

// LowestActive scans ascending for the first active price under key.
func (x *Index) LowestActive(key Key) (uint32, bool) {
	if w, ok := x.words[key]; ok {
		return w.LowestActive()
	}
	return 0, false
}

// HighestActive scans descending for the last active price under key.
func (x *Index) HighestActive(key Key) (uint32, bool) {
	if w, ok := x.words[key]; ok {
		return w.HighestActive()
	}
	return 0, false
}

// Active returns all active prices under key in ascending order.
func (x *Index) Active(key Key) []uint32 {
	if w, ok := x.words[key]; ok {
		return w.Active()
	}
	return nil
}

// Snapshot returns a copy of key's bitset that the caller may drain
// freely. Mutating the snapshot never affects the live index.
func (x *Index) Snapshot(key Key) Words {
	if w, ok := x.words[key]; ok {
		return *w
	}
	return Words{}
}

// Word returns the raw word at idx for key. Used by the engine's undo log
// to snapshot exactly the words a request touches.
func (x *Index) Word(key Key, idx int) uint64 {
	if w, ok := x.words[key]; ok {
		return w[idx]
	}
	return 0
}

// SetWord restores a raw word for key, allocating the bitset if needed.
func (x *Index) SetWord(key Key, idx int, word uint64) {
	w, ok := x.words[key]
	if !ok {
		w = &Words{}
		x.words[key] = w
	}
	w[idx] = word
}
