// Package book implements the pooled limit-order engine: the pool and
// position repositories, the price bitmap index, taker routing across
// pool and fallback liquidity, and the read-only quote and depth views.
//
// Execution is serialized: every entry point runs under one mutex, so a
// request observes and mutates the ledger atomically. Mutating entry
// points additionally run inside an undo-log transaction: any error
// restores every pool, position and bitmap word the request touched, so
// partial commits are never observable.
package book

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obmx/pool-engine/internal/bitmap"
	"github.com/obmx/pool-engine/internal/enginerr"
	"github.com/obmx/pool-engine/internal/limits"
	"github.com/obmx/pool-engine/internal/model"
	"github.com/obmx/pool-engine/internal/pool"
	"github.com/obmx/pool-engine/internal/pricing"
	"github.com/obmx/pool-engine/internal/vault"
)

// EscrowAccount is the engine-side escrow account all pool principal and
// proceeds pass through.
const EscrowAccount = "engine"

// SourcePool is the source tag for liquidity served from a resting pool.
const SourcePool = "POOL"

// EventSink receives the engine's durable event stream.
type EventSink interface {
	Append(ctx context.Context, e *model.Event) error
}

// EventSinkFunc adapts a function to an EventSink.
type EventSinkFunc func(ctx context.Context, e *model.Event) error

// Append calls f.
func (f EventSinkFunc) Append(ctx context.Context, e *model.Event) error {
	return f(ctx, e)
}

type positionKey struct {
	pool  pool.Key
	actor string
}

// Book owns the engine state. All entry points serialize on mu; nothing
// here is safe for direct concurrent use.
type Book struct {
	mu sync.Mutex

	pools     map[pool.Key]*pool.Pool
	positions map[positionKey]*pool.Position

	// userPools remembers every pool an actor has ever touched, for
	// batch position lookups. Entries are never removed: positions
	// persist at zero units.
	userPools map[string][]pool.Key

	index    *bitmap.Index
	vault    vault.Vault
	fallback vault.FallbackRouter
	limiter  *limits.EscrowLimiter
	events   EventSink

	now func() time.Time
}

// Option configures a Book.
type Option func(*Book)

// WithLimiter installs deposit escrow caps.
func WithLimiter(l *limits.EscrowLimiter) Option {
	return func(b *Book) { b.limiter = l }
}

// WithClock overrides the time source. Tests use this to pin deadlines.
func WithClock(now func() time.Time) Option {
	return func(b *Book) { b.now = now }
}

// New creates an empty book wired to its external collaborators.
// sink may be nil, in which case events are dropped.
func New(v vault.Vault, fb vault.FallbackRouter, sink EventSink, opts ...Option) *Book {
	b := &Book{
		pools:     make(map[pool.Key]*pool.Pool),
		positions: make(map[positionKey]*pool.Position),
		userPools: make(map[string][]pool.Key),
		index:     bitmap.NewIndex(),
		vault:     v,
		fallback:  fb,
		events:    sink,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// bitmapKey maps a pool identity onto its bitmap keyspace. Price is not
// part of the key: it is the bit position.
func bitmapKey(k pool.Key) bitmap.Key {
	return bitmap.Key{Market: k.Market, Side: uint8(k.Side), Kind: uint8(k.Kind)}
}

// getPool returns the pool at key, creating it on first use. Pools are
// never deleted; a drained and withdrawn pool sits at the zero state.
func (b *Book) getPool(key pool.Key) *pool.Pool {
	p, ok := b.pools[key]
	if !ok {
		p = &pool.Pool{}
		b.pools[key] = p
	}
	return p
}

// getPosition returns actor's position at key, creating it on first use.
func (b *Book) getPosition(key pool.Key, actor string) *pool.Position {
	pk := positionKey{pool: key, actor: actor}
	pos, ok := b.positions[pk]
	if !ok {
		pos = &pool.Position{}
		b.positions[pk] = pos
		b.userPools[actor] = append(b.userPools[actor], key)
	}
	return pos
}

func (b *Book) emit(ctx context.Context, e *model.Event) error {
	if b.events == nil {
		return nil
	}
	e.ID = uuid.New().String()
	e.PriceDecimal = pricing.ToDecimal(uint64(e.Price))
	e.Timestamp = b.now().UTC()
	if err := b.events.Append(ctx, e); err != nil {
		slog.Error("event append failed", "type", e.Type, "market", e.MarketID, "err", err)
		return enginerr.New(enginerr.KindTransfer, enginerr.CodeTransferFailed,
			"event journal append failed: %v", err)
	}
	return nil
}

// --- undo-log transaction ---

type wordRef struct {
	key bitmap.Key
	idx int
}

// txn snapshots ledger state before the first mutation of each record in
// one request. rollback restores every snapshot; commit discards them.
// Vault-side movements are compensated separately (see refund closures
// at the call sites) because the vault is an external collaborator.
type txn struct {
	b *Book

	pools        map[pool.Key]pool.Pool
	poolsNew     map[pool.Key]bool
	positions    map[positionKey]pool.Position
	positionsNew map[positionKey]bool
	userLens     map[string]int
	words        map[wordRef]uint64
}

func (b *Book) begin() *txn {
	return &txn{
		b:            b,
		pools:        make(map[pool.Key]pool.Pool),
		poolsNew:     make(map[pool.Key]bool),
		positions:    make(map[positionKey]pool.Position),
		positionsNew: make(map[positionKey]bool),
		userLens:     make(map[string]int),
		words:        make(map[wordRef]uint64),
	}
}

// pool fetches a pool for mutation, snapshotting it on first touch.
func (t *txn) pool(key pool.Key) *pool.Pool {
	if _, seen := t.pools[key]; !seen {
		if existing, ok := t.b.pools[key]; ok {
			t.pools[key] = *existing
		} else {
			t.poolsNew[key] = true
			t.pools[key] = pool.Pool{}
		}
	}
	return t.b.getPool(key)
}

// position fetches a position for mutation, snapshotting it on first touch.
func (t *txn) position(key pool.Key, actor string) *pool.Position {
	pk := positionKey{pool: key, actor: actor}
	if _, seen := t.positions[pk]; !seen {
		if existing, ok := t.b.positions[pk]; ok {
			t.positions[pk] = *existing
		} else {
			t.positionsNew[pk] = true
			t.positions[pk] = pool.Position{}
			if _, tracked := t.userLens[actor]; !tracked {
				t.userLens[actor] = len(t.b.userPools[actor])
			}
		}
	}
	return t.b.getPosition(key, actor)
}

func (t *txn) touchWord(key bitmap.Key, price uint32) {
	ref := wordRef{key: key, idx: int(price >> 6)}
	if _, seen := t.words[ref]; !seen {
		t.words[ref] = t.b.index.Word(key, ref.idx)
	}
}

func (t *txn) setBit(key bitmap.Key, price uint32) {
	t.touchWord(key, price)
	t.b.index.Set(key, price)
}

func (t *txn) clearBit(key bitmap.Key, price uint32) {
	t.touchWord(key, price)
	t.b.index.Clear(key, price)
}

func (t *txn) rollback() {
	for key, snap := range t.pools {
		if t.poolsNew[key] {
			delete(t.b.pools, key)
			continue
		}
		*t.b.pools[key] = snap
	}
	for pk, snap := range t.positions {
		if t.positionsNew[pk] {
			delete(t.b.positions, pk)
			continue
		}
		*t.b.positions[pk] = snap
	}
	for actor, n := range t.userLens {
		t.b.userPools[actor] = t.b.userPools[actor][:n]
	}
	for ref, word := range t.words {
		t.b.index.SetWord(ref.key, ref.idx, word)
	}
}
