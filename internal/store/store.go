// Package store defines the persistence interface for the pool engine.
// Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
//
// Persistence is an event journal plus a market registry: the engine's
// live ledger stays in memory, and the journal is the durable record
// indexers and the history API rebuild views from.
package store

import (
	"context"
	"errors"

	"github.com/obmx/pool-engine/internal/model"
)

// ErrNotFound is returned when a market lookup misses.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Market registry ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// SetMarketStatus updates a market's lifecycle status.
	SetMarketStatus(ctx context.Context, id, status string) error

	// --- Immutable event journal ---

	// AppendEvent appends an immutable ledger event.
	AppendEvent(ctx context.Context, e *model.Event) error

	// EventsByMarket returns a market's events in append order.
	EventsByMarket(ctx context.Context, marketID string, limit int) ([]model.Event, error)

	// EventsByActor returns an actor's events in append order.
	EventsByActor(ctx context.Context, actor string, limit int) ([]model.Event, error)
}
