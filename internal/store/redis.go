package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/obmx/pool-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) SetMarketStatus(ctx context.Context, id, status string) error {
	if err := s.primary.SetMarketStatus(ctx, id, status); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) AppendEvent(ctx context.Context, e *model.Event) error {
	if err := s.primary.AppendEvent(ctx, e); err != nil {
		return err
	}
	// Invalidate the history caches the event extends.
	s.rdb.Del(ctx, marketEventsKey(e.MarketID), actorEventsKey(e.Actor))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) EventsByMarket(ctx context.Context, marketID string, limit int) ([]model.Event, error) {
	// History reads dominate; cache only the unbounded form.
	if limit != 0 {
		return s.primary.EventsByMarket(ctx, marketID, limit)
	}

	data, err := s.rdb.Get(ctx, marketEventsKey(marketID)).Bytes()
	if err == nil {
		var events []model.Event
		if json.Unmarshal(data, &events) == nil {
			return events, nil
		}
	}

	events, err := s.primary.EventsByMarket(ctx, marketID, 0)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(events); err == nil {
		s.rdb.Set(ctx, marketEventsKey(marketID), data, s.ttl)
	}
	return events, nil
}

func (s *CachedStore) EventsByActor(ctx context.Context, actor string, limit int) ([]model.Event, error) {
	if limit != 0 {
		return s.primary.EventsByActor(ctx, actor, limit)
	}

	data, err := s.rdb.Get(ctx, actorEventsKey(actor)).Bytes()
	if err == nil {
		var events []model.Event
		if json.Unmarshal(data, &events) == nil {
			return events, nil
		}
	}

	events, err := s.primary.EventsByActor(ctx, actor, 0)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(events); err == nil {
		s.rdb.Set(ctx, actorEventsKey(actor), data, s.ttl)
	}
	return events, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func marketKey(id string) string         { return fmt.Sprintf("market:%s", id) }
func marketEventsKey(id string) string   { return fmt.Sprintf("events:market:%s", id) }
func actorEventsKey(actor string) string { return fmt.Sprintf("events:actor:%s", actor) }
