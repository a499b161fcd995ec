package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/obmx/pool-engine/internal/model"
)

func TestMemoryStore_Markets(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	m := &model.Market{
		ID:              "mkt-1",
		CollateralToken: "col:mkt-1",
		Status:          "open",
		CreatedAt:       time.Now(),
	}
	if err := s.CreateMarket(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateMarket(ctx, m); err == nil {
		t.Error("duplicate create should fail")
	}

	got, err := s.GetMarket(ctx, "mkt-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "open" {
		t.Errorf("status = %q, want open", got.Status)
	}

	// The returned market is a copy; mutating it must not leak back.
	got.Status = "mutated"
	again, _ := s.GetMarket(ctx, "mkt-1")
	if again.Status != "open" {
		t.Error("GetMarket returned a shared pointer")
	}

	if err := s.SetMarketStatus(ctx, "mkt-1", "closed"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, _ = s.GetMarket(ctx, "mkt-1")
	if got.Status != "closed" {
		t.Errorf("status = %q, want closed", got.Status)
	}

	if _, err := s.GetMarket(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetMarketStatus(ctx, "missing", "closed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Journal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i, actor := range []string{"alice", "bob", "alice"} {
		e := &model.Event{
			ID:       string(rune('a' + i)),
			Type:     model.EventDeposit,
			MarketID: "mkt-1",
			Actor:    actor,
		}
		if err := s.AppendEvent(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	s.AppendEvent(ctx, &model.Event{ID: "d", Type: model.EventFill, MarketID: "mkt-2", Actor: "bob"})

	byMarket, err := s.EventsByMarket(ctx, "mkt-1", 0)
	if err != nil {
		t.Fatalf("by market: %v", err)
	}
	if len(byMarket) != 3 {
		t.Errorf("mkt-1 events = %d, want 3", len(byMarket))
	}

	byActor, err := s.EventsByActor(ctx, "bob", 0)
	if err != nil {
		t.Fatalf("by actor: %v", err)
	}
	if len(byActor) != 2 {
		t.Errorf("bob events = %d, want 2", len(byActor))
	}

	// Limit keeps the most recent events.
	limited, err := s.EventsByMarket(ctx, "mkt-1", 2)
	if err != nil {
		t.Fatalf("limited: %v", err)
	}
	if len(limited) != 2 || limited[0].Actor != "bob" {
		t.Errorf("limited = %+v, want last two entries", limited)
	}
}
