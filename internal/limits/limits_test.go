package limits

import (
	"errors"
	"testing"
)

func TestCheck_WithinLimits(t *testing.T) {
	l := NewEscrowLimiter(1000, 5000)
	if err := l.Check(100, 800, 4000); err != nil {
		t.Errorf("deposit within limits rejected: %v", err)
	}
	// Exactly at the limit is allowed.
	if err := l.Check(200, 800, 4000); err != nil {
		t.Errorf("deposit at the per-pool limit rejected: %v", err)
	}
}

func TestCheck_PerPoolExceeded(t *testing.T) {
	l := NewEscrowLimiter(1000, 5000)
	err := l.Check(201, 800, 800)
	if !errors.Is(err, ErrPerPoolLimitExceeded) {
		t.Errorf("expected per-pool error, got %v", err)
	}
}

func TestCheck_PerMarketExceeded(t *testing.T) {
	l := NewEscrowLimiter(1000, 5000)
	err := l.Check(500, 100, 4800)
	if !errors.Is(err, ErrPerMarketLimitExceeded) {
		t.Errorf("expected per-market error, got %v", err)
	}
}

func TestCheck_ZeroDisables(t *testing.T) {
	l := NewEscrowLimiter(0, 0)
	if err := l.Check(1 << 40, 1<<40, 1<<40); err != nil {
		t.Errorf("zero limits should disable checks: %v", err)
	}

	var nilLimiter *EscrowLimiter
	if err := nilLimiter.Check(1, 1, 1); err != nil {
		t.Errorf("nil limiter should allow everything: %v", err)
	}
}
