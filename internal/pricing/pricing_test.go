package pricing

import (
	"errors"
	"testing"

	"github.com/obmx/pool-engine/internal/enginerr"
)

func TestValidate(t *testing.T) {
	for _, p := range []uint32{1, 5000, 9999} {
		if err := Validate(p); err != nil {
			t.Errorf("price %d should be valid: %v", p, err)
		}
	}
	for _, p := range []uint32{0, 10000, 65535} {
		err := Validate(p)
		if !errors.Is(err, enginerr.Validation) {
			t.Errorf("price %d should fail validation, got %v", p, err)
		}
	}
}

func TestToDecimal(t *testing.T) {
	if got := ToDecimal(5000).String(); got != "0.5" {
		t.Errorf("ToDecimal(5000) = %s, want 0.5", got)
	}
	if got := ToDecimal(1).String(); got != "0.0001" {
		t.Errorf("ToDecimal(1) = %s, want 0.0001", got)
	}
}

func TestNotional(t *testing.T) {
	if got := Notional(40, 5000).String(); got != "20" {
		t.Errorf("Notional(40, 5000) = %s, want 20", got)
	}
}
