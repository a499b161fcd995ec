package bitmap

import "testing"

var key = Key{Market: "mkt-1", Side: 0, Kind: 0}

func TestSetClearHas(t *testing.T) {
	x := NewIndex()

	if x.Has(key, 4500) {
		t.Error("bit should start clear")
	}

	x.Set(key, 4500)
	if !x.Has(key, 4500) {
		t.Error("bit should be set")
	}

	x.Clear(key, 4500)
	if x.Has(key, 4500) {
		t.Error("bit should be clear after Clear")
	}
}

func TestKeysAreDisjoint(t *testing.T) {
	x := NewIndex()
	other := Key{Market: "mkt-1", Side: 0, Kind: 1}

	x.Set(key, 4500)
	if x.Has(other, 4500) {
		t.Error("ask and bid bitsets must be disjoint")
	}
}

func TestLowestActive(t *testing.T) {
	x := NewIndex()

	if _, ok := x.LowestActive(key); ok {
		t.Error("empty index should report no active price")
	}

	x.Set(key, 6000)
	x.Set(key, 4500)

	p, ok := x.LowestActive(key)
	if !ok || p != 4500 {
		t.Errorf("expected 4500, got %d (ok=%v)", p, ok)
	}

	// After draining 4500 the next scan moves to 6000.
	x.Clear(key, 4500)
	p, ok = x.LowestActive(key)
	if !ok || p != 6000 {
		t.Errorf("expected 6000, got %d (ok=%v)", p, ok)
	}

	x.Clear(key, 6000)
	if _, ok := x.LowestActive(key); ok {
		t.Error("fully cleared index should report no active price")
	}
}

func TestHighestActive(t *testing.T) {
	x := NewIndex()
	x.Set(key, 1)
	x.Set(key, 4500)
	x.Set(key, 9999)

	p, ok := x.HighestActive(key)
	if !ok || p != 9999 {
		t.Errorf("expected 9999, got %d (ok=%v)", p, ok)
	}

	x.Clear(key, 9999)
	p, _ = x.HighestActive(key)
	if p != 4500 {
		t.Errorf("expected 4500, got %d", p)
	}
}

func TestWordBoundaries(t *testing.T) {
	x := NewIndex()
	// Prices straddling the 64-bit word edges.
	for _, p := range []uint32{63, 64, 127, 128, 6399, 6400} {
		x.Set(key, p)
	}
	got := x.Active(key)
	want := []uint32{63, 64, 127, 128, 6399, 6400}
	if len(got) != len(want) {
		t.Fatalf("expected %d active prices, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("active[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestOutOfSpanIgnored(t *testing.T) {
	x := NewIndex()
	x.Set(key, MaxPrice+1)
	if _, ok := x.LowestActive(key); ok {
		t.Error("out-of-span set must be a no-op")
	}
	if x.Has(key, MaxPrice+1) {
		t.Error("out-of-span price can never be active")
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	x := NewIndex()
	x.Set(key, 4500)

	snap := x.Snapshot(key)
	snap.Clear(4500)
	snap.Set(7000)

	if !x.Has(key, 4500) {
		t.Error("draining a snapshot must not clear the live bit")
	}
	if x.Has(key, 7000) {
		t.Error("setting a snapshot bit must not touch the live index")
	}
}
