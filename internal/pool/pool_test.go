package pool

import (
	"errors"
	"testing"

	"github.com/obmx/pool-engine/internal/enginerr"
	"github.com/obmx/pool-engine/internal/fixmath"
)

const priceDenom = 10000

// proceedsFor mirrors how the router prices a fill: ceil(out*price/denom).
func proceedsFor(t *testing.T, principalOut, price uint64) uint64 {
	t.Helper()
	p, err := fixmath.MulDivCeil(principalOut, price, priceDenom)
	if err != nil {
		t.Fatalf("proceeds: %v", err)
	}
	return p
}

func TestDeposit_FirstDepositorBaseline(t *testing.T) {
	var p Pool
	var pos Position

	units, err := p.Deposit(&pos, 100)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if units != 100 {
		t.Errorf("first deposit should award 1:1 units, got %d", units)
	}
	if p.TotalPrincipal != 100 || p.TotalUnits != 100 {
		t.Errorf("pool = {%d, %d}, want {100, 100}", p.TotalPrincipal, p.TotalUnits)
	}
	if pos.Debt != 0 {
		t.Errorf("fresh pool deposit should carry zero debt, got %d", pos.Debt)
	}
}

func TestDeposit_ZeroAmount(t *testing.T) {
	var p Pool
	var pos Position

	_, err := p.Deposit(&pos, 0)
	if !errors.Is(err, enginerr.Validation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDeposit_DustFloorsToZeroUnits(t *testing.T) {
	var p Pool
	var a, b Position

	p.Deposit(&a, 1000)
	// Inflate the principal-per-unit rate so a tiny deposit floors to 0.
	p.TotalPrincipal = 2000 // rate is now 2 principal per unit

	_, err := p.Deposit(&b, 1)
	if !errors.Is(err, enginerr.Validation) {
		t.Errorf("expected validation error for dust deposit, got %v", err)
	}
	if enginerr.CodeOf(err) != enginerr.CodeDustDeposit {
		t.Errorf("expected dust sub-code, got %d", enginerr.CodeOf(err))
	}
}

func TestDeposit_DrainedPoolRejected(t *testing.T) {
	var p Pool
	var a, b Position

	p.Deposit(&a, 100)
	if err := p.Fill(100, 50); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if p.TotalPrincipal != 0 {
		t.Fatalf("pool should be fully drained")
	}

	_, err := p.Deposit(&b, 100)
	if !errors.Is(err, enginerr.State) {
		t.Errorf("expected state error for drained pool, got %v", err)
	}
	if enginerr.CodeOf(err) != enginerr.CodeDrainedPool {
		t.Errorf("expected drained-pool sub-code, got %d", enginerr.CodeOf(err))
	}
}

func TestFill_EmptyPoolRejected(t *testing.T) {
	var p Pool
	err := p.Fill(0, 10)
	if !errors.Is(err, enginerr.State) {
		t.Errorf("expected state error, got %v", err)
	}
}

func TestFill_ExceedingPrincipalRejected(t *testing.T) {
	var p Pool
	var pos Position
	p.Deposit(&pos, 100)

	err := p.Fill(101, 51)
	if !errors.Is(err, enginerr.Liquidity) {
		t.Errorf("expected liquidity error, got %v", err)
	}
}

// TestScenarioA follows the reference walkthrough: deposit 100 at price
// 5000, fill 40, claim, then a second depositor joins at the drifted rate
// and must claim nothing.
func TestScenarioA(t *testing.T) {
	var p Pool
	var first, second Position

	units, err := p.Deposit(&first, 100)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if units != 100 {
		t.Fatalf("expected 100 units, got %d", units)
	}

	proceeds := proceedsFor(t, 40, 5000)
	if proceeds != 20 {
		t.Fatalf("expected 20 proceeds for 40@5000, got %d", proceeds)
	}
	if err := p.Fill(40, proceeds); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if p.TotalPrincipal != 60 {
		t.Errorf("principal = %d, want 60", p.TotalPrincipal)
	}
	wantAcc := 20 * fixmath.AccScale / 100
	if p.AccProceedsPerUnit != wantAcc {
		t.Errorf("acc = %d, want %d", p.AccProceedsPerUnit, wantAcc)
	}

	claimed, err := p.Claim(&first)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != 20 {
		t.Errorf("first depositor should claim 20, got %d", claimed)
	}

	// Second depositor joins at the 60-principal/100-unit rate.
	units, err = p.Deposit(&second, 60)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if units != 100 { // floor(60*100/60)
		t.Errorf("expected 100 units, got %d", units)
	}

	claimed, err = p.Claim(&second)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != 0 {
		t.Errorf("late joiner must claim 0 immediately after deposit, got %d", claimed)
	}
}

func TestNoLateJoinerTheft(t *testing.T) {
	var p Pool
	var early, late Position

	p.Deposit(&early, 500)
	if err := p.Fill(200, 100); err != nil {
		t.Fatalf("fill: %v", err)
	}

	// Late depositor joins after the fill.
	if _, err := p.Deposit(&late, 300); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	lateClaim, _ := p.Claim(&late)
	if lateClaim != 0 {
		t.Errorf("late joiner claimed %d from a pre-deposit fill", lateClaim)
	}

	earlyClaim, _ := p.Claim(&early)
	if earlyClaim != 100 {
		t.Errorf("early depositor should own the whole fill (100), got %d", earlyClaim)
	}

	// A fill after both deposits splits pro rata.
	if err := p.Fill(100, 80); err != nil {
		t.Fatalf("fill: %v", err)
	}
	earlyClaim, _ = p.Claim(&early)
	lateClaim, _ = p.Claim(&late)
	if earlyClaim < lateClaim {
		t.Errorf("larger stake claimed less: early=%d late=%d", earlyClaim, lateClaim)
	}
	if total := earlyClaim + lateClaim; total > 80 {
		t.Errorf("claims exceed fill proceeds: %d > 80", total)
	}
}

func TestClaim_Idempotent(t *testing.T) {
	var p Pool
	var pos Position

	p.Deposit(&pos, 100)
	p.Fill(40, 20)

	first, err := p.Claim(&pos)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first == 0 {
		t.Fatal("first claim should pay out")
	}

	second, err := p.Claim(&pos)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if second != 0 {
		t.Errorf("second claim with no fill in between should be 0, got %d", second)
	}
}

func TestWithdraw_RoundTrip(t *testing.T) {
	var p Pool
	var pos Position

	const in = 12345
	p.Deposit(&pos, in)

	userMax, err := p.UserMax(&pos)
	if err != nil {
		t.Fatalf("usermax: %v", err)
	}
	out, err := p.Withdraw(&pos, userMax)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if diff := int64(in) - int64(out); diff < -1 || diff > 1 {
		t.Errorf("round trip drift %d exceeds 1 unit (in=%d out=%d)", diff, in, out)
	}
	if pos.Units != 0 {
		t.Errorf("sole depositor full withdraw should zero units, got %d", pos.Units)
	}
}

func TestWithdraw_ZeroMeansEverything(t *testing.T) {
	var p Pool
	var pos Position
	p.Deposit(&pos, 777)

	out, err := p.Withdraw(&pos, 0)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if out != 777 {
		t.Errorf("expected full 777 out, got %d", out)
	}
}

func TestWithdraw_ExceedingUserMax(t *testing.T) {
	var p Pool
	var pos Position
	p.Deposit(&pos, 100)

	_, err := p.Withdraw(&pos, 101)
	if !errors.Is(err, enginerr.Validation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if enginerr.CodeOf(err) != enginerr.CodeExceedsUserMax {
		t.Errorf("expected exceeds-max sub-code, got %d", enginerr.CodeOf(err))
	}
}

func TestWithdraw_KeepsProceedsOnRemainingUnits(t *testing.T) {
	var p Pool
	var pos Position

	p.Deposit(&pos, 100)
	p.Fill(40, 20) // 20 proceeds accrued, unclaimed

	// Withdraw half the remaining principal: burns ceil(30*100/60) = 50
	// of the 100 units. Proceeds stay attached to the 50 units that
	// remain; proceeds on burned units must be claimed before withdrawing.
	if _, err := p.Withdraw(&pos, 30); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if pos.Units != 50 {
		t.Fatalf("units = %d, want 50", pos.Units)
	}

	claimed, _ := p.Claim(&pos)
	if claimed != 10 {
		t.Errorf("remaining units carry half the proceeds, claimed %d want 10", claimed)
	}
}

func TestWithdraw_AfterClaimLosesNothing(t *testing.T) {
	var p Pool
	var pos Position

	p.Deposit(&pos, 100)
	p.Fill(40, 20)

	claimed, _ := p.Claim(&pos)
	out, err := p.Withdraw(&pos, 0)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if claimed+out != 80 {
		t.Errorf("claim+withdraw = %d, want 80 (20 proceeds + 60 principal)", claimed+out)
	}
}

func TestSolvency_UnitsAlwaysReconcile(t *testing.T) {
	var p Pool
	positions := make([]Position, 4)

	deposits := []uint64{1000, 333, 4567, 89}
	for i, amt := range deposits {
		if _, err := p.Deposit(&positions[i], amt); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	p.Fill(500, 260)
	p.Withdraw(&positions[1], 0)
	p.Fill(700, 365)
	p.Withdraw(&positions[3], 10)

	var sum uint64
	for i := range positions {
		sum += positions[i].Units
	}
	if sum != p.TotalUnits {
		t.Errorf("unit solvency broken: positions sum %d, pool %d", sum, p.TotalUnits)
	}
}

func TestPending_MatchesClaimWithoutMutating(t *testing.T) {
	var p Pool
	var pos Position

	p.Deposit(&pos, 100)
	p.Fill(10, 5)

	pending, err := p.Pending(&pos)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	claimed, _ := p.Claim(&pos)
	if pending != claimed {
		t.Errorf("pending %d != claimed %d", pending, claimed)
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide("YES"); err != nil || s != SideYes {
		t.Errorf("ParseSide(YES) = %v, %v", s, err)
	}
	if s, err := ParseSide("NO"); err != nil || s != SideNo {
		t.Errorf("ParseSide(NO) = %v, %v", s, err)
	}
	if _, err := ParseSide("MAYBE"); !errors.Is(err, enginerr.Validation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
