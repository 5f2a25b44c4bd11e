package lending

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"lumenlend/core/events"
)

const (
	t0 = uint64(1_700_000_000)
	// Two years at the 5% fallback rate yields exactly 10% simple interest.
	twoYears = uint64(2 * secondsPerYear)
)

func TestAccrueAllocatesProportionalShare(t *testing.T) {
	f := newFixture(t, testParams())
	f.seedLedger(t, big.NewInt(1_000_000), t0)
	f.seedPosition(t, "bob", big.NewInt(10_000), big.NewInt(0), t0)

	f.engine.SetTimestamp(t0 + twoYears)
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	led := f.ledger(t)
	equalBig(t, led.TotalBorrows, "1100000", "TotalBorrows")
	equalBig(t, led.TotalBorrowsBeforeAccrual, "1000000", "TotalBorrowsBeforeAccrual")
	equalBig(t, led.LastInterestAccrued, "100000", "LastInterestAccrued")
	equalBig(t, led.ProtocolReserves, "10000", "ProtocolReserves")

	// 10000/1000000 of the 100000 global charge.
	pos := f.position(t, "bob")
	equalBig(t, pos.AccruedInterest, "1000", "bob interest")
	if pos.LastAccrualTime != t0+twoYears {
		t.Fatalf("LastAccrualTime = %d, want %d", pos.LastAccrualTime, t0+twoYears)
	}

	// Supplier share minted to the sink and received.
	if len(f.authority.mints) != 1 || f.authority.mints[0].account != "yield-pool" {
		t.Fatalf("unexpected mints: %+v", f.authority.mints)
	}
	equalBig(t, f.authority.mints[0].amount, "90000", "minted supplier share")
	if len(f.yield.received) != 1 {
		t.Fatalf("yield sink received %d transfers, want 1", len(f.yield.received))
	}
}

func TestAccrueIdempotentPerTimestamp(t *testing.T) {
	f := newFixture(t, testParams())
	f.seedLedger(t, big.NewInt(1_000_000), t0)
	f.seedPosition(t, "bob", big.NewInt(10_000), big.NewInt(0), t0)

	f.engine.SetTimestamp(t0 + twoYears)
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("first accrue: %v", err)
	}
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("second accrue: %v", err)
	}

	led := f.ledger(t)
	equalBig(t, led.TotalBorrows, "1100000", "TotalBorrows after repeat")
	equalBig(t, f.position(t, "bob").AccruedInterest, "1000", "bob interest after repeat")
}

func TestAccrueSecondAccountSharesSameCharge(t *testing.T) {
	f := newFixture(t, testParams())
	f.seedLedger(t, big.NewInt(1_000_000), t0)
	f.seedPosition(t, "bob", big.NewInt(10_000), big.NewInt(0), t0)
	f.seedPosition(t, "alice", big.NewInt(20_000), big.NewInt(0), t0)

	f.engine.SetTimestamp(t0 + twoYears)
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("accrue bob: %v", err)
	}
	if err := f.engine.AccrueInterest("alice"); err != nil {
		t.Fatalf("accrue alice: %v", err)
	}

	// Alice's share comes from the same global charge against the same
	// pre-addition denominator; the global accumulator does not move twice.
	equalBig(t, f.position(t, "alice").AccruedInterest, "2000", "alice interest")
	equalBig(t, f.ledger(t).TotalBorrows, "1100000", "TotalBorrows")
}

func TestAccrueCapsSingleChargeAtTenPercent(t *testing.T) {
	f := newFixture(t, testParams())
	f.seedLedger(t, big.NewInt(1_000_000), t0)
	f.seedPosition(t, "bob", big.NewInt(10_000), big.NewInt(0), t0)

	// Ten years of 5% simple interest would be 50%; the cap clamps it.
	f.engine.SetTimestamp(t0 + 10*secondsPerYear)
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	led := f.ledger(t)
	equalBig(t, led.LastInterestAccrued, "100000", "capped charge")
	equalBig(t, led.TotalBorrows, "1100000", "TotalBorrows")
}

func TestAccrueMintFailureParksSupplierShare(t *testing.T) {
	f := newFixture(t, testParams())
	f.authority.failMint = errors.New("issuance ceiling reached")
	f.seedLedger(t, big.NewInt(1_000_000), t0)
	f.seedPosition(t, "bob", big.NewInt(10_000), big.NewInt(0), t0)

	f.engine.SetTimestamp(t0 + twoYears)
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	led := f.ledger(t)
	equalBig(t, led.UnroutedInterest, "90000", "unrouted interest")
	// The debt and reserve sides still advance.
	equalBig(t, led.TotalBorrows, "1100000", "TotalBorrows")
	equalBig(t, led.ProtocolReserves, "10000", "ProtocolReserves")
	if len(f.yield.received) != 0 {
		t.Fatalf("yield sink should not have received anything")
	}
	if ev := f.recorder.Last(events.TypeInterestUnrouted); ev == nil {
		t.Fatalf("expected an unrouted-interest event")
	}
}

func TestAccrueSinkRejectionBurnsBackMint(t *testing.T) {
	f := newFixture(t, testParams())
	f.yield.failReceive = errors.New("pool closed")
	f.seedLedger(t, big.NewInt(1_000_000), t0)
	f.seedPosition(t, "bob", big.NewInt(10_000), big.NewInt(0), t0)

	f.engine.SetTimestamp(t0 + twoYears)
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	// Mint happened, then was reversed to keep issuance truthful.
	if len(f.authority.mints) != 1 || len(f.authority.burns) != 1 {
		t.Fatalf("mints=%d burns=%d, want 1 and 1", len(f.authority.mints), len(f.authority.burns))
	}
	equalBig(t, f.authority.burns[0].amount, "90000", "burn back")
	if f.authority.burns[0].account != "yield-pool" {
		t.Fatalf("burned from %s, want yield-pool", f.authority.burns[0].account)
	}
	equalBig(t, f.ledger(t).UnroutedInterest, "90000", "unrouted interest")
}

func TestAccrueDebtFreeAccountOnlyStamps(t *testing.T) {
	f := newFixture(t, testParams())
	f.seedLedger(t, big.NewInt(1_000_000), t0)

	f.engine.SetTimestamp(t0 + twoYears)
	if err := f.engine.AccrueInterest("carol"); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	pos := f.position(t, "carol")
	equalBig(t, pos.AccruedInterest, "0", "carol interest")
	if pos.LastAccrualTime != t0+twoYears {
		t.Fatalf("LastAccrualTime = %d, want %d", pos.LastAccrualTime, t0+twoYears)
	}
}

func TestAccrueZeroChargeClearsStaleShare(t *testing.T) {
	f := newFixture(t, testParams())
	f.seedLedger(t, big.NewInt(1_000_000), t0)
	f.seedPosition(t, "bob", big.NewInt(10_000), big.NewInt(0), t0)

	// A global accrual bob does not participate in.
	f.engine.SetTimestamp(t0 + twoYears)
	if err := f.engine.AccrueInterest("carol"); err != nil {
		t.Fatalf("accrue carol: %v", err)
	}

	// One second later the charge rounds to zero, which must overwrite the
	// previous charge before bob is touched. Bob missed the earlier interval;
	// he must not claim a share of it against the new stamp.
	f.engine.SetTimestamp(t0 + twoYears + 1)
	if err := f.engine.AccrueInterest("carol"); err != nil {
		t.Fatalf("stamp accrue: %v", err)
	}
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("accrue bob: %v", err)
	}

	equalBig(t, f.position(t, "bob").AccruedInterest, "0", "bob interest")
	equalBig(t, f.ledger(t).LastInterestAccrued, "0", "LastInterestAccrued")
}

type errorRateModel struct{}

func (errorRateModel) CalculateInterest(_, _, _ *big.Int, _ uint64) (*big.Int, error) {
	return nil, errors.New("model offline")
}

func (errorRateModel) SplitInterest(interest *big.Int) (*big.Int, *big.Int) {
	return nil, nil
}

func TestAccrueFallsBackWhenRateModelFails(t *testing.T) {
	f := newFixture(t, testParams())
	f.engine.SetRateModel(errorRateModel{})
	f.seedLedger(t, big.NewInt(1_000_000), t0)
	f.seedPosition(t, "bob", big.NewInt(10_000), big.NewInt(0), t0)

	f.engine.SetTimestamp(t0 + twoYears)
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	// Fallback fixed 5% annual rate, and the fallback bps split.
	led := f.ledger(t)
	equalBig(t, led.LastInterestAccrued, "100000", "fallback charge")
	equalBig(t, led.ProtocolReserves, "10000", "fallback reserve split")
}

func TestRejectedBorrowKeepsAccruedInterval(t *testing.T) {
	f := wethFixture(t, testParams())
	f.vault.deposit("bob", "WETH", big.NewInt(100))
	if err := f.engine.Borrow("bob", big.NewInt(5_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Two years of interest (500, the 10% cap) land first, then the new
	// principal pushes owed debt past the 7500 capacity.
	f.engine.SetTimestamp(t0 + twoYears)
	if err := f.engine.Borrow("bob", big.NewInt(5_000)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}

	// The supplier share already reached the sink, so the accrued ledger
	// must survive the rejection.
	led := f.ledger(t)
	equalBig(t, led.TotalBorrows, "5500", "TotalBorrows")
	equalBig(t, led.LastInterestAccrued, "500", "LastInterestAccrued")
	equalBig(t, led.ProtocolReserves, "50", "ProtocolReserves")
	if led.LastGlobalAccrualTime != t0+twoYears {
		t.Fatalf("LastGlobalAccrualTime = %d, want %d", led.LastGlobalAccrualTime, t0+twoYears)
	}
	equalBig(t, f.position(t, "bob").AccruedInterest, "500", "bob interest")

	// Re-accruing the same interval must not forward the share again.
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	var sinkMints int
	for _, m := range f.authority.mints {
		if m.account == "yield-pool" {
			sinkMints++
			equalBig(t, m.amount, "450", "supplier share")
		}
	}
	if sinkMints != 1 {
		t.Fatalf("sink minted %d times, want 1", sinkMints)
	}
	if len(f.yield.received) != 1 {
		t.Fatalf("yield sink received %d transfers, want 1", len(f.yield.received))
	}
	equalBig(t, f.ledger(t).TotalBorrows, "5500", "TotalBorrows after re-accrue")
}

func TestAccrueFailedBurnBackSurfacesInEvent(t *testing.T) {
	f := newFixture(t, testParams())
	f.yield.failReceive = errors.New("pool closed")
	f.seedLedger(t, big.NewInt(1_000_000), t0)
	f.seedPosition(t, "bob", big.NewInt(10_000), big.NewInt(0), t0)

	f.engine.SetTimestamp(t0 + twoYears)
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	ev := f.recorder.Last(events.TypeInterestUnrouted)
	if ev == nil {
		t.Fatalf("expected an unrouted event")
	}
	if !strings.Contains(ev.Attributes["reason"], "pool closed") {
		t.Fatalf("reason = %q, want sink failure", ev.Attributes["reason"])
	}
	if strings.Contains(ev.Attributes["reason"], "burn-back") {
		t.Fatalf("reason = %q, burn-back succeeded", ev.Attributes["reason"])
	}

	// When the burn-back also fails the minted amount stays outstanding;
	// the event must say so.
	f.authority.failBurn = errors.New("ceiling tracker down")
	f.engine.SetTimestamp(t0 + 2*twoYears)
	if err := f.engine.AccrueInterest("bob"); err != nil {
		t.Fatalf("second accrue: %v", err)
	}
	ev = f.recorder.Last(events.TypeInterestUnrouted)
	if ev == nil {
		t.Fatalf("expected an unrouted event")
	}
	reason := ev.Attributes["reason"]
	if !strings.Contains(reason, "pool closed") || !strings.Contains(reason, "burn-back failed: ceiling tracker down") {
		t.Fatalf("reason = %q, want sink and burn-back failures", reason)
	}
}
