package lending

import (
	"math/big"

	"lumenlend/core/events"
)

// interestCapDivisor bounds a single global accrual at 10% of TotalBorrows; a
// misbehaving rate model cannot grow the debt faster than that per call.
const interestCapDivisor = 10

// AccrueInterest forces accrual for an account so a borrower cannot dodge
// liquidation by never triggering a borrow or repay.
func (e *Engine) AccrueInterest(account string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	led, err := e.ensureLedger()
	if err != nil {
		return err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return err
	}
	e.accruePosition(led, pos)
	return e.persist(led, pos)
}

// accrueGlobal advances the global debt accumulator. Idempotent per
// timestamp: a second call in the same instant is a no-op. Interest routing
// is best-effort and never fails the caller's operation.
func (e *Engine) accrueGlobal(led *LedgerState) {
	now := e.timestamp
	if now <= led.LastGlobalAccrualTime {
		return
	}
	elapsed := now - led.LastGlobalAccrualTime
	if led.TotalBorrows.Sign() == 0 {
		e.stampGlobal(led, now)
		return
	}

	interest := e.globalInterest(led, elapsed)
	cap := new(big.Int).Quo(led.TotalBorrows, big.NewInt(interestCapDivisor))
	if interest.Cmp(cap) > 0 {
		interest = cap
	}
	if interest.Sign() <= 0 {
		e.stampGlobal(led, now)
		return
	}

	supplier, reserve := e.splitInterest(interest)
	led.ProtocolReserves = new(big.Int).Add(led.ProtocolReserves, reserve)
	e.forwardSupplierShare(led, supplier)

	// The pre-addition value is the denominator for the next per-account
	// allocation; dividing by the post-addition total would systematically
	// understate every account's charge.
	led.TotalBorrowsBeforeAccrual = new(big.Int).Set(led.TotalBorrows)
	led.TotalBorrows = new(big.Int).Add(led.TotalBorrows, interest)
	led.LastInterestAccrued = interest
	led.LastGlobalAccrualTime = now

	e.emit(events.InterestAccrued(interest, supplier, reserve, now))
}

func (e *Engine) stampGlobal(led *LedgerState, now uint64) {
	led.TotalBorrowsBeforeAccrual = new(big.Int).Set(led.TotalBorrows)
	led.LastInterestAccrued = big.NewInt(0)
	led.LastGlobalAccrualTime = now
}

// accruePosition charges the account its proportional share of the latest
// global interest. The share is not recomputed from the rate model against
// the account's own principal; proportional allocation is what keeps the sum
// of per-account debt equal to the global accumulator.
func (e *Engine) accruePosition(led *LedgerState, pos *Position) {
	e.accrueGlobal(led)
	now := e.timestamp
	owed := totalOwed(pos)
	if owed.Sign() == 0 {
		pos.LastAccrualTime = now
		return
	}
	if now <= pos.LastAccrualTime {
		return
	}
	denominator := led.TotalBorrowsBeforeAccrual
	if denominator.Sign() <= 0 {
		denominator = led.TotalBorrows
	}
	if led.LastInterestAccrued.Sign() > 0 && denominator.Sign() > 0 {
		share := new(big.Int).Mul(led.LastInterestAccrued, owed)
		share.Quo(share, denominator)
		pos.AccruedInterest = new(big.Int).Add(pos.AccruedInterest, share)
	}
	pos.LastAccrualTime = now
}

// globalInterest consults the injected rate model, degrading to the fallback
// fixed annual rate when the model is absent or fails.
func (e *Engine) globalInterest(led *LedgerState, elapsed uint64) *big.Int {
	if e.rateModel != nil {
		supply := e.supplyEstimate(led)
		interest, err := e.rateModel.CalculateInterest(led.TotalBorrows, led.TotalBorrows, supply, elapsed)
		if err == nil && interest != nil && interest.Sign() >= 0 {
			return interest
		}
	}
	return linearInterest(led.TotalBorrows, e.params.FallbackAnnualRateBps, elapsed)
}

// supplyEstimate asks the treasury estimator for the aggregate backing. When
// unavailable the engine assumes 50% utilisation, i.e. a supply of twice the
// outstanding borrows.
func (e *Engine) supplyEstimate(led *LedgerState) *big.Int {
	if e.supply != nil {
		backing, err := e.supply.TotalBacking()
		if err == nil && backing != nil && backing.Sign() > 0 {
			return backing
		}
	}
	return new(big.Int).Lsh(led.TotalBorrows, 1)
}

func (e *Engine) splitInterest(interest *big.Int) (*big.Int, *big.Int) {
	if e.rateModel != nil {
		supplier, reserve := e.rateModel.SplitInterest(interest)
		if supplier != nil && reserve != nil {
			return supplier, reserve
		}
	}
	return splitByShare(interest, e.params.SupplierShareBps)
}

// forwardSupplierShare attempts mint-then-transfer of the supplier share to
// the yield destination. A mint failure (issuance ceiling) records the share
// as unrouted; a sink rejection after a successful mint burns the minted
// amount back out to keep total issuance truthful. Neither aborts the
// caller's operation.
func (e *Engine) forwardSupplierShare(led *LedgerState, supplier *big.Int) {
	if supplier == nil || supplier.Sign() == 0 {
		return
	}
	if e.authority == nil || e.yield == nil {
		led.UnroutedInterest = new(big.Int).Add(led.UnroutedInterest, supplier)
		e.emit(events.InterestUnrouted(supplier, "sink not configured"))
		return
	}
	sinkAddr := e.yield.Address()
	if err := e.authority.Mint(sinkAddr, supplier); err != nil {
		led.UnroutedInterest = new(big.Int).Add(led.UnroutedInterest, supplier)
		e.emit(events.InterestUnrouted(supplier, "mint failed: "+err.Error()))
		return
	}
	if err := e.yield.Receive(supplier); err != nil {
		reason := "sink rejected: " + err.Error()
		// A failed burn-back leaves the minted amount outstanding at the
		// sink address on top of the unrouted record. Operators resolve
		// that manually, so the event must carry both failures.
		if burnErr := e.authority.Burn(sinkAddr, supplier); burnErr != nil {
			reason += "; burn-back failed: " + burnErr.Error()
		}
		led.UnroutedInterest = new(big.Int).Add(led.UnroutedInterest, supplier)
		e.emit(events.InterestUnrouted(supplier, reason))
	}
}
