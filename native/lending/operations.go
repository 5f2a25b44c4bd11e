package lending

import (
	"fmt"
	"math/big"

	"lumenlend/core/events"
	nativecommon "lumenlend/native/common"
)

// Borrow issues amount of stablecoin to the account against its collateral.
func (e *Engine) Borrow(account string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.borrow(account, account, amount)
}

// BorrowOnBehalf issues the proceeds to an approved delegate acting for the
// account, e.g. a leverage helper. The debt lands on the account.
func (e *Engine) BorrowOnBehalf(delegate, account string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.delegates[account][delegate] {
		return ErrUnauthorizedCaller
	}
	return e.borrow(account, delegate, amount)
}

func (e *Engine) borrow(account, recipient string, amount *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	led, err := e.ensureLedger()
	if err != nil {
		return err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return err
	}
	e.accruePosition(led, pos)
	// Accrual may have forwarded the supplier share to the yield sink, an
	// external side effect. It must become durable now: discarding it on a
	// failed validation below would replay the interval, and the forward,
	// on the next accrual.
	if err := e.persist(led, pos); err != nil {
		return err
	}

	pos.Principal = new(big.Int).Add(pos.Principal, amount)
	led.TotalBorrows = new(big.Int).Add(led.TotalBorrows, amount)

	owed := totalOwed(pos)
	if owed.Cmp(e.params.MinDebt) < 0 {
		return ErrDustPosition
	}
	capacity, err := e.borrowCapacity(account)
	if err != nil {
		return fmt.Errorf("borrow capacity: %w", err)
	}
	if capacity.Cmp(owed) < 0 {
		return ErrCapacityExceeded
	}
	if err := e.authority.Mint(recipient, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrMintRejected, err)
	}
	if err := e.persist(led, pos); err != nil {
		return err
	}
	e.emit(events.Borrowed(account, recipient, amount))
	return nil
}

// Repay burns up to amount of the account's stablecoin against its debt,
// interest first, and returns the amount actually repaid. Repayment stays
// available while the module is paused so borrowers are never trapped into
// liquidation by accruing interest they cannot pay down.
func (e *Engine) Repay(account string, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	led, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	e.accruePosition(led, pos)
	if err := e.persist(led, pos); err != nil {
		return nil, err
	}

	debt := totalOwed(pos)
	if debt.Sign() == 0 {
		return nil, ErrNoOutstandingDebt
	}
	repay := minBig(amount, debt)
	remaining := new(big.Int).Sub(debt, repay)
	if remaining.Sign() > 0 && remaining.Cmp(e.params.MinDebt) < 0 {
		return nil, ErrDustPosition
	}

	interestPaid := e.applyReduction(led, pos, repay)
	if err := e.authority.Burn(account, repay); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBurnRejected, err)
	}
	if err := e.persist(led, pos); err != nil {
		return nil, err
	}
	e.emit(events.Repaid(account, repay, interestPaid))
	return repay, nil
}

// applyReduction pays down the position interest-first and decrements the
// global accumulator by the full amount. Crediting only the principal here
// is a known defect class: the accumulator was incremented by the interest
// portion during accrual, so omitting it causes unbounded aggregate drift.
func (e *Engine) applyReduction(led *LedgerState, pos *Position, amount *big.Int) *big.Int {
	interestPaid := minBig(amount, pos.AccruedInterest)
	pos.AccruedInterest = subFloor(pos.AccruedInterest, interestPaid)
	principalPaid := new(big.Int).Sub(amount, interestPaid)
	pos.Principal = subFloor(pos.Principal, principalPaid)
	led.TotalBorrows = subFloor(led.TotalBorrows, amount)
	return interestPaid
}

// WithdrawCollateral releases deposited collateral after verifying that the
// post-withdrawal health factor stays at or above 1.0. The health check runs
// before the vault transfer: the transfer is an external side effect that
// must never observe stale position state.
func (e *Engine) WithdrawCollateral(account, token string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	led, err := e.ensureLedger()
	if err != nil {
		return err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return err
	}
	e.accruePosition(led, pos)
	if err := e.persist(led, pos); err != nil {
		return err
	}

	debt := totalOwed(pos)
	if debt.Sign() > 0 {
		deposit, err := e.vault.DepositsOf(account, token)
		if err != nil {
			return err
		}
		if deposit == nil || deposit.Cmp(amount) < 0 {
			return ErrInsufficientDeposit
		}
		cfg, err := e.vault.ConfigOf(token)
		if err != nil {
			return err
		}
		value, err := e.valueUSDWithFallback(token, amount)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		}
		current, err := e.weightedCollateralWithFallback(account)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		}
		projected := subFloor(current, bpsMul(value, cfg.LiquidationThresholdBps))
		if healthRatio(projected, debt).Cmp(basisPoints) < 0 {
			return ErrHealthCheckFailed
		}
	}

	if err := e.vault.Withdraw(token, amount, account); err != nil {
		return err
	}
	if err := e.persist(led, pos); err != nil {
		return err
	}
	e.emit(events.CollateralWithdrawn(account, token, amount))
	return nil
}

// ReduceDebt is the liquidation/emergency-close interface: it pays the
// account's debt down without burning from the account, restricted to
// authorized debt reducers. The actual reduction is returned.
func (e *Engine) ReduceDebt(caller, account string, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.reducers[caller] {
		return nil, ErrUnauthorizedCaller
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	led, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	e.accruePosition(led, pos)
	if err := e.persist(led, pos); err != nil {
		return nil, err
	}

	debt := totalOwed(pos)
	if debt.Sign() == 0 {
		return nil, ErrNoOutstandingDebt
	}
	reduced := minBig(amount, debt)
	e.applyReduction(led, pos, reduced)
	if err := e.persist(led, pos); err != nil {
		return nil, err
	}
	e.emit(events.DebtReduced(caller, account, reduced))
	return reduced, nil
}

// RecordBadDebt writes off the residual debt of an account whose collateral
// is exhausted, verified through the ungated oracle. The residual moves into
// the bad-debt counters and the position is zeroed in place.
func (e *Engine) RecordBadDebt(caller, account string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.reducers[caller] {
		return nil, ErrUnauthorizedCaller
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	led, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	e.accruePosition(led, pos)
	if err := e.persist(led, pos); err != nil {
		return nil, err
	}

	residual := totalOwed(pos)
	if residual.Sign() == 0 {
		return nil, ErrNoOutstandingDebt
	}
	tokens, err := e.vault.SupportedTokens()
	if err != nil {
		return nil, err
	}
	for _, token := range tokens {
		deposit, err := e.vault.DepositsOf(account, token)
		if err != nil {
			return nil, err
		}
		if deposit == nil || deposit.Sign() == 0 {
			continue
		}
		value, err := e.oracle.ValueUSDUnsafe(token, deposit)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		}
		if value.Sign() > 0 {
			return nil, ErrCollateralRemaining
		}
	}

	pos.Principal = big.NewInt(0)
	pos.AccruedInterest = big.NewInt(0)
	led.TotalBorrows = subFloor(led.TotalBorrows, residual)
	led.BadDebt = new(big.Int).Add(led.BadDebt, residual)
	led.CumulativeBadDebt = new(big.Int).Add(led.CumulativeBadDebt, residual)
	if err := e.persist(led, pos); err != nil {
		return nil, err
	}
	e.emit(events.BadDebtRecorded(account, residual))
	return residual, nil
}

// CoverBadDebt burns stablecoin transferred in from reserves to shrink the
// outstanding bad debt. The amount actually covered is returned.
func (e *Engine) CoverBadDebt(from string, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	led, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	e.accrueGlobal(led)
	if err := e.persist(led, nil); err != nil {
		return nil, err
	}
	covered := minBig(amount, led.BadDebt)
	if covered.Sign() == 0 {
		return nil, ErrNoOutstandingDebt
	}
	if err := e.authority.Burn(from, covered); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBurnRejected, err)
	}
	led.BadDebt = subFloor(led.BadDebt, covered)
	led.BadDebtCovered = new(big.Int).Add(led.BadDebtCovered, covered)
	if err := e.persist(led, nil); err != nil {
		return nil, err
	}
	e.emit(events.BadDebtCovered(covered))
	return covered, nil
}

// SocializeBadDebt resolves bad debt without burning anything: the global
// accumulator is permanently reduced so the loss spreads across future
// utilisation and interest calculations.
func (e *Engine) SocializeBadDebt(amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	led, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	e.accrueGlobal(led)
	if err := e.persist(led, nil); err != nil {
		return nil, err
	}
	socialized := minBig(amount, led.BadDebt)
	if socialized.Sign() == 0 {
		return nil, ErrNoOutstandingDebt
	}
	led.BadDebt = subFloor(led.BadDebt, socialized)
	led.BadDebtCovered = new(big.Int).Add(led.BadDebtCovered, socialized)
	led.TotalBorrows = subFloor(led.TotalBorrows, socialized)
	if err := e.persist(led, nil); err != nil {
		return nil, err
	}
	e.emit(events.BadDebtSocialized(socialized))
	return socialized, nil
}

// WithdrawReserves redeems protocol reserves by minting to the recipient.
// The mint stays subject to the authority's issuance ceiling; on rejection
// no reserve accounting changes.
func (e *Engine) WithdrawReserves(to string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	led, err := e.ensureLedger()
	if err != nil {
		return err
	}
	e.accrueGlobal(led)
	if err := e.persist(led, nil); err != nil {
		return err
	}
	if led.ProtocolReserves.Cmp(amount) < 0 {
		return ErrInsufficientReserve
	}
	if err := e.authority.Mint(to, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrMintRejected, err)
	}
	led.ProtocolReserves = new(big.Int).Sub(led.ProtocolReserves, amount)
	if err := e.persist(led, nil); err != nil {
		return err
	}
	e.emit(events.ReservesWithdrawn(to, amount))
	return nil
}
