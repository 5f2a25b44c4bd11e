package lending

import (
	"fmt"
	"math/big"

	"lumenlend/core/events"
	nativecommon "lumenlend/native/common"
)

// Liquidate lets a third party repay part of an unhealthy borrower's debt in
// exchange for discounted collateral. The requested repay amount is clamped,
// not rejected, when it exceeds the close-factor cap; positions below the
// full-liquidation threshold are closable in full. The repaid debt and the
// seized token amount are returned.
//
// Execution order: burn the liquidator's stablecoin, reduce the borrower's
// debt, instruct the vault to transfer the seized collateral. A zero seizure
// aborts before any side effect occurs.
func (e *Engine) Liquidate(liquidator, borrower, collateralToken string, debtToRepay *big.Int) (*big.Int, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if liquidator == borrower {
		return nil, nil, ErrSelfLiquidation
	}
	if debtToRepay == nil || debtToRepay.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	led, err := e.ensureLedger()
	if err != nil {
		return nil, nil, err
	}
	pos, err := e.ensurePosition(borrower)
	if err != nil {
		return nil, nil, err
	}
	e.accruePosition(led, pos)
	if err := e.persist(led, pos); err != nil {
		return nil, nil, err
	}

	debt := totalOwed(pos)
	if debt.Sign() == 0 {
		return nil, nil, ErrNoOutstandingDebt
	}
	weighted, err := e.weightedCollateralWithFallback(borrower)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	health := healthRatio(weighted, debt)
	if health.Cmp(basisPoints) >= 0 {
		return nil, nil, ErrNotLiquidatable
	}

	maxRepay := debt
	if health.Cmp(new(big.Int).SetUint64(e.params.FullLiquidationThresholdBps)) >= 0 {
		maxRepay = bpsMul(debt, e.params.CloseFactorBps)
	}
	repay := minBig(debtToRepay, maxRepay)
	if repay.Sign() == 0 {
		return nil, nil, ErrNothingToSeize
	}

	cfg, err := e.vault.ConfigOf(collateralToken)
	if err != nil {
		return nil, nil, err
	}
	price, err := e.oracle.Price(collateralToken)
	if err != nil || price == nil || price.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: no price for %s", ErrOracleUnavailable, collateralToken)
	}
	unit := pow10(cfg.Decimals)

	// Seizure is priced at repay * (1 + penalty) USD, converted into token
	// units at the token's native precision.
	seizeValue := bpsMul(repay, 10_000+cfg.LiquidationPenaltyBps)
	seizeTokens := new(big.Int).Mul(seizeValue, unit)
	seizeTokens.Quo(seizeTokens, price)

	deposit, err := e.vault.DepositsOf(borrower, collateralToken)
	if err != nil {
		return nil, nil, err
	}
	if deposit == nil {
		deposit = big.NewInt(0)
	}
	if seizeTokens.Cmp(deposit) > 0 {
		// The deposit caps the seizure; recompute the repay backward from
		// the capped value so repay and seizure stay consistent.
		seizeTokens = new(big.Int).Set(deposit)
		cappedValue := new(big.Int).Mul(seizeTokens, price)
		cappedValue.Quo(cappedValue, unit)
		repay = new(big.Int).Mul(cappedValue, basisPoints)
		repay.Quo(repay, new(big.Int).SetUint64(10_000+cfg.LiquidationPenaltyBps))
	}
	if seizeTokens.Sign() == 0 || repay.Sign() == 0 {
		return nil, nil, ErrNothingToSeize
	}

	if err := e.authority.Burn(liquidator, repay); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBurnRejected, err)
	}
	e.applyReduction(led, pos, repay)
	if err := e.vault.Seize(borrower, collateralToken, seizeTokens, liquidator); err != nil {
		return nil, nil, err
	}
	if err := e.persist(led, pos); err != nil {
		return nil, nil, err
	}
	e.emit(events.Liquidated(liquidator, borrower, collateralToken, repay, seizeTokens))
	return repay, seizeTokens, nil
}
