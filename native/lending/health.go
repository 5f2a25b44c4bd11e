package lending

import "math/big"

// TotalDebt reports principal plus accrued interest plus the interest pending
// since the account's last accrual. The pending share is a read-only
// approximation apportioned against the current TotalBorrows; the mutating
// accrual path divides by the pre-addition snapshot instead, and the two can
// diverge transiently between a global accrual and the next per-account
// touch.
func (e *Engine) TotalDebt(account string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	led, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	return e.totalDebtView(led, pos), nil
}

func (e *Engine) totalDebtView(led *LedgerState, pos *Position) *big.Int {
	owed := totalOwed(pos)
	if owed.Sign() == 0 {
		return owed
	}
	if pos.LastAccrualTime >= led.LastGlobalAccrualTime {
		return owed
	}
	if led.LastInterestAccrued.Sign() <= 0 || led.TotalBorrows.Sign() <= 0 {
		return owed
	}
	pending := new(big.Int).Mul(led.LastInterestAccrued, owed)
	pending.Quo(pending, led.TotalBorrows)
	return owed.Add(owed, pending)
}

// HealthFactor returns the liquidation-threshold-weighted collateral value
// relative to total debt in basis points; 10000 is 1.0 and values below it
// mark the position liquidatable. Debt-free positions report InfiniteHealth.
func (e *Engine) HealthFactor(account string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthFactor(account, false)
}

// HealthFactorUnsafe is the circuit-breaker-bypassing variant used so
// liquidations remain possible during extreme price dislocation.
func (e *Engine) HealthFactorUnsafe(account string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthFactor(account, true)
}

func (e *Engine) healthFactor(account string, unsafe bool) (*big.Int, error) {
	led, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	debt := e.totalDebtView(led, pos)
	if debt.Sign() == 0 {
		return new(big.Int).Set(InfiniteHealth), nil
	}
	weighted, err := e.weightedCollateral(account, unsafe)
	if err != nil {
		return nil, err
	}
	return healthRatio(weighted, debt), nil
}

func healthRatio(weightedCollateral, debt *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(InfiniteHealth)
	}
	hf := new(big.Int).Mul(weightedCollateral, basisPoints)
	return hf.Quo(hf, debt)
}

// WeightedCollateralValue sums oracle value weighted by liquidation threshold
// over every vault-supported token whose threshold was once configured.
// Disabling a token must not instantly strand or liquidate existing
// depositors, so disabled tokens still count here.
func (e *Engine) WeightedCollateralValue(account string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weightedCollateral(account, false)
}

// WeightedCollateralValueUnsafe is the circuit-breaker-bypassing variant.
func (e *Engine) WeightedCollateralValueUnsafe(account string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weightedCollateral(account, true)
}

func (e *Engine) weightedCollateral(account string, unsafe bool) (*big.Int, error) {
	tokens, err := e.vault.SupportedTokens()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, token := range tokens {
		cfg, err := e.vault.ConfigOf(token)
		if err != nil {
			return nil, err
		}
		if cfg.LiquidationThresholdBps == 0 {
			continue
		}
		deposit, err := e.vault.DepositsOf(account, token)
		if err != nil {
			return nil, err
		}
		if deposit == nil || deposit.Sign() == 0 {
			continue
		}
		value, err := e.collateralValue(token, deposit, unsafe)
		if err != nil {
			return nil, err
		}
		total.Add(total, bpsMul(value, cfg.LiquidationThresholdBps))
	}
	return total, nil
}

// weightedCollateralWithFallback retries through the unsafe oracle when the
// guarded read is blocked. Reserved for the liquidation and withdrawal
// safety paths; ordinary borrow checks never fall back silently.
func (e *Engine) weightedCollateralWithFallback(account string) (*big.Int, error) {
	weighted, err := e.weightedCollateral(account, false)
	if err == nil {
		return weighted, nil
	}
	return e.weightedCollateral(account, true)
}

func (e *Engine) collateralValue(token string, amount *big.Int, unsafe bool) (*big.Int, error) {
	if unsafe {
		return e.oracle.ValueUSDUnsafe(token, amount)
	}
	return e.oracle.ValueUSD(token, amount)
}

// valueUSDWithFallback prices a single withdrawal through the guarded oracle,
// degrading to the unsafe read when blocked.
func (e *Engine) valueUSDWithFallback(token string, amount *big.Int) (*big.Int, error) {
	value, err := e.oracle.ValueUSD(token, amount)
	if err == nil {
		return value, nil
	}
	return e.oracle.ValueUSDUnsafe(token, amount)
}

// BorrowCapacity is the collateral-factor-weighted value available to borrow
// against. Unlike the health calculation it excludes disabled tokens: new
// borrowing must not be extended against collateral the protocol no longer
// trusts.
func (e *Engine) BorrowCapacity(account string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.borrowCapacity(account)
}

func (e *Engine) borrowCapacity(account string) (*big.Int, error) {
	tokens, err := e.vault.SupportedTokens()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, token := range tokens {
		cfg, err := e.vault.ConfigOf(token)
		if err != nil {
			return nil, err
		}
		if !cfg.Enabled || cfg.CollateralFactorBps == 0 {
			continue
		}
		deposit, err := e.vault.DepositsOf(account, token)
		if err != nil {
			return nil, err
		}
		if deposit == nil || deposit.Sign() == 0 {
			continue
		}
		value, err := e.oracle.ValueUSD(token, deposit)
		if err != nil {
			return nil, err
		}
		total.Add(total, bpsMul(value, cfg.CollateralFactorBps))
	}
	return total, nil
}

// PositionOf returns a copy of the stored position for read-only consumers.
func (e *Engine) PositionOf(account string) (*Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

// Ledger returns a copy of the global aggregate.
func (e *Engine) Ledger() (*LedgerState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	led, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	return led.Clone(), nil
}
