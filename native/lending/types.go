package lending

import "math/big"

// Position is the authoritative debt record for a single borrowing account.
// Amounts are stablecoin wei expressed as big integers. A position is created
// implicitly on first touch and zeroed in place when fully repaid or written
// off; it is never deleted.
type Position struct {
	// Account is the opaque borrower identifier.
	Account string
	// Principal is the amount originally borrowed, before interest.
	Principal *big.Int
	// AccruedInterest is interest charged but not yet merged into principal.
	AccruedInterest *big.Int
	// LastAccrualTime is the unix timestamp of the last per-account accrual.
	LastAccrualTime uint64
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Account: p.Account, LastAccrualTime: p.LastAccrualTime}
	if p.Principal != nil {
		clone.Principal = new(big.Int).Set(p.Principal)
	}
	if p.AccruedInterest != nil {
		clone.AccruedInterest = new(big.Int).Set(p.AccruedInterest)
	}
	return clone
}

// LedgerState captures the global debt aggregate and the reserve and bad-debt
// counters it must stay consistent with.
type LedgerState struct {
	// TotalBorrows is the sum of principal plus interest across all
	// positions as currently accounted, up to rounding drift.
	TotalBorrows *big.Int
	// TotalBorrowsBeforeAccrual snapshots TotalBorrows immediately before
	// the latest global interest addition. It is the denominator for
	// per-account proportional allocation.
	TotalBorrowsBeforeAccrual *big.Int
	// LastInterestAccrued is the interest amount added by the most recent
	// global accrual. Per-account shares are apportioned from it until the
	// next global accrual overwrites it.
	LastInterestAccrued *big.Int
	// LastGlobalAccrualTime is the unix timestamp of the last global
	// accrual.
	LastGlobalAccrualTime uint64
	// ProtocolReserves is interest carved out for the protocol, redeemable
	// only by minting within the authority's issuance ceiling.
	ProtocolReserves *big.Int
	// UnroutedInterest is global interest that accrued as debt but could
	// not be forwarded to the supplier yield destination.
	UnroutedInterest *big.Int
	// BadDebt is the current unbacked-stablecoin shortfall from
	// liquidations that exhausted collateral.
	BadDebt *big.Int
	// CumulativeBadDebt is monotonic and never decremented.
	CumulativeBadDebt *big.Int
	// BadDebtCovered totals bad debt resolved via burn or socialization.
	BadDebtCovered *big.Int
}

// Clone returns a deep copy of the ledger aggregate.
func (l *LedgerState) Clone() *LedgerState {
	if l == nil {
		return nil
	}
	clone := &LedgerState{LastGlobalAccrualTime: l.LastGlobalAccrualTime}
	clone.TotalBorrows = cloneBig(l.TotalBorrows)
	clone.TotalBorrowsBeforeAccrual = cloneBig(l.TotalBorrowsBeforeAccrual)
	clone.LastInterestAccrued = cloneBig(l.LastInterestAccrued)
	clone.ProtocolReserves = cloneBig(l.ProtocolReserves)
	clone.UnroutedInterest = cloneBig(l.UnroutedInterest)
	clone.BadDebt = cloneBig(l.BadDebt)
	clone.CumulativeBadDebt = cloneBig(l.CumulativeBadDebt)
	clone.BadDebtCovered = cloneBig(l.BadDebtCovered)
	return clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// ensureDefaults populates nil big.Int fields so JSON round-trips and fresh
// states are safe to operate on.
func (l *LedgerState) ensureDefaults() {
	if l.TotalBorrows == nil {
		l.TotalBorrows = big.NewInt(0)
	}
	if l.TotalBorrowsBeforeAccrual == nil {
		l.TotalBorrowsBeforeAccrual = big.NewInt(0)
	}
	if l.LastInterestAccrued == nil {
		l.LastInterestAccrued = big.NewInt(0)
	}
	if l.ProtocolReserves == nil {
		l.ProtocolReserves = big.NewInt(0)
	}
	if l.UnroutedInterest == nil {
		l.UnroutedInterest = big.NewInt(0)
	}
	if l.BadDebt == nil {
		l.BadDebt = big.NewInt(0)
	}
	if l.CumulativeBadDebt == nil {
		l.CumulativeBadDebt = big.NewInt(0)
	}
	if l.BadDebtCovered == nil {
		l.BadDebtCovered = big.NewInt(0)
	}
}

func (p *Position) ensureDefaults() {
	if p.Principal == nil {
		p.Principal = big.NewInt(0)
	}
	if p.AccruedInterest == nil {
		p.AccruedInterest = big.NewInt(0)
	}
}

// TokenConfig mirrors the collateral vault's per-token configuration at the
// interface boundary. All ratios are basis points.
type TokenConfig struct {
	// Enabled reports whether the vault still accepts the token for new
	// borrowing. Disabled tokens keep counting toward health as long as
	// their liquidation threshold was once configured.
	Enabled                 bool
	CollateralFactorBps     uint64
	LiquidationThresholdBps uint64
	LiquidationPenaltyBps   uint64
	// Decimals is the token's native precision, used when converting USD
	// seizure values into token units.
	Decimals uint8
}

// RiskParameters groups the governance-controlled knobs of the debt ledger.
type RiskParameters struct {
	// FallbackAnnualRateBps is the fixed simple annual borrow rate applied
	// when no rate model is configured or the model call fails.
	FallbackAnnualRateBps uint64
	// SupplierShareBps is the share of accrued interest forwarded to the
	// supplier yield destination when the rate model does not provide its
	// own split.
	SupplierShareBps uint64
	// MinDebt is the dust floor: no operation may leave a position with a
	// nonzero debt below it.
	MinDebt *big.Int
	// CloseFactorBps caps the fraction of debt closable by one liquidation
	// under ordinary undercollateralization.
	CloseFactorBps uint64
	// FullLiquidationThresholdBps is the health factor below which the
	// close factor no longer applies and the full debt is closable.
	FullLiquidationThresholdBps uint64
	// ParameterDelay is the number of seconds a queued parameter change
	// must wait before it can be applied.
	ParameterDelay uint64
}

// Clone returns a deep copy of the parameters.
func (p RiskParameters) Clone() RiskParameters {
	clone := p
	if p.MinDebt != nil {
		clone.MinDebt = new(big.Int).Set(p.MinDebt)
	}
	return clone
}
