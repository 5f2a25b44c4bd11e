package events

import (
	"math/big"
	"strconv"
)

const (
	// TypeInterestAccrued is emitted after every global interest accrual
	// that added interest to the aggregate.
	TypeInterestAccrued = "lending.interestAccrued"
	// TypeInterestUnrouted is emitted when the supplier share could not be
	// forwarded to the yield destination.
	TypeInterestUnrouted  = "lending.interestUnrouted"
	TypeBorrowed          = "lending.borrowed"
	TypeRepaid            = "lending.repaid"
	TypeCollateralOut     = "lending.collateralWithdrawn"
	TypeDebtReduced       = "lending.debtReduced"
	TypeLiquidated        = "lending.liquidated"
	TypeBadDebtRecorded   = "lending.badDebtRecorded"
	TypeBadDebtCovered    = "lending.badDebtCovered"
	TypeBadDebtSocialized = "lending.badDebtSocialized"
	TypeReservesWithdrawn = "lending.reservesWithdrawn"
	TypeReconciled        = "lending.reconciled"
	TypeUnroutedDrained   = "lending.unroutedDrained"
)

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func InterestAccrued(interest, supplier, reserve *big.Int, ts uint64) Event {
	return Event{Type: TypeInterestAccrued, Attributes: map[string]string{
		"interest":  amount(interest),
		"supplier":  amount(supplier),
		"reserve":   amount(reserve),
		"timestamp": strconv.FormatUint(ts, 10),
	}}
}

func InterestUnrouted(share *big.Int, reason string) Event {
	return Event{Type: TypeInterestUnrouted, Attributes: map[string]string{
		"share":  amount(share),
		"reason": reason,
	}}
}

func Borrowed(account, recipient string, borrowed *big.Int) Event {
	return Event{Type: TypeBorrowed, Attributes: map[string]string{
		"account":   account,
		"recipient": recipient,
		"amount":    amount(borrowed),
	}}
}

func Repaid(account string, repaid, interestPaid *big.Int) Event {
	return Event{Type: TypeRepaid, Attributes: map[string]string{
		"account":      account,
		"amount":       amount(repaid),
		"interestPaid": amount(interestPaid),
	}}
}

func CollateralWithdrawn(account, token string, withdrawn *big.Int) Event {
	return Event{Type: TypeCollateralOut, Attributes: map[string]string{
		"account": account,
		"token":   token,
		"amount":  amount(withdrawn),
	}}
}

func DebtReduced(caller, account string, reduced *big.Int) Event {
	return Event{Type: TypeDebtReduced, Attributes: map[string]string{
		"caller":  caller,
		"account": account,
		"amount":  amount(reduced),
	}}
}

func Liquidated(liquidator, borrower, token string, repaid, seized *big.Int) Event {
	return Event{Type: TypeLiquidated, Attributes: map[string]string{
		"liquidator": liquidator,
		"borrower":   borrower,
		"token":      token,
		"repaid":     amount(repaid),
		"seized":     amount(seized),
	}}
}

func BadDebtRecorded(account string, residual *big.Int) Event {
	return Event{Type: TypeBadDebtRecorded, Attributes: map[string]string{
		"account":  account,
		"residual": amount(residual),
	}}
}

func BadDebtCovered(covered *big.Int) Event {
	return Event{Type: TypeBadDebtCovered, Attributes: map[string]string{
		"amount": amount(covered),
	}}
}

func BadDebtSocialized(socialized *big.Int) Event {
	return Event{Type: TypeBadDebtSocialized, Attributes: map[string]string{
		"amount": amount(socialized),
	}}
}

func ReservesWithdrawn(to string, withdrawn *big.Int) Event {
	return Event{Type: TypeReservesWithdrawn, Attributes: map[string]string{
		"to":     to,
		"amount": amount(withdrawn),
	}}
}

func Reconciled(previous, current *big.Int, accounts int) Event {
	return Event{Type: TypeReconciled, Attributes: map[string]string{
		"previous": amount(previous),
		"current":  amount(current),
		"accounts": strconv.Itoa(accounts),
	}}
}

func UnroutedDrained(drained *big.Int) Event {
	return Event{Type: TypeUnroutedDrained, Attributes: map[string]string{
		"amount": amount(drained),
	}}
}
