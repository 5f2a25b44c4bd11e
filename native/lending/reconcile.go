package lending

import (
	"math/big"

	"lumenlend/core/events"
)

// ReconcileTotalBorrows accrues every supplied account and snaps the global
// accumulator to the recomputed sum of their debts, correcting accumulated
// rounding drift. The account list is an external input, an off-ledger index
// of every account that ever borrowed; the core keeps no such index itself.
// The signed drift (new minus old) is returned.
func (e *Engine) ReconcileTotalBorrows(accounts []string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	led, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	e.accrueGlobal(led)
	if err := e.persist(led, nil); err != nil {
		return nil, err
	}

	sum := big.NewInt(0)
	for _, account := range accounts {
		pos, err := e.ensurePosition(account)
		if err != nil {
			return nil, err
		}
		e.accruePosition(led, pos)
		sum.Add(sum, totalOwed(pos))
		if err := e.state.PutPosition(pos); err != nil {
			return nil, err
		}
	}

	previous := new(big.Int).Set(led.TotalBorrows)
	led.TotalBorrows = new(big.Int).Set(sum)
	if err := e.persist(led, nil); err != nil {
		return nil, err
	}
	e.emit(events.Reconciled(previous, sum, len(accounts)))
	return new(big.Int).Sub(sum, previous), nil
}

// DrainUnroutedInterest clears the unrouted-interest bucket by reducing the
// global accumulator by the same amount: interest that could never reach
// suppliers stops being owed. The drained amount is returned.
func (e *Engine) DrainUnroutedInterest() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	led, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	drained := new(big.Int).Set(led.UnroutedInterest)
	if drained.Sign() == 0 {
		return drained, nil
	}
	led.TotalBorrows = subFloor(led.TotalBorrows, drained)
	led.UnroutedInterest = big.NewInt(0)
	if err := e.persist(led, nil); err != nil {
		return nil, err
	}
	e.emit(events.UnroutedDrained(drained))
	return drained, nil
}
