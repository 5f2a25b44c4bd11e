package lending

import "math/big"

const (
	defaultSupplierShareBps = 9_000
	defaultCloseFactorBps   = 5_000
)

// RateModel is the pluggable interest strategy consulted by the global
// accrual. Interest is simple and non-compounding per elapsed second.
type RateModel interface {
	// CalculateInterest returns the interest charged on principal for the
	// elapsed seconds given the current aggregate borrow and supply.
	CalculateInterest(principal, totalBorrows, totalSupply *big.Int, elapsed uint64) (*big.Int, error)
	// SplitInterest divides an interest amount into the supplier share and
	// the protocol reserve share.
	SplitInterest(interest *big.Int) (supplier, reserve *big.Int)
}

// FixedRateModel charges a flat simple annual rate regardless of utilisation.
type FixedRateModel struct {
	AnnualRateBps    uint64
	SupplierShareBps uint64
}

func (m FixedRateModel) CalculateInterest(principal, _, _ *big.Int, elapsed uint64) (*big.Int, error) {
	return linearInterest(principal, m.AnnualRateBps, elapsed), nil
}

func (m FixedRateModel) SplitInterest(interest *big.Int) (*big.Int, *big.Int) {
	return splitByShare(interest, m.SupplierShareBps)
}

// KinkedRateModel derives the annual borrow rate from pool utilisation using
// a base/slope1/slope2 curve with a kink, then applies it linearly over the
// elapsed time. Parameters are decimals, e.g. a 2% base rate is 0.02.
type KinkedRateModel struct {
	BaseRate *big.Rat
	Slope1   *big.Rat
	Slope2   *big.Rat
	Kink     *big.Rat
	// ReserveFactorBps is the interest share kept as protocol reserves.
	ReserveFactorBps uint64
}

// NewKinkedRateModel constructs a kinked model from floating point inputs.
func NewKinkedRateModel(baseRate, slope1, slope2, kink float64, reserveFactorBps uint64) *KinkedRateModel {
	m := &KinkedRateModel{
		BaseRate:         new(big.Rat),
		Slope1:           new(big.Rat),
		Slope2:           new(big.Rat),
		Kink:             new(big.Rat),
		ReserveFactorBps: reserveFactorBps,
	}
	m.BaseRate.SetFloat64(baseRate)
	m.Slope1.SetFloat64(slope1)
	m.Slope2.SetFloat64(slope2)
	m.Kink.SetFloat64(kink)
	return m
}

// Utilisation computes U = totalBorrows / totalSupply, zero when either side
// is empty.
func (m *KinkedRateModel) Utilisation(totalBorrows, totalSupply *big.Int) *big.Rat {
	if totalBorrows == nil || totalBorrows.Sign() == 0 {
		return new(big.Rat)
	}
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(totalBorrows, totalSupply)
}

// AnnualRate returns the borrow rate for the current utilisation.
func (m *KinkedRateModel) AnnualRate(totalBorrows, totalSupply *big.Int) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	rate := cloneRat(m.BaseRate)
	utilisation := m.Utilisation(totalBorrows, totalSupply)
	if utilisation.Sign() == 0 {
		return rate
	}
	kink := cloneRat(m.Kink)
	slope1 := cloneRat(m.Slope1)
	slope2 := cloneRat(m.Slope2)
	if kink.Sign() == 0 || utilisation.Cmp(kink) <= 0 {
		return rate.Add(rate, new(big.Rat).Mul(slope1, utilisation))
	}
	rate.Add(rate, new(big.Rat).Mul(slope1, kink))
	excess := new(big.Rat).Sub(utilisation, kink)
	if excess.Sign() < 0 {
		excess.SetInt64(0)
	}
	return rate.Add(rate, new(big.Rat).Mul(slope2, excess))
}

func (m *KinkedRateModel) CalculateInterest(principal, totalBorrows, totalSupply *big.Int, elapsed uint64) (*big.Int, error) {
	if principal == nil || principal.Sign() == 0 || elapsed == 0 {
		return big.NewInt(0), nil
	}
	rate := m.AnnualRate(totalBorrows, totalSupply)
	if rate.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	perSecond := new(big.Rat).Quo(rate, new(big.Rat).SetUint64(secondsPerYear))
	perSecond.Mul(perSecond, new(big.Rat).SetUint64(elapsed))
	interest := new(big.Rat).Mul(perSecond, new(big.Rat).SetInt(principal))
	return new(big.Int).Quo(interest.Num(), interest.Denom()), nil
}

func (m *KinkedRateModel) SplitInterest(interest *big.Int) (*big.Int, *big.Int) {
	reserveBps := m.ReserveFactorBps
	if reserveBps > 10_000 {
		reserveBps = 10_000
	}
	return splitByShare(interest, 10_000-reserveBps)
}

// linearInterest is principal * rateBps * elapsed / (10000 * secondsPerYear).
func linearInterest(principal *big.Int, rateBps uint64, elapsed uint64) *big.Int {
	if principal == nil || principal.Sign() == 0 || rateBps == 0 || elapsed == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(principal, new(big.Int).SetUint64(rateBps))
	out.Mul(out, new(big.Int).SetUint64(elapsed))
	out.Quo(out, basisPoints)
	return out.Quo(out, big.NewInt(secondsPerYear))
}

func splitByShare(interest *big.Int, supplierBps uint64) (*big.Int, *big.Int) {
	if interest == nil || interest.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	if supplierBps > 10_000 {
		supplierBps = 10_000
	}
	supplier := bpsMul(interest, supplierBps)
	reserve := new(big.Int).Sub(interest, supplier)
	return supplier, reserve
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}

// DefaultKinkedModel is a reasonable starting curve: 2% base, kink at 80%
// utilisation, 10% of interest reserved for the protocol.
var DefaultKinkedModel = NewKinkedRateModel(0.02, 0.15, 0.6, 0.8, 1_000)
