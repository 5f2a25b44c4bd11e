package lending

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	ten         = big.NewInt(10)

	// InfiniteHealth is the sentinel health factor reported for debt-free
	// positions.
	InfiniteHealth = new(big.Int).Lsh(big.NewInt(1), 255)
)

const secondsPerYear = 31_536_000

// bpsMul returns amount * bps / 10000, flooring toward zero.
func bpsMul(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() == 0 || bps == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, basisPoints)
}

// subFloor returns a - b floored at zero; aggregate counters never go
// negative through rounding drift.
func subFloor(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(a, b)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
}

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}
