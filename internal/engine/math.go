package engine

import (
	"math"

	"github.com/holiman/uint256"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// bpsDenominator is the basis-point scale used for fees and prices.
const bpsDenominator = 10_000

// addU64 returns a+b or ErrAmountOverflow if the sum does not fit in uint64.
func addU64(a, b uint64) (uint64, error) {
	if b > math.MaxUint64-a {
		return 0, domain.ErrAmountOverflow
	}
	return a + b, nil
}

// subU64 returns a-b. Underflow indicates a broken invariant upstream and is
// reported as PoolExhausted rather than wrapping around.
func subU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, domain.ErrPoolExhausted
	}
	return a - b, nil
}

// mulDivFloor computes floor(a*b/den) with a 256-bit intermediate so that
// products of two 64-bit reserves cannot overflow. den must be non-zero.
func mulDivFloor(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, domain.ErrPoolExhausted
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	q := prod.Div(prod, uint256.NewInt(den))
	if !q.IsUint64() {
		return 0, domain.ErrAmountOverflow
	}
	return q.Uint64(), nil
}
