package engine

import (
	"github.com/holiman/uint256"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// pricing holds the outcome of one constant-product cost computation. All
// divisions round down, so rounding dust always stays with the pool.
type pricing struct {
	baseCost uint64
	fee      uint64
	cost     uint64

	// newSide and newOther are the reserves after applying the trade.
	newSide  uint64
	newOther uint64
}

// priceShares computes the collateral cost of minting amount shares against
// reserves (poolSide, poolOther), preserving k = poolSide*poolOther up to
// floor rounding:
//
//	poolOther' = floor(poolSide * poolOther / (poolSide + amount))
//	baseCost   = poolOther - poolOther'
//	fee        = floor(baseCost * feeRateBps / 10000)
//
// It is a pure function of its inputs; the trade operation applies the
// returned reserve update, the quote path discards it.
func priceShares(poolSide, poolOther, amount, feeRateBps uint64) (pricing, error) {
	if amount == 0 {
		return pricing{}, domain.ErrInvalidAmount
	}
	if poolSide == 0 || poolOther == 0 {
		// Unreachable while the seed invariant holds, checked regardless.
		return pricing{}, domain.ErrPoolExhausted
	}

	newSide, err := addU64(poolSide, amount)
	if err != nil {
		return pricing{}, err
	}

	newOther, err := mulDivFloor(poolSide, poolOther, newSide)
	if err != nil {
		return pricing{}, err
	}
	if newOther == 0 {
		// A trade must never drain the complement reserve to zero; that
		// would collapse every subsequent division.
		return pricing{}, domain.ErrPoolExhausted
	}

	baseCost := poolOther - newOther

	fee, err := mulDivFloor(baseCost, feeRateBps, bpsDenominator)
	if err != nil {
		return pricing{}, err
	}

	cost, err := addU64(baseCost, fee)
	if err != nil {
		return pricing{}, err
	}

	return pricing{
		baseCost: baseCost,
		fee:      fee,
		cost:     cost,
		newSide:  newSide,
		newOther: newOther,
	}, nil
}

// sidePriceBps returns the marginal price of a side as its share of total
// reserves, in basis points. A side whose pool holds more of the reserves is
// the side the market believes in. The result is always in [0, 10000].
func sidePriceBps(poolSide, poolOther uint64) uint64 {
	num := new(uint256.Int).Mul(uint256.NewInt(poolSide), uint256.NewInt(bpsDenominator))
	total := new(uint256.Int).Add(uint256.NewInt(poolSide), uint256.NewInt(poolOther))
	if total.IsZero() {
		return 0
	}
	return num.Div(num, total).Uint64()
}
