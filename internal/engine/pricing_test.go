package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

func TestPriceShares(t *testing.T) {
	tests := []struct {
		name       string
		poolSide   uint64
		poolOther  uint64
		amount     uint64
		feeRateBps uint64
		wantBase   uint64
		wantFee    uint64
		wantSide   uint64
		wantOther  uint64
	}{
		{
			// 1000*1000/(1000+100) = 909 floor, base 91, fee floor(91*300/10000) = 2.
			name:     "seeded pools hundred shares",
			poolSide: 1000, poolOther: 1000, amount: 100, feeRateBps: 300,
			wantBase: 91, wantFee: 2, wantSide: 1100, wantOther: 909,
		},
		{
			name:     "zero fee",
			poolSide: 1000, poolOther: 1000, amount: 100, feeRateBps: 0,
			wantBase: 91, wantFee: 0, wantSide: 1100, wantOther: 909,
		},
		{
			// 1000*1000/1001 = 999 floor, base 1.
			name:     "single share",
			poolSide: 1000, poolOther: 1000, amount: 1, feeRateBps: 300,
			wantBase: 1, wantFee: 0, wantSide: 1001, wantOther: 999,
		},
		{
			// Skewed reserves: 1100*909/1200 = 833 floor.
			name:     "skewed pools",
			poolSide: 1100, poolOther: 909, amount: 100, feeRateBps: 300,
			wantBase: 76, wantFee: 2, wantSide: 1200, wantOther: 833,
		},
		{
			// Large reserves whose product overflows 64 bits.
			name:     "large reserves",
			poolSide: 1 << 62, poolOther: 1 << 62, amount: 1 << 20, feeRateBps: 100,
			wantBase: 1048576, wantFee: 10485,
			wantSide: (1 << 62) + (1 << 20), wantOther: (1 << 62) - 1048576,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			px, err := priceShares(tc.poolSide, tc.poolOther, tc.amount, tc.feeRateBps)
			require.NoError(t, err)
			assert.Equal(t, tc.wantBase, px.baseCost, "base cost")
			assert.Equal(t, tc.wantFee, px.fee, "fee")
			assert.Equal(t, tc.wantBase+tc.wantFee, px.cost, "total cost")
			assert.Equal(t, tc.wantSide, px.newSide, "new side reserve")
			assert.Equal(t, tc.wantOther, px.newOther, "new other reserve")
		})
	}
}

func TestPriceSharesErrors(t *testing.T) {
	t.Run("zero amount", func(t *testing.T) {
		_, err := priceShares(1000, 1000, 0, 300)
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("zero reserve", func(t *testing.T) {
		_, err := priceShares(0, 1000, 10, 300)
		require.ErrorIs(t, err, domain.ErrPoolExhausted)
		_, err = priceShares(1000, 0, 10, 300)
		require.ErrorIs(t, err, domain.ErrPoolExhausted)
	})

	t.Run("amount overflows side reserve", func(t *testing.T) {
		_, err := priceShares(1<<63, 1000, 1<<63, 300)
		require.ErrorIs(t, err, domain.ErrAmountOverflow)
	})

	t.Run("complement drained to zero", func(t *testing.T) {
		// 10*10/(10+10000) floors to zero.
		_, err := priceShares(10, 10, 10000, 300)
		require.ErrorIs(t, err, domain.ErrPoolExhausted)
	})
}

func TestPriceSharesConstantProduct(t *testing.T) {
	// The post-trade product may only shrink by floor rounding, never grow:
	// value leaks toward the pool, not the trader.
	poolSide, poolOther := uint64(1000), uint64(1000)
	for _, amount := range []uint64{1, 7, 50, 333, 1000, 5000} {
		px, err := priceShares(poolSide, poolOther, amount, 0)
		require.NoError(t, err)

		before := poolSide * poolOther
		after := px.newSide * px.newOther
		assert.LessOrEqual(t, after, before, "amount %d", amount)
		// Floor rounding loses less than one unit of the divisor.
		assert.Greater(t, after+px.newSide, before, "amount %d", amount)
	}
}

func TestSidePriceBps(t *testing.T) {
	assert.Equal(t, uint64(5000), sidePriceBps(1000, 1000))
	assert.Equal(t, uint64(5475), sidePriceBps(1100, 909))
	assert.Equal(t, uint64(0), sidePriceBps(0, 0))
	// Extreme reserves must not overflow the bps computation.
	assert.Equal(t, uint64(5000), sidePriceBps(1<<63, 1<<63))
}

func TestCheckedMath(t *testing.T) {
	_, err := addU64(1<<63, 1<<63)
	require.ErrorIs(t, err, domain.ErrAmountOverflow)

	v, err := addU64(40, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = subU64(1, 2)
	require.ErrorIs(t, err, domain.ErrPoolExhausted)

	_, err = mulDivFloor(1, 1, 0)
	require.ErrorIs(t, err, domain.ErrPoolExhausted)

	v, err = mulDivFloor(91, 300, 10000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
}
