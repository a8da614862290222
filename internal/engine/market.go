package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// posKey identifies one share balance within a market's ledger.
type posKey struct {
	account common.Address
	side    domain.Side
}

// marketState is the authoritative in-memory aggregate for one market: the
// persisted record plus the per-account share ledger. All access goes
// through mu; one trade or claim holds the lock for its full duration so
// concurrent callers observe only committed state.
type marketState struct {
	mu        sync.Mutex
	m         domain.Market
	positions map[posKey]uint64
}

func newMarketState(m domain.Market) *marketState {
	return &marketState{
		m:         m,
		positions: make(map[posKey]uint64),
	}
}

// shares returns the balance for (account, side); zero when absent.
func (ms *marketState) shares(account common.Address, side domain.Side) uint64 {
	return ms.positions[posKey{account: account, side: side}]
}

func (ms *marketState) setShares(account common.Address, side domain.Side, v uint64) {
	key := posKey{account: account, side: side}
	if v == 0 {
		delete(ms.positions, key)
		return
	}
	ms.positions[key] = v
}

// outstandingTotal is the sum of shares across both sides, used by the
// pro-rata refund path for invalid markets.
func (ms *marketState) outstandingTotal() (uint64, error) {
	return addU64(ms.m.OutstandingYes, ms.m.OutstandingNo)
}

// snapshot copies the market record and the full position ledger. Callers
// must hold ms.mu.
func (ms *marketState) snapshot() (domain.Market, []domain.Position) {
	positions := make([]domain.Position, 0, len(ms.positions))
	for key, shares := range ms.positions {
		positions = append(positions, domain.Position{
			MarketID:  ms.m.ID,
			Account:   key.account,
			Side:      key.side,
			Shares:    shares,
			UpdatedAt: ms.m.UpdatedAt,
		})
	}
	return ms.m, positions
}

// applyTrade mutates the ledger for an executed trade and returns a revert
// closure that restores the pre-trade state. The caller invokes revert when
// the subsequent collateral transfer fails. Callers must hold ms.mu.
func (ms *marketState) applyTrade(account common.Address, side domain.Side, amount uint64, px pricing, now time.Time) (func(), error) {
	prev := ms.m
	prevShares := ms.shares(account, side)

	newShares, err := addU64(prevShares, amount)
	if err != nil {
		return nil, err
	}
	newCollateral, err := addU64(ms.m.CollateralPool, px.cost)
	if err != nil {
		return nil, err
	}
	newPaidIn, err := addU64(ms.m.PaidIn, px.cost)
	if err != nil {
		return nil, err
	}

	var newOutstanding uint64
	if side == domain.SideYes {
		newOutstanding, err = addU64(ms.m.OutstandingYes, amount)
	} else {
		newOutstanding, err = addU64(ms.m.OutstandingNo, amount)
	}
	if err != nil {
		return nil, err
	}

	if side == domain.SideYes {
		ms.m.YesPool = px.newSide
		ms.m.NoPool = px.newOther
		ms.m.OutstandingYes = newOutstanding
	} else {
		ms.m.NoPool = px.newSide
		ms.m.YesPool = px.newOther
		ms.m.OutstandingNo = newOutstanding
	}
	ms.m.CollateralPool = newCollateral
	ms.m.PaidIn = newPaidIn
	ms.m.UpdatedAt = now
	ms.setShares(account, side, newShares)

	revert := func() {
		ms.m = prev
		ms.setShares(account, side, prevShares)
	}
	return revert, nil
}

// applyClaim burns shares and drains the collateral pool for one payout,
// returning a revert closure. Callers must hold ms.mu.
func (ms *marketState) applyClaim(account common.Address, side domain.Side, burn, payout uint64, now time.Time) (func(), error) {
	prev := ms.m
	prevShares := ms.shares(account, side)

	newShares, err := subU64(prevShares, burn)
	if err != nil {
		return nil, err
	}
	newCollateral, err := subU64(ms.m.CollateralPool, payout)
	if err != nil {
		return nil, err
	}
	newPaidOut, err := addU64(ms.m.PaidOut, payout)
	if err != nil {
		return nil, err
	}

	var newOutstanding uint64
	if side == domain.SideYes {
		newOutstanding, err = subU64(ms.m.OutstandingYes, burn)
	} else {
		newOutstanding, err = subU64(ms.m.OutstandingNo, burn)
	}
	if err != nil {
		return nil, err
	}

	if side == domain.SideYes {
		ms.m.OutstandingYes = newOutstanding
	} else {
		ms.m.OutstandingNo = newOutstanding
	}
	ms.m.CollateralPool = newCollateral
	ms.m.PaidOut = newPaidOut
	ms.m.UpdatedAt = now
	ms.setShares(account, side, newShares)

	revert := func() {
		ms.m = prev
		ms.setShares(account, side, prevShares)
	}
	return revert, nil
}

// checkInvariants verifies the aggregate's structural invariants. It is run
// after every mutation; a failure means a bug in the engine itself, not bad
// caller input.
func (ms *marketState) checkInvariants() error {
	m := ms.m

	if m.State == domain.MarketStateOpen || m.State == domain.MarketStateResolved || m.State == domain.MarketStateInvalid {
		if m.YesPool == 0 || m.NoPool == 0 {
			return fmt.Errorf("market %s: reserve collapsed to zero: %w", m.ID, domain.ErrPoolExhausted)
		}
	}

	// While the market trades, each pool grows only when its own shares are
	// minted; the complement pool can shed rounding dust but never gains. So
	// a pool may sit below, never above, seed plus minted shares. Claims burn
	// outstanding without touching pools, so the bound stops applying once
	// the market leaves Open.
	if m.State == domain.MarketStateOpen {
		for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
			ceil, err := addU64(m.InitialLiquidity, m.Outstanding(side))
			if err != nil {
				return err
			}
			if m.Pool(side) > ceil {
				return fmt.Errorf("market %s: %s pool %d exceeds seed plus %d outstanding shares",
					m.ID, side, m.Pool(side), m.Outstanding(side))
			}
		}
	}

	if m.PaidOut > m.PaidIn {
		return fmt.Errorf("market %s: paid out %d exceeds paid in %d", m.ID, m.PaidOut, m.PaidIn)
	}
	if m.CollateralPool != m.PaidIn-m.PaidOut {
		return fmt.Errorf("market %s: collateral pool %d != paid in %d - paid out %d",
			m.ID, m.CollateralPool, m.PaidIn, m.PaidOut)
	}

	var sumYes, sumNo uint64
	for key, shares := range ms.positions {
		if key.side == domain.SideYes {
			sumYes += shares
		} else {
			sumNo += shares
		}
	}
	if sumYes != m.OutstandingYes || sumNo != m.OutstandingNo {
		return fmt.Errorf("market %s: ledger sums (%d yes, %d no) diverge from outstanding (%d yes, %d no)",
			m.ID, sumYes, sumNo, m.OutstandingYes, m.OutstandingNo)
	}

	return nil
}
