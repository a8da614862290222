package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketState represents the lifecycle state of a market. Open is the only
// state that accepts trades; the other three are terminal.
type MarketState string

const (
	MarketStateOpen      MarketState = "open"
	MarketStateResolved  MarketState = "resolved"
	MarketStateInvalid   MarketState = "invalid"
	MarketStateCancelled MarketState = "cancelled"
)

// Terminal reports whether the state permits no further transition.
func (s MarketState) Terminal() bool {
	return s == MarketStateResolved || s == MarketStateInvalid || s == MarketStateCancelled
}

// Outcome is the reported result of a market's proposition.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeYes     Outcome = "yes"
	OutcomeNo      Outcome = "no"
	OutcomeInvalid Outcome = "invalid"
)

// Side identifies one of the two outcome pools of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether the side is one of the two tradable sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the complement side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Outcome converts a winning side into the corresponding outcome value.
func (s Side) Outcome() Outcome {
	if s == SideYes {
		return OutcomeYes
	}
	return OutcomeNo
}

// Market is the persisted record of one audit prediction market. Pool and
// collateral quantities are integer amounts in the collateral token's
// smallest unit. The engine owns all mutation; everything else reads
// snapshots.
type Market struct {
	ID         string         `json:"id"`
	Question   string         `json:"question"`
	Creator    common.Address `json:"creator"`
	Oracle     common.Address `json:"oracle"`
	EndTime    time.Time      `json:"end_time"`
	FeeRateBps uint64         `json:"fee_rate_bps"`

	// AMM reserves, seeded with InitialLiquidity on both sides.
	YesPool          uint64 `json:"yes_pool"`
	NoPool           uint64 `json:"no_pool"`
	InitialLiquidity uint64 `json:"initial_liquidity"`

	// CollateralPool is the escrow backing all outstanding shares.
	CollateralPool uint64 `json:"collateral_pool"`

	// OutstandingYes/No mirror the sum of all account share balances per
	// side; they shrink as claims burn shares.
	OutstandingYes uint64 `json:"outstanding_yes"`
	OutstandingNo  uint64 `json:"outstanding_no"`

	// PaidIn and PaidOut are lifetime conservation counters:
	// CollateralPool == PaidIn - PaidOut at all times.
	PaidIn  uint64 `json:"paid_in"`
	PaidOut uint64 `json:"paid_out"`

	State   MarketState `json:"state"`
	Outcome Outcome     `json:"outcome"`

	ResolvedBy *common.Address `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Pool returns the reserve for the given side.
func (m Market) Pool(side Side) uint64 {
	if side == SideYes {
		return m.YesPool
	}
	return m.NoPool
}

// Outstanding returns the total shares outstanding for the given side.
func (m Market) Outstanding(side Side) uint64 {
	if side == SideYes {
		return m.OutstandingYes
	}
	return m.OutstandingNo
}

// Expired reports whether the market's trading window has closed at now.
func (m Market) Expired(now time.Time) bool {
	return !now.Before(m.EndTime)
}
