package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Quote is the priced cost of minting a number of shares against the current
// reserves. Cost = BaseCost + Fee. It carries no side effects; the same
// numbers are recomputed inside the trade operation.
type Quote struct {
	MarketID string `json:"market_id"`
	Side     Side   `json:"side"`
	Amount   uint64 `json:"amount"`
	BaseCost uint64 `json:"base_cost"`
	Fee      uint64 `json:"fee"`
	Cost     uint64 `json:"cost"`

	// NewSidePrice is the post-trade marginal price of the requested side in
	// basis points of one collateral unit per share (complement reserve over
	// total reserves).
	NewSidePrice uint64 `json:"new_side_price_bps"`
}

// TradeReceipt reports the realized effect of one executed trade.
type TradeReceipt struct {
	MarketID string         `json:"market_id"`
	Account  common.Address `json:"account"`
	Side     Side           `json:"side"`
	Shares   uint64         `json:"shares"`
	BaseCost uint64         `json:"base_cost"`
	Fee      uint64         `json:"fee"`
	Cost     uint64         `json:"cost"`

	// Refund is the unconsumed portion of the supplied payment. The engine
	// only ever collects Cost, so the refund never leaves the payer's
	// balance; it is reported for parity with the quoted maximum.
	Refund uint64 `json:"refund"`

	NewSidePrice uint64    `json:"new_side_price_bps"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// Payout reports the result of one claim against a terminal market.
type Payout struct {
	MarketID  string         `json:"market_id"`
	Account   common.Address `json:"account"`
	Side      Side           `json:"side"`
	Burned    uint64         `json:"burned"`
	Amount    uint64         `json:"amount"`
	ClaimedAt time.Time      `json:"claimed_at"`
}
