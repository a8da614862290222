package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event channel names used on the signal bus. The WebSocket hub relays these
// to connected clients; external indexers subscribe to them instead of
// polling market state.
const (
	ChannelTrades      = "ch:trades"
	ChannelResolutions = "ch:resolutions"
	ChannelPayouts     = "ch:payouts"
	ChannelMarkets     = "ch:markets"
)

// TradeExecutedEvent is published after every successful trade.
type TradeExecutedEvent struct {
	Event        string         `json:"event"` // "trade_executed"
	MarketID     string         `json:"market_id"`
	Account      common.Address `json:"account"`
	Side         Side           `json:"side"`
	Shares       uint64         `json:"shares"`
	Cost         uint64         `json:"cost"`
	NewSidePrice uint64         `json:"new_side_price_bps"`
	Timestamp    time.Time      `json:"timestamp"`
}

// MarketResolvedEvent is published when a market leaves the Open state.
type MarketResolvedEvent struct {
	Event     string         `json:"event"` // "market_resolved"
	MarketID  string         `json:"market_id"`
	Outcome   Outcome        `json:"outcome"`
	Resolver  common.Address `json:"resolver"`
	Timestamp time.Time      `json:"timestamp"`
}

// PayoutClaimedEvent is published after every successful claim.
type PayoutClaimedEvent struct {
	Event     string         `json:"event"` // "payout_claimed"
	MarketID  string         `json:"market_id"`
	Account   common.Address `json:"account"`
	Amount    uint64         `json:"amount"`
	Timestamp time.Time      `json:"timestamp"`
}

// MarketCreatedEvent is published when a new market opens.
type MarketCreatedEvent struct {
	Event     string    `json:"event"` // "market_created"
	MarketID  string    `json:"market_id"`
	Question  string    `json:"question"`
	EndTime   time.Time `json:"end_time"`
	Timestamp time.Time `json:"timestamp"`
}
