package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position is one account's share balance on one side of a market. Shares
// are created by trades and burned to zero only by claims.
type Position struct {
	MarketID  string         `json:"market_id"`
	Account   common.Address `json:"account"`
	Side      Side           `json:"side"`
	Shares    uint64         `json:"shares"`
	UpdatedAt time.Time      `json:"updated_at"`
}
