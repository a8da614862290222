package domain

import (
	"context"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists market records.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	ListByState(ctx context.Context, state MarketState, opts ListOpts) ([]Market, error)
	ListAll(ctx context.Context) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// PositionStore persists per-(market, account, side) share balances.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	Get(ctx context.Context, marketID string, account common.Address, side Side) (Position, error)
	ListByMarket(ctx context.Context, marketID string) ([]Position, error)
	ListByAccount(ctx context.Context, account common.Address, opts ListOpts) ([]Position, error)
}

// SettlementEntry is one row of the append-only settlement log.
type SettlementEntry struct {
	ID        int64
	MarketID  string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// SettlementLogStore persists the append-only settlement audit trail.
type SettlementLogStore interface {
	Log(ctx context.Context, marketID, event string, detail map[string]any) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]SettlementEntry, error)
}

// MarketCache caches market snapshots for read paths.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// SignalBus publishes and subscribes to engine events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides a cross-instance advisory lock, used to fence
// administrative operations (hydration, archive sweeps) when more than one
// service instance shares the same database.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Treasury is the payment capability of the external ledger service. The
// engine calls it strictly after all internal state has been updated;
// implementations must be atomic per call.
type Treasury interface {
	// Withdraw moves amount out of the account's spendable balance into
	// market escrow. It returns ErrTransferFailed when the balance is short.
	Withdraw(ctx context.Context, account common.Address, amount uint64) error

	// Deposit moves amount from market escrow back into the account's
	// spendable balance.
	Deposit(ctx context.Context, account common.Address, amount uint64) error
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver writes settlement records of terminal markets to blob storage.
type Archiver interface {
	ArchiveMarket(ctx context.Context, marketID string) (string, error)
}
