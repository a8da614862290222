// Package engine implements the market settlement core: constant-product
// pricing, the per-account position ledger, and the resolution and payout
// state machine. The engine is the single writer for market state; callers
// persist the snapshots it hands back.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// DefaultInitialLiquidity seeds both outcome pools of a new market when the
// configuration does not override it.
const DefaultInitialLiquidity uint64 = 1_000

// Config carries engine-wide parameters.
type Config struct {
	// InitialLiquidity is the per-side reserve seed for new markets.
	InitialLiquidity uint64

	// DefaultFeeRateBps is applied when CreateParams omits the fee rate.
	// A zero default leaves omitted fees at zero.
	DefaultFeeRateBps uint64

	// Owner may force any non-terminal market to Invalid. Operational
	// escape hatch, not part of normal flow.
	Owner common.Address
}

// Engine manages every live market. Operations on one market serialize on
// that market's lock; different markets execute concurrently. External
// collateral transfers happen strictly after internal state is updated, and
// a failed transfer reverts the whole operation.
type Engine struct {
	cfg      Config
	treasury domain.Treasury
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	markets map[string]*marketState
}

// New creates an Engine with the given treasury capability.
func New(cfg Config, treasury domain.Treasury, logger *slog.Logger) *Engine {
	if cfg.InitialLiquidity == 0 {
		cfg.InitialLiquidity = DefaultInitialLiquidity
	}
	return &Engine{
		cfg:      cfg,
		treasury: treasury,
		logger:   logger.With(slog.String("component", "engine")),
		now:      time.Now,
		markets:  make(map[string]*marketState),
	}
}

// SetClock overrides the engine's time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// CreateParams are the immutable fields of a new market.
type CreateParams struct {
	ID         string // generated when empty
	Question   string
	Creator    common.Address
	Oracle     common.Address
	EndTime    time.Time
	FeeRateBps uint64
}

// CreateMarket registers a new Open market with both pools seeded at the
// configured initial liquidity.
func (e *Engine) CreateMarket(ctx context.Context, p CreateParams) (domain.Market, error) {
	now := e.now()

	if p.Question == "" {
		return domain.Market{}, fmt.Errorf("engine: empty question: %w", domain.ErrInvalidAmount)
	}
	if !p.EndTime.After(now) {
		return domain.Market{}, fmt.Errorf("engine: end time %s not in the future: %w", p.EndTime, domain.ErrMarketExpired)
	}
	feeRate := p.FeeRateBps
	if feeRate == 0 {
		feeRate = e.cfg.DefaultFeeRateBps
	}
	if feeRate > bpsDenominator {
		return domain.Market{}, fmt.Errorf("engine: fee rate %d bps out of range: %w", feeRate, domain.ErrInvalidAmount)
	}
	if p.Oracle == (common.Address{}) {
		return domain.Market{}, fmt.Errorf("engine: zero oracle address: %w", domain.ErrUnauthorized)
	}

	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}

	m := domain.Market{
		ID:               id,
		Question:         p.Question,
		Creator:          p.Creator,
		Oracle:           p.Oracle,
		EndTime:          p.EndTime,
		FeeRateBps:       feeRate,
		YesPool:          e.cfg.InitialLiquidity,
		NoPool:           e.cfg.InitialLiquidity,
		InitialLiquidity: e.cfg.InitialLiquidity,
		State:            domain.MarketStateOpen,
		Outcome:          domain.OutcomePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.markets[id]; exists {
		return domain.Market{}, fmt.Errorf("engine: market %s already exists", id)
	}
	e.markets[id] = newMarketState(m)

	e.logger.InfoContext(ctx, "market created",
		slog.String("market_id", id),
		slog.String("question", p.Question),
		slog.Time("end_time", p.EndTime),
		slog.Uint64("fee_rate_bps", feeRate),
	)
	return m, nil
}

// Restore loads a persisted market and its positions into the engine, used
// at startup to hydrate state from the database. The restored aggregate must
// satisfy the engine invariants.
func (e *Engine) Restore(m domain.Market, positions []domain.Position) error {
	ms := newMarketState(m)
	for _, p := range positions {
		if p.MarketID != m.ID {
			return fmt.Errorf("engine: position for market %s restored into %s", p.MarketID, m.ID)
		}
		if !p.Side.Valid() {
			return fmt.Errorf("engine: restore market %s: %w", m.ID, domain.ErrInvalidOutcome)
		}
		ms.setShares(p.Account, p.Side, p.Shares)
	}
	if err := ms.checkInvariants(); err != nil {
		return fmt.Errorf("engine: restore: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.markets[m.ID]; exists {
		return fmt.Errorf("engine: market %s already loaded", m.ID)
	}
	e.markets[m.ID] = ms
	return nil
}

// get returns the live aggregate for a market ID.
func (e *Engine) get(id string) (*marketState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ms, ok := e.markets[id]
	if !ok {
		return nil, fmt.Errorf("engine: market %s: %w", id, domain.ErrNotFound)
	}
	return ms, nil
}

// MarketIDs returns the IDs of every loaded market.
func (e *Engine) MarketIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.markets))
	for id := range e.markets {
		ids = append(ids, id)
	}
	return ids
}

// Market returns a snapshot of one market record.
func (e *Engine) Market(id string) (domain.Market, error) {
	ms, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.m, nil
}

// Snapshot returns the market record together with the full position ledger.
func (e *Engine) Snapshot(id string) (domain.Market, []domain.Position, error) {
	ms, err := e.get(id)
	if err != nil {
		return domain.Market{}, nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	m, positions := ms.snapshot()
	return m, positions, nil
}

// Position returns the share balance for one (market, account, side).
func (e *Engine) Position(id string, account common.Address, side domain.Side) (uint64, error) {
	ms, err := e.get(id)
	if err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.shares(account, side), nil
}

// Quote prices a prospective purchase of amount shares without mutating any
// state. The same preconditions as Trade apply.
func (e *Engine) Quote(ctx context.Context, id string, side domain.Side, amount uint64) (domain.Quote, error) {
	ms, err := e.get(id)
	if err != nil {
		return domain.Quote{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := e.tradable(ms, side, amount); err != nil {
		return domain.Quote{}, err
	}

	px, err := priceShares(ms.m.Pool(side), ms.m.Pool(side.Opposite()), amount, ms.m.FeeRateBps)
	if err != nil {
		return domain.Quote{}, err
	}

	return domain.Quote{
		MarketID:     id,
		Side:         side,
		Amount:       amount,
		BaseCost:     px.baseCost,
		Fee:          px.fee,
		Cost:         px.cost,
		NewSidePrice: sidePriceBps(px.newSide, px.newOther),
	}, nil
}

// tradable checks the shared trade/quote preconditions. Callers hold ms.mu.
func (e *Engine) tradable(ms *marketState, side domain.Side, amount uint64) error {
	if !side.Valid() {
		return fmt.Errorf("engine: side %q: %w", side, domain.ErrInvalidOutcome)
	}
	if amount == 0 {
		return domain.ErrInvalidAmount
	}
	if ms.m.State != domain.MarketStateOpen {
		return fmt.Errorf("engine: market %s in state %s: %w", ms.m.ID, ms.m.State, domain.ErrMarketNotOpen)
	}
	if ms.m.Expired(e.now()) {
		return fmt.Errorf("engine: market %s past end time: %w", ms.m.ID, domain.ErrMarketExpired)
	}
	return nil
}

// Trade executes an all-or-nothing purchase of amount shares of side for
// account, spending at most payment collateral. Internal state is updated
// first; the collateral withdrawal is the final step and a failure there
// reverts the entire operation. Only the realized cost is ever withdrawn, so
// the payment excess (the refund) never leaves the payer's balance.
func (e *Engine) Trade(ctx context.Context, id string, account common.Address, side domain.Side, amount, payment uint64) (domain.TradeReceipt, error) {
	ms, err := e.get(id)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := e.now()
	if err := e.tradable(ms, side, amount); err != nil {
		return domain.TradeReceipt{}, err
	}

	px, err := priceShares(ms.m.Pool(side), ms.m.Pool(side.Opposite()), amount, ms.m.FeeRateBps)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	if payment < px.cost {
		return domain.TradeReceipt{}, fmt.Errorf("engine: payment %d below cost %d: %w", payment, px.cost, domain.ErrInsufficientPayment)
	}

	revert, err := ms.applyTrade(account, side, amount, px, now)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	if err := ms.checkInvariants(); err != nil {
		revert()
		return domain.TradeReceipt{}, err
	}

	// Transfer last: settle the realized cost against the payer.
	if err := e.treasury.Withdraw(ctx, account, px.cost); err != nil {
		revert()
		return domain.TradeReceipt{}, fmt.Errorf("engine: withdraw %d from %s: %w (%v)", px.cost, account, domain.ErrTransferFailed, err)
	}

	receipt := domain.TradeReceipt{
		MarketID:     id,
		Account:      account,
		Side:         side,
		Shares:       amount,
		BaseCost:     px.baseCost,
		Fee:          px.fee,
		Cost:         px.cost,
		Refund:       payment - px.cost,
		NewSidePrice: sidePriceBps(px.newSide, px.newOther),
		ExecutedAt:   now,
	}

	e.logger.InfoContext(ctx, "trade executed",
		slog.String("market_id", id),
		slog.String("account", account.Hex()),
		slog.String("side", string(side)),
		slog.Uint64("shares", amount),
		slog.Uint64("cost", px.cost),
		slog.Uint64("new_side_price_bps", receipt.NewSidePrice),
	)
	return receipt, nil
}

// Claim burns burn shares of side held by account against a terminal market
// and pays out the pro-rata slice of the collateral pool. For Resolved
// markets only the winning side is claimable; for Invalid markets shares of
// either side redeem against the combined outstanding total.
func (e *Engine) Claim(ctx context.Context, id string, account common.Address, side domain.Side, burn uint64) (domain.Payout, error) {
	ms, err := e.get(id)
	if err != nil {
		return domain.Payout{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := e.now()
	if !side.Valid() {
		return domain.Payout{}, fmt.Errorf("engine: side %q: %w", side, domain.ErrInvalidOutcome)
	}
	if burn == 0 {
		return domain.Payout{}, domain.ErrInvalidAmount
	}

	var total uint64
	switch ms.m.State {
	case domain.MarketStateResolved:
		if side.Outcome() != ms.m.Outcome {
			return domain.Payout{}, fmt.Errorf("engine: side %s did not win market %s: %w", side, id, domain.ErrNoWinningShares)
		}
		total = ms.m.Outstanding(side)
	case domain.MarketStateInvalid:
		// Pro-rata refund over both sides' outstanding shares.
		total, err = ms.outstandingTotal()
		if err != nil {
			return domain.Payout{}, err
		}
	case domain.MarketStateOpen:
		return domain.Payout{}, fmt.Errorf("engine: market %s still open: %w", id, domain.ErrMarketNotOpen)
	default:
		return domain.Payout{}, fmt.Errorf("engine: market %s cancelled: %w", id, domain.ErrNoWinningShares)
	}

	held := ms.shares(account, side)
	if held == 0 || held < burn {
		return domain.Payout{}, fmt.Errorf("engine: account %s holds %d %s shares, burn %d: %w",
			account, held, side, burn, domain.ErrNoWinningShares)
	}
	if total == 0 {
		return domain.Payout{}, fmt.Errorf("engine: no outstanding shares on market %s: %w", id, domain.ErrNoWinningShares)
	}

	// Both numerator and denominator shrink by the amounts already claimed,
	// so sequential claimants split the pool at the same ratio.
	payout, err := mulDivFloor(ms.m.CollateralPool, burn, total)
	if err != nil {
		return domain.Payout{}, err
	}
	if payout == 0 {
		return domain.Payout{}, fmt.Errorf("engine: zero payout for %d shares: %w", burn, domain.ErrNoWinningShares)
	}

	revert, err := ms.applyClaim(account, side, burn, payout, now)
	if err != nil {
		return domain.Payout{}, err
	}

	if err := ms.checkInvariants(); err != nil {
		revert()
		return domain.Payout{}, err
	}

	// Transfer last.
	if err := e.treasury.Deposit(ctx, account, payout); err != nil {
		revert()
		return domain.Payout{}, fmt.Errorf("engine: deposit %d to %s: %w (%v)", payout, account, domain.ErrTransferFailed, err)
	}

	e.logger.InfoContext(ctx, "payout claimed",
		slog.String("market_id", id),
		slog.String("account", account.Hex()),
		slog.Uint64("burned", burn),
		slog.Uint64("payout", payout),
	)
	return domain.Payout{
		MarketID:  id,
		Account:   account,
		Side:      side,
		Burned:    burn,
		Amount:    payout,
		ClaimedAt: now,
	}, nil
}
