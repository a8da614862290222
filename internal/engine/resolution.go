package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// Report records the oracle's verdict for an Open market. Only the market's
// designated oracle may report, and only Yes or No is accepted. The market
// becomes Resolved and no further trades or reports succeed.
func (e *Engine) Report(ctx context.Context, id string, reporter common.Address, side domain.Side) (domain.Market, error) {
	ms, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !side.Valid() {
		return domain.Market{}, fmt.Errorf("engine: outcome %q: %w", side, domain.ErrInvalidOutcome)
	}
	if reporter != ms.m.Oracle {
		return domain.Market{}, fmt.Errorf("engine: %s is not the oracle for market %s: %w", reporter, id, domain.ErrUnauthorized)
	}
	if ms.m.State.Terminal() {
		return domain.Market{}, fmt.Errorf("engine: market %s already %s: %w", id, ms.m.State, domain.ErrAlreadyResolved)
	}

	e.transition(ms, domain.MarketStateResolved, side.Outcome(), reporter)

	e.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", id),
		slog.String("outcome", string(ms.m.Outcome)),
		slog.String("resolver", reporter.Hex()),
	)
	return ms.m, nil
}

// ResolveExpired forces an Open market whose end time has passed to the
// Invalid outcome. Anyone may call it; it exists so a market is never stuck
// when its oracle goes silent.
func (e *Engine) ResolveExpired(ctx context.Context, id string) (domain.Market, error) {
	ms, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.m.State.Terminal() {
		return domain.Market{}, fmt.Errorf("engine: market %s already %s: %w", id, ms.m.State, domain.ErrAlreadyResolved)
	}
	if !ms.m.Expired(e.now()) {
		return domain.Market{}, fmt.Errorf("engine: market %s ends at %s: %w", id, ms.m.EndTime, domain.ErrNotExpired)
	}

	e.transition(ms, domain.MarketStateInvalid, domain.OutcomeInvalid, common.Address{})

	e.logger.InfoContext(ctx, "market resolved by expiry", slog.String("market_id", id))
	return ms.m, nil
}

// EmergencyResolveInvalid is the owner-only escape hatch: it forces any
// non-terminal market to Invalid, releasing collateral through the pro-rata
// refund path. Intended for operational failures, not normal flow.
func (e *Engine) EmergencyResolveInvalid(ctx context.Context, id string, caller common.Address) (domain.Market, error) {
	ms, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if caller != e.cfg.Owner {
		return domain.Market{}, fmt.Errorf("engine: %s is not the engine owner: %w", caller, domain.ErrUnauthorized)
	}
	if ms.m.State.Terminal() {
		return domain.Market{}, fmt.Errorf("engine: market %s already %s: %w", id, ms.m.State, domain.ErrAlreadyResolved)
	}

	e.transition(ms, domain.MarketStateInvalid, domain.OutcomeInvalid, caller)

	e.logger.WarnContext(ctx, "market force-invalidated",
		slog.String("market_id", id),
		slog.String("caller", caller.Hex()),
	)
	return ms.m, nil
}

// Cancel retires an Open market that has seen no trade activity. Only the
// creator may cancel, and only while the collateral pool has never been
// funded; once any trade has escrowed collateral the market must run to
// resolution instead.
func (e *Engine) Cancel(ctx context.Context, id string, caller common.Address) (domain.Market, error) {
	ms, err := e.get(id)
	if err != nil {
		return domain.Market{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if caller != ms.m.Creator {
		return domain.Market{}, fmt.Errorf("engine: %s is not the creator of market %s: %w", caller, id, domain.ErrUnauthorized)
	}
	if ms.m.State.Terminal() {
		return domain.Market{}, fmt.Errorf("engine: market %s already %s: %w", id, ms.m.State, domain.ErrAlreadyResolved)
	}
	if ms.m.PaidIn > 0 {
		return domain.Market{}, fmt.Errorf("engine: market %s has escrowed collateral: %w", id, domain.ErrMarketHasActivity)
	}

	e.transition(ms, domain.MarketStateCancelled, domain.OutcomePending, caller)

	e.logger.InfoContext(ctx, "market cancelled", slog.String("market_id", id))
	return ms.m, nil
}

// transition applies the single allowed move out of Open. Callers hold
// ms.mu and have already validated the transition; this only records it.
func (e *Engine) transition(ms *marketState, state domain.MarketState, outcome domain.Outcome, by common.Address) {
	now := e.now()
	ms.m.State = state
	ms.m.Outcome = outcome
	ms.m.ResolvedAt = &now
	ms.m.UpdatedAt = now
	if by != (common.Address{}) {
		resolver := by
		ms.m.ResolvedBy = &resolver
	}
}
