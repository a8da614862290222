// Package service orchestrates the settlement engine with persistence,
// caching, and event publication. The engine owns market state; services write
// snapshots through the stores and relay events on the signal bus.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/crypto"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/engine"
)

// hydrateLockTTL bounds how long the startup hydration lock is held when an
// instance crashes mid-hydration.
const hydrateLockTTL = 2 * time.Minute

// SettlementService exposes the full market lifecycle: create, quote, trade,
// resolve, claim. Every mutation goes through the engine first; the resulting
// snapshot is then written to the store, the cache is refreshed, the
// settlement log is appended, and an event is published.
//
// Persistence, cache, and bus failures after a successful engine mutation are
// logged and not returned: the engine is the source of truth, snapshots are
// written whole, and the next successful write self-heals any gap.
type SettlementService struct {
	engine    *engine.Engine
	markets   domain.MarketStore
	positions domain.PositionStore
	setlog    domain.SettlementLogStore
	cache     domain.MarketCache
	bus       domain.SignalBus
	locks     domain.LockManager
	logger    *slog.Logger

	requireSignedReports bool
}

// NewSettlementService creates a SettlementService with all required
// dependencies. locks may be nil when running a single instance.
func NewSettlementService(
	eng *engine.Engine,
	markets domain.MarketStore,
	positions domain.PositionStore,
	setlog domain.SettlementLogStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	locks domain.LockManager,
	requireSignedReports bool,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		engine:               eng,
		markets:              markets,
		positions:            positions,
		setlog:               setlog,
		cache:                cache,
		bus:                  bus,
		locks:                locks,
		logger:               logger,
		requireSignedReports: requireSignedReports,
	}
}

// Hydrate loads every persisted market and its positions into the engine.
// Call once at startup, before the server accepts requests. When a lock
// manager is configured the hydration is fenced against concurrent instances.
func (s *SettlementService) Hydrate(ctx context.Context) error {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "hydrate", hydrateLockTTL)
		if err != nil {
			return fmt.Errorf("settlement: hydrate lock: %w", err)
		}
		defer unlock()
	}

	markets, err := s.markets.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("settlement: hydrate list markets: %w", err)
	}

	for _, m := range markets {
		positions, err := s.positions.ListByMarket(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("settlement: hydrate positions for %s: %w", m.ID, err)
		}
		if err := s.engine.Restore(m, positions); err != nil {
			return fmt.Errorf("settlement: hydrate restore %s: %w", m.ID, err)
		}
	}

	s.logger.InfoContext(ctx, "settlement: hydrated engine",
		slog.Int("markets", len(markets)),
	)
	return nil
}

// CreateMarket opens a new market and persists its initial snapshot.
func (s *SettlementService) CreateMarket(ctx context.Context, p engine.CreateParams) (domain.Market, error) {
	m, err := s.engine.CreateMarket(ctx, p)
	if err != nil {
		return domain.Market{}, err
	}

	s.persistMarket(ctx, m)
	s.appendLog(ctx, m.ID, "created", map[string]any{
		"question": m.Question,
		"oracle":   m.Oracle.Hex(),
		"end_time": m.EndTime.Format(time.RFC3339),
	})
	s.publish(ctx, domain.ChannelMarkets, domain.MarketCreatedEvent{
		Event:     "market_created",
		MarketID:  m.ID,
		Question:  m.Question,
		EndTime:   m.EndTime,
		Timestamp: m.CreatedAt,
	})

	return m, nil
}

// GetMarket retrieves a market snapshot, checking the cache first and falling
// back to the engine on a miss.
func (s *SettlementService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if m, err := s.cache.Get(ctx, id); err == nil {
		return m, nil
	}

	m, err := s.engine.Market(id)
	if err != nil {
		return domain.Market{}, err
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "settlement: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// ListMarkets returns market snapshots from the persistent store.
func (s *SettlementService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.markets.List(ctx, opts)
}

// ListMarketsByState returns markets in one lifecycle state.
func (s *SettlementService) ListMarketsByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	return s.markets.ListByState(ctx, state, opts)
}

// Quote prices a prospective share purchase without side effects.
func (s *SettlementService) Quote(ctx context.Context, id string, side domain.Side, amount uint64) (domain.Quote, error) {
	return s.engine.Quote(ctx, id, side, amount)
}

// Trade executes a share purchase and persists the resulting snapshot.
func (s *SettlementService) Trade(ctx context.Context, id string, account common.Address, side domain.Side, amount, payment uint64) (domain.TradeReceipt, error) {
	receipt, err := s.engine.Trade(ctx, id, account, side, amount, payment)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	s.persistAfter(ctx, id, account, side)
	s.appendLog(ctx, id, "trade", map[string]any{
		"account": account.Hex(),
		"side":    string(side),
		"shares":  receipt.Shares,
		"cost":    receipt.Cost,
	})
	s.publish(ctx, domain.ChannelTrades, domain.TradeExecutedEvent{
		Event:        "trade_executed",
		MarketID:     id,
		Account:      account,
		Side:         side,
		Shares:       receipt.Shares,
		Cost:         receipt.Cost,
		NewSidePrice: receipt.NewSidePrice,
		Timestamp:    receipt.ExecutedAt,
	})

	return receipt, nil
}

// Report records the oracle's outcome for a market. When signed reports are
// required, sigHex must be a signature over the report produced by the
// market's oracle key.
func (s *SettlementService) Report(ctx context.Context, id string, reporter common.Address, side domain.Side, sigHex string) (domain.Market, error) {
	if s.requireSignedReports {
		if sigHex == "" {
			return domain.Market{}, fmt.Errorf("settlement: report for %s: %w: signature required", id, domain.ErrUnauthorized)
		}
		signer, err := crypto.RecoverReporter(id, string(side.Outcome()), sigHex)
		if err != nil {
			return domain.Market{}, fmt.Errorf("settlement: report for %s: %w", id, err)
		}
		if signer != reporter {
			return domain.Market{}, fmt.Errorf("settlement: report for %s: %w: signer %s is not reporter", id, domain.ErrUnauthorized, signer.Hex())
		}
	}

	m, err := s.engine.Report(ctx, id, reporter, side)
	if err != nil {
		return domain.Market{}, err
	}

	s.finishResolution(ctx, m, reporter)
	return m, nil
}

// ResolveExpired voids a market whose trading window closed without an
// oracle report. Anyone may call it.
func (s *SettlementService) ResolveExpired(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.engine.ResolveExpired(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}

	s.finishResolution(ctx, m, common.Address{})
	return m, nil
}

// EmergencyResolveInvalid lets the engine owner void a market regardless of
// its trading window.
func (s *SettlementService) EmergencyResolveInvalid(ctx context.Context, id string, caller common.Address) (domain.Market, error) {
	m, err := s.engine.EmergencyResolveInvalid(ctx, id, caller)
	if err != nil {
		return domain.Market{}, err
	}

	s.finishResolution(ctx, m, caller)
	return m, nil
}

// Cancel voids a market with no trading activity. Only the creator may call
// it.
func (s *SettlementService) Cancel(ctx context.Context, id string, caller common.Address) (domain.Market, error) {
	m, err := s.engine.Cancel(ctx, id, caller)
	if err != nil {
		return domain.Market{}, err
	}

	s.finishResolution(ctx, m, caller)
	return m, nil
}

// Claim burns winning (or, for voided markets, pro-rata) shares and pays the
// claimant.
func (s *SettlementService) Claim(ctx context.Context, id string, account common.Address, side domain.Side, burn uint64) (domain.Payout, error) {
	payout, err := s.engine.Claim(ctx, id, account, side, burn)
	if err != nil {
		return domain.Payout{}, err
	}

	s.persistAfter(ctx, id, account, side)
	s.appendLog(ctx, id, "claim", map[string]any{
		"account": account.Hex(),
		"side":    string(side),
		"burned":  payout.Burned,
		"amount":  payout.Amount,
	})
	s.publish(ctx, domain.ChannelPayouts, domain.PayoutClaimedEvent{
		Event:     "payout_claimed",
		MarketID:  id,
		Account:   account,
		Amount:    payout.Amount,
		Timestamp: payout.ClaimedAt,
	})

	return payout, nil
}

// Position returns one account's live share balance from the engine.
func (s *SettlementService) Position(ctx context.Context, id string, account common.Address, side domain.Side) (uint64, error) {
	return s.engine.Position(id, account, side)
}

// ListPositionsByAccount returns an account's persisted positions across
// markets.
func (s *SettlementService) ListPositionsByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	return s.positions.ListByAccount(ctx, account, opts)
}

// History returns a market's settlement log entries in insertion order.
func (s *SettlementService) History(ctx context.Context, id string, opts domain.ListOpts) ([]domain.SettlementEntry, error) {
	return s.setlog.ListByMarket(ctx, id, opts)
}

// finishResolution persists and announces a state transition out of Open.
func (s *SettlementService) finishResolution(ctx context.Context, m domain.Market, resolver common.Address) {
	s.persistMarket(ctx, m)
	s.appendLog(ctx, m.ID, "resolved", map[string]any{
		"state":    string(m.State),
		"outcome":  string(m.Outcome),
		"resolver": resolver.Hex(),
	})

	at := m.UpdatedAt
	if m.ResolvedAt != nil {
		at = *m.ResolvedAt
	}
	s.publish(ctx, domain.ChannelResolutions, domain.MarketResolvedEvent{
		Event:     "market_resolved",
		MarketID:  m.ID,
		Outcome:   m.Outcome,
		Resolver:  resolver,
		Timestamp: at,
	})
}

// persistAfter writes the market snapshot and the single mutated position.
func (s *SettlementService) persistAfter(ctx context.Context, id string, account common.Address, side domain.Side) {
	m, err := s.engine.Market(id)
	if err != nil {
		s.logger.ErrorContext(ctx, "settlement: snapshot after mutation failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	s.persistMarket(ctx, m)

	shares, err := s.engine.Position(id, account, side)
	if err != nil {
		s.logger.ErrorContext(ctx, "settlement: position read failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	pos := domain.Position{
		MarketID:  id,
		Account:   account,
		Side:      side,
		Shares:    shares,
		UpdatedAt: m.UpdatedAt,
	}
	if err := s.positions.Upsert(ctx, pos); err != nil {
		s.logger.ErrorContext(ctx, "settlement: position upsert failed",
			slog.String("market_id", id),
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// persistMarket writes a market snapshot and refreshes the cache.
func (s *SettlementService) persistMarket(ctx context.Context, m domain.Market) {
	if err := s.markets.Upsert(ctx, m); err != nil {
		s.logger.ErrorContext(ctx, "settlement: market upsert failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "settlement: cache set failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) appendLog(ctx context.Context, marketID, event string, detail map[string]any) {
	if err := s.setlog.Log(ctx, marketID, event, detail); err != nil {
		s.logger.WarnContext(ctx, "settlement: log append failed",
			slog.String("market_id", marketID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) publish(ctx context.Context, channel string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WarnContext(ctx, "settlement: event marshal failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "settlement: event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
