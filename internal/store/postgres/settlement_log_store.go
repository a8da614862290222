package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// SettlementLogStore implements domain.SettlementLogStore using PostgreSQL.
// The log is append-only; rows are never updated or deleted.
type SettlementLogStore struct {
	pool *pgxpool.Pool
}

var _ domain.SettlementLogStore = (*SettlementLogStore)(nil)

// NewSettlementLogStore creates a new SettlementLogStore backed by the pool.
func NewSettlementLogStore(pool *pgxpool.Pool) *SettlementLogStore {
	return &SettlementLogStore{pool: pool}
}

// Log appends one entry to the settlement audit trail.
func (s *SettlementLogStore) Log(ctx context.Context, marketID, event string, detail map[string]any) error {
	if detail == nil {
		detail = map[string]any{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settlement_log (market_id, event, detail) VALUES ($1, $2, $3)`,
		marketID, event, detail)
	if err != nil {
		return fmt.Errorf("postgres: log settlement event %s for %s: %w", event, marketID, err)
	}
	return nil
}

// ListByMarket returns a market's settlement entries in insertion order.
func (s *SettlementLogStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.SettlementEntry, error) {
	query := `SELECT id, market_id, event, detail, created_at
		FROM settlement_log WHERE market_id = $1 ORDER BY id ASC`
	query, args := paginate(query, []any{marketID}, 2, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlement log for %s: %w", marketID, err)
	}
	defer rows.Close()

	var entries []domain.SettlementEntry
	for rows.Next() {
		var e domain.SettlementEntry
		if err := rows.Scan(&e.ID, &e.MarketID, &e.Event, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: settlement log rows: %w", err)
	}
	return entries, nil
}
