package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Upsert writes a position's current share balance. A zero balance is stored
// rather than deleted so account history remains queryable.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (market_id, account, side, shares, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (market_id, account, side) DO UPDATE SET
			shares     = EXCLUDED.shares,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.MarketID, p.Account.Hex(), string(p.Side), int64(p.Shares),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s/%s: %w",
			p.MarketID, p.Account.Hex(), p.Side, err)
	}
	return nil
}

const positionCols = `market_id, account, side, shares, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p       domain.Position
		account string
		side    string
		shares  int64
	)
	if err := row.Scan(&p.MarketID, &account, &side, &shares, &p.UpdatedAt); err != nil {
		return domain.Position{}, err
	}
	p.Account = common.HexToAddress(account)
	p.Side = domain.Side(side)
	p.Shares = uint64(shares)
	return p, nil
}

// Get retrieves one position by its composite key.
func (s *PositionStore) Get(ctx context.Context, marketID string, account common.Address, side domain.Side) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE market_id = $1 AND account = $2 AND side = $3`,
		marketID, account.Hex(), string(side))
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s/%s: %w",
			marketID, account.Hex(), side, err)
	}
	return p, nil
}

// ListByMarket returns all positions recorded for a market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE market_id = $1 ORDER BY account, side`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for market %s: %w", marketID, err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

// ListByAccount returns an account's positions across markets, most recently
// updated first.
func (s *PositionStore) ListByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions
		WHERE account = $1 ORDER BY updated_at DESC`
	query, args := paginate(query, []any{account.Hex()}, 2, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for account %s: %w", account.Hex(), err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: position rows: %w", err)
	}
	return positions, nil
}
