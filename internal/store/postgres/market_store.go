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

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or updates a single market snapshot.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, creator, oracle, end_time, fee_rate_bps,
			yes_pool, no_pool, initial_liquidity,
			collateral_pool, outstanding_yes, outstanding_no,
			paid_in, paid_out, state, outcome,
			resolved_by, resolved_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			yes_pool        = EXCLUDED.yes_pool,
			no_pool         = EXCLUDED.no_pool,
			collateral_pool = EXCLUDED.collateral_pool,
			outstanding_yes = EXCLUDED.outstanding_yes,
			outstanding_no  = EXCLUDED.outstanding_no,
			paid_in         = EXCLUDED.paid_in,
			paid_out        = EXCLUDED.paid_out,
			state           = EXCLUDED.state,
			outcome         = EXCLUDED.outcome,
			resolved_by     = EXCLUDED.resolved_by,
			resolved_at     = EXCLUDED.resolved_at,
			updated_at      = NOW()`

	var resolvedBy *string
	if m.ResolvedBy != nil {
		hex := m.ResolvedBy.Hex()
		resolvedBy = &hex
	}

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Creator.Hex(), m.Oracle.Hex(), m.EndTime, int64(m.FeeRateBps),
		int64(m.YesPool), int64(m.NoPool), int64(m.InitialLiquidity),
		int64(m.CollateralPool), int64(m.OutstandingYes), int64(m.OutstandingNo),
		int64(m.PaidIn), int64(m.PaidOut), string(m.State), string(m.Outcome),
		resolvedBy, m.ResolvedAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

const marketCols = `id, question, creator, oracle, end_time, fee_rate_bps,
	yes_pool, no_pool, initial_liquidity,
	collateral_pool, outstanding_yes, outstanding_no,
	paid_in, paid_out, state, outcome,
	resolved_by, resolved_at, created_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m          domain.Market
		creator    string
		oracle     string
		state      string
		outcome    string
		resolvedBy *string

		feeRateBps, yesPool, noPool, initialLiquidity int64
		collateralPool, outstandingYes, outstandingNo int64
		paidIn, paidOut                               int64
	)
	err := row.Scan(
		&m.ID, &m.Question, &creator, &oracle, &m.EndTime, &feeRateBps,
		&yesPool, &noPool, &initialLiquidity,
		&collateralPool, &outstandingYes, &outstandingNo,
		&paidIn, &paidOut, &state, &outcome,
		&resolvedBy, &m.ResolvedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.Creator = common.HexToAddress(creator)
	m.Oracle = common.HexToAddress(oracle)
	m.FeeRateBps = uint64(feeRateBps)
	m.YesPool = uint64(yesPool)
	m.NoPool = uint64(noPool)
	m.InitialLiquidity = uint64(initialLiquidity)
	m.CollateralPool = uint64(collateralPool)
	m.OutstandingYes = uint64(outstandingYes)
	m.OutstandingNo = uint64(outstandingNo)
	m.PaidIn = uint64(paidIn)
	m.PaidOut = uint64(paidOut)
	m.State = domain.MarketState(state)
	m.Outcome = domain.Outcome(outcome)
	if resolvedBy != nil {
		addr := common.HexToAddress(*resolvedBy)
		m.ResolvedBy = &addr
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered by creation time, newest first.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY created_at DESC`
	query, args := paginate(query, nil, 1, opts)

	return s.queryMarkets(ctx, "list markets", query, args...)
}

// ListByState returns markets in the given lifecycle state, newest first.
func (s *MarketStore) ListByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE state = $1 ORDER BY created_at DESC`
	query, args := paginate(query, []any{string(state)}, 2, opts)

	return s.queryMarkets(ctx, "list markets by state", query, args...)
}

// ListAll returns every market without pagination. The engine uses it to
// hydrate in-memory state at startup.
func (s *MarketStore) ListAll(ctx context.Context) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY created_at ASC`
	return s.queryMarkets(ctx, "list all markets", query)
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

func (s *MarketStore) queryMarkets(ctx context.Context, op, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s scan: %w", op, err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return markets, nil
}

// paginate appends LIMIT/OFFSET clauses for the given options, continuing the
// placeholder numbering at argIdx.
func paginate(query string, args []any, argIdx int, opts domain.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
