package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/obmx/pool-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. Amounts are stored as BIGINT base units; the display decimal
// is reconstructed from the integer price on read.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, collateral_token, status, created_at)
		 VALUES ($1, $2, $3, $4)`,
		m.ID, m.CollateralToken, m.Status, m.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	var m model.Market
	err := s.pool.QueryRow(ctx,
		`SELECT id, collateral_token, status, created_at
		 FROM markets WHERE id = $1`, id).
		Scan(&m.ID, &m.CollateralToken, &m.Status, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return &m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, collateral_token, status, created_at
		 FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		var m model.Market
		if err := rows.Scan(&m.ID, &m.CollateralToken, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) SetMarketStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, type, market_id, side, kind, price, actor, amount, proceeds, sources, price_decimal, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::NUMERIC, $12)`,
		e.ID, e.Type, e.MarketID, e.Side, e.Kind, int64(e.Price), e.Actor,
		int64(e.Amount), int64(e.Proceeds), e.Sources,
		e.PriceDecimal.String(), e.Timestamp,
	)
	return err
}

const eventColumns = `id, type, market_id, side, kind, price, actor, amount, proceeds, sources, price_decimal::TEXT, timestamp`

func (s *PostgresStore) EventsByMarket(ctx context.Context, marketID string, limit int) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE market_id = $1 ORDER BY timestamp
		 LIMIT NULLIF($2, 0)`, marketID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) EventsByActor(ctx context.Context, actor string, limit int) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE actor = $1 ORDER BY timestamp
		 LIMIT NULLIF($2, 0)`, actor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		var price, amount, proceeds int64
		var priceDec string

		if err := rows.Scan(&e.ID, &e.Type, &e.MarketID, &e.Side, &e.Kind,
			&price, &e.Actor, &amount, &proceeds, &e.Sources,
			&priceDec, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Price = uint32(price)
		e.Amount = uint64(amount)
		e.Proceeds = uint64(proceeds)
		e.PriceDecimal, _ = decimal.NewFromString(priceDec)

		events = append(events, e)
	}
	return events, rows.Err()
}
