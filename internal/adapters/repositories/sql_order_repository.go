package repositories

import (
	"context"
	"database/sql"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// InitPostgresSchema creates the orders table on Postgres.
func InitPostgresSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init postgres schema: DB is nil")
	}

	statements := []string{
		`
		CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			customer_name TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL,
			order_details JSONB NOT NULL DEFAULT '{}'::jsonb,
			order_status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			delivered_at TIMESTAMPTZ
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(order_status);`,
	}

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init postgres schema: exec statement #%d: %w", i+1, err)
		}
	}
	return nil
}

// SQLOrderRepository is the Postgres (pgx stdlib) order store.
type SQLOrderRepository struct{ DB *sql.DB }

func NewSQLOrderRepository(db *sql.DB) *SQLOrderRepository {
	return &SQLOrderRepository{DB: db}
}

func stateStrings(states []domain.OrderState) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}
	return out
}

func (s *SQLOrderRepository) CountOrdersInStates(ctx context.Context, states []domain.OrderState) (_ int, err error) {
	defer obs.Time(ctx, "sql.CountOrdersInStates")(&err)

	if s.DB == nil {
		return 0, errors.New("sql order repository: DB is nil")
	}
	if len(states) == 0 {
		return 0, nil
	}

	var n int
	q := `SELECT COUNT(*) FROM orders WHERE order_status = ANY($1::text[]);`
	if err := s.DB.QueryRowContext(ctx, q, stateStrings(states)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

const selectPgOrderColumns = `
	SELECT
		id,
		customer_name,
		address,
		order_details,
		order_status,
		created_at,
		updated_at,
		delivered_at
	FROM orders
`

func scanPgOrder(r rowScanner) (*domain.Order, error) {
	var (
		o         domain.Order
		details   []byte
		status    string
		delivered sql.NullTime
	)
	if err := r.Scan(&o.ID, &o.CustomerName, &o.Address, &details, &status, &o.CreatedAt, &o.UpdatedAt, &delivered); err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &o.Details); err != nil {
			return nil, fmt.Errorf("decode order_details for id=%d: %w", o.ID, err)
		}
	}
	o.Status = domain.OrderState(status)
	if delivered.Valid {
		t := delivered.Time
		o.DeliveredAt = &t
	}
	return &o, nil
}

func (s *SQLOrderRepository) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	if s.DB == nil {
		return nil, errors.New("sql order repository: DB is nil")
	}

	o, err := scanPgOrder(s.DB.QueryRowContext(ctx, selectPgOrderColumns+` WHERE id = $1;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get order id=%d: %w", id, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order id=%d: %w", id, err)
	}
	return o, nil
}

func (s *SQLOrderRepository) ListOrdersInStates(ctx context.Context, states []domain.OrderState) (_ []*domain.Order, err error) {
	defer obs.Time(ctx, "sql.ListOrdersInStates")(&err)

	if s.DB == nil {
		return nil, errors.New("sql order repository: DB is nil")
	}
	if len(states) == 0 {
		return []*domain.Order{}, nil
	}

	rows, err := s.DB.QueryContext(ctx,
		selectPgOrderColumns+` WHERE order_status = ANY($1::text[]) ORDER BY created_at, id;`,
		stateStrings(states),
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: query orders table: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0, 16)
	for rows.Next() {
		o, err := scanPgOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list orders: scan row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: row iteration: %w", err)
	}
	return orders, nil
}

func (s *SQLOrderRepository) MarkDelivered(ctx context.Context, id int64, at time.Time) (*domain.Order, error) {
	if s.DB == nil {
		return nil, errors.New("sql order repository: DB is nil")
	}

	o, err := scanPgOrder(s.DB.QueryRowContext(ctx, `
	UPDATE orders
	SET order_status = $1, delivered_at = $2, updated_at = $2
	WHERE id = $3 AND order_status NOT IN ($4, $5)
	RETURNING id, customer_name, address, order_details, order_status, created_at, updated_at, delivered_at;
	`, string(domain.OrderDelivered), at, id, string(domain.OrderDelivered), string(domain.OrderCancelled)))
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.GetOrder(ctx, id); err != nil {
			return nil, fmt.Errorf("mark delivered id=%d: %w", id, err)
		}
		return nil, fmt.Errorf("mark delivered id=%d: %w", id, ErrOrderNotDeliverable)
	}
	if err != nil {
		return nil, fmt.Errorf("mark delivered id=%d: %w", id, err)
	}
	return o, nil
}
