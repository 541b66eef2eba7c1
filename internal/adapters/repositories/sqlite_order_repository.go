package repositories

import (
	"context"
	"database/sql"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/platform/obs"
	"delivery-estimate-service/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrOrderNotFound       = ports.ErrOrderNotFound
	ErrOrderNotDeliverable = ports.ErrOrderNotDeliverable
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLite-backed implementation of the OrderRepository port. Timestamps are
// stored as unix milliseconds.
type SqliteOrderRepository struct{ DB *sql.DB }

func NewSqliteOrderRepository(db *sql.DB) *SqliteOrderRepository {
	return &SqliteOrderRepository{DB: db}
}

func insertOrder(ctx context.Context, ex execer, o *domain.Order, replace bool) (int64, error) {
	details, err := json.Marshal(o.Details)
	if err != nil {
		return 0, fmt.Errorf("insert order: encode details: %w", err)
	}

	verb := "INSERT"
	if replace {
		verb = "INSERT OR REPLACE"
	}

	var id any
	if o.ID > 0 {
		id = o.ID
	}

	query := verb + ` INTO orders (
		id,
		customer_name,
		address,
		order_details,
		order_status,
		created_at,
		updated_at,
		delivered_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`
	res, err := ex.ExecContext(ctx, query,
		id, o.CustomerName, o.Address, string(details), string(o.Status),
		o.CreatedAt.UnixMilli(), o.UpdatedAt.UnixMilli(), nullMillis(o.DeliveredAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert order id=%d: %w", o.ID, err)
	}
	return res.LastInsertId()
}

// CreateOrder inserts o and returns its id.
func (s *SqliteOrderRepository) CreateOrder(ctx context.Context, o *domain.Order) (int64, error) {
	if s.DB == nil {
		return 0, errors.New("sqlite order repository: DB is nil")
	}
	return insertOrder(ctx, s.DB, o, false)
}

func statePlaceholders(states []domain.OrderState) (string, []any) {
	ph := make([]string, 0, len(states))
	args := make([]any, 0, len(states))
	for _, st := range states {
		ph = append(ph, "?")
		args = append(args, string(st))
	}
	return strings.Join(ph, ","), args
}

func (s *SqliteOrderRepository) CountOrdersInStates(ctx context.Context, states []domain.OrderState) (_ int, err error) {
	defer obs.Time(ctx, "sqlite.CountOrdersInStates")(&err)

	if s.DB == nil {
		return 0, errors.New("sqlite order repository: DB is nil")
	}
	if len(states) == 0 {
		return 0, nil
	}

	// SQLite cannot bind a slice to IN (...); only the placeholder list is
	// interpolated.
	ph, args := statePlaceholders(states)
	q := fmt.Sprintf(`SELECT COUNT(*) FROM orders WHERE order_status IN (%s);`, ph)

	var n int
	if err := s.DB.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

const selectOrderColumns = `
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (*domain.Order, error) {
	var (
		o                domain.Order
		details, status  string
		created, updated int64
		delivered        sql.NullInt64
	)
	if err := r.Scan(&o.ID, &o.CustomerName, &o.Address, &details, &status, &created, &updated, &delivered); err != nil {
		return nil, err
	}

	if details != "" {
		if err := json.Unmarshal([]byte(details), &o.Details); err != nil {
			return nil, fmt.Errorf("decode order_details for id=%d: %w", o.ID, err)
		}
	}
	o.Status = domain.OrderState(status)
	o.CreatedAt = time.UnixMilli(created)
	o.UpdatedAt = time.UnixMilli(updated)
	if delivered.Valid {
		t := time.UnixMilli(delivered.Int64)
		o.DeliveredAt = &t
	}
	return &o, nil
}

func (s *SqliteOrderRepository) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	if s.DB == nil {
		return nil, errors.New("sqlite order repository: DB is nil")
	}

	o, err := scanOrder(s.DB.QueryRowContext(ctx, selectOrderColumns+` WHERE id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get order id=%d: %w", id, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order id=%d: %w", id, err)
	}
	return o, nil
}

// ListOrdersInStates returns matching orders oldest first.
func (s *SqliteOrderRepository) ListOrdersInStates(ctx context.Context, states []domain.OrderState) (_ []*domain.Order, err error) {
	defer obs.Time(ctx, "sqlite.ListOrdersInStates")(&err)

	if s.DB == nil {
		return nil, errors.New("sqlite order repository: DB is nil")
	}
	if len(states) == 0 {
		return []*domain.Order{}, nil
	}

	ph, args := statePlaceholders(states)
	q := selectOrderColumns + fmt.Sprintf(` WHERE order_status IN (%s) ORDER BY created_at, id;`, ph)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: query orders table: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0, 16)
	for rows.Next() {
		o, err := scanOrder(rows)
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

func (s *SqliteOrderRepository) MarkDelivered(ctx context.Context, id int64, at time.Time) (*domain.Order, error) {
	if s.DB == nil {
		return nil, errors.New("sqlite order repository: DB is nil")
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE orders SET order_status = ?, delivered_at = ?, updated_at = ?
		WHERE id = ? AND order_status NOT IN (?, ?);`,
		string(domain.OrderDelivered), at.UnixMilli(), at.UnixMilli(), id,
		string(domain.OrderDelivered), string(domain.OrderCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("mark delivered id=%d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetOrder(ctx, id); err != nil {
			return nil, fmt.Errorf("mark delivered id=%d: %w", id, err)
		}
		return nil, fmt.Errorf("mark delivered id=%d: %w", id, ErrOrderNotDeliverable)
	}

	return s.GetOrder(ctx, id)
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
