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
	"time"
)

var ErrEstimateNotFound = ports.ErrEstimateNotFound

// SqliteEstimateRepository stores estimate history. Superseded records are
// kept with is_active = 0 for accuracy analysis.
type SqliteEstimateRepository struct{ DB *sql.DB }

func NewSqliteEstimateRepository(db *sql.DB) *SqliteEstimateRepository {
	return &SqliteEstimateRepository{DB: db}
}

func (s *SqliteEstimateRepository) SupersedeAndSave(ctx context.Context, rec domain.EstimateRecord) (err error) {
	defer obs.Time(ctx, "sqlite.SupersedeAndSave")(&err)

	if s.DB == nil {
		return errors.New("sqlite estimate repository: DB is nil")
	}
	if rec.ID == "" {
		return errors.New("save estimate: id must not be empty")
	}

	factors, err := json.Marshal(rec.Estimate.Factors)
	if err != nil {
		return fmt.Errorf("save estimate: encode factors: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save estimate: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE delivery_estimates SET is_active = 0 WHERE order_id = ? AND is_active = 1;`,
		rec.OrderID,
	); err != nil {
		return fmt.Errorf("save estimate: supersede order_id=%d: %w", rec.OrderID, err)
	}

	e := rec.Estimate
	query := `
	INSERT INTO delivery_estimates (
		id,
		order_id,
		estimated_minutes,
		distance_miles,
		base_time_minutes,
		distance_time_minutes,
		load_time_minutes,
		random_variation_minutes,
		confidence_score,
		zone,
		factors,
		is_active,
		actual_delivery_minutes,
		created_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?);
	`
	var actual any
	if rec.ActualDeliveryMinutes != nil {
		actual = *rec.ActualDeliveryMinutes
	}
	if _, err := tx.ExecContext(ctx, query,
		rec.ID, rec.OrderID, e.EstimatedMinutes, e.DistanceMiles,
		e.BaseTimeMinutes, e.DistanceTimeMinutes, e.LoadTimeMinutes, e.RandomVariationMinutes,
		e.ConfidenceScore, string(e.Zone), string(factors), actual, e.CreatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("save estimate: insert id=%s: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save estimate: commit tx: %w", err)
	}
	return nil
}

const selectEstimateColumns = `
	SELECT
		id,
		order_id,
		estimated_minutes,
		distance_miles,
		base_time_minutes,
		distance_time_minutes,
		load_time_minutes,
		random_variation_minutes,
		confidence_score,
		zone,
		factors,
		is_active,
		actual_delivery_minutes,
		created_at
	FROM delivery_estimates
`

func scanEstimate(r rowScanner) (domain.EstimateRecord, error) {
	var (
		rec     domain.EstimateRecord
		zone    string
		factors string
		active  int
		actual  sql.NullInt64
		created int64
	)
	e := &rec.Estimate
	if err := r.Scan(&rec.ID, &rec.OrderID, &e.EstimatedMinutes, &e.DistanceMiles,
		&e.BaseTimeMinutes, &e.DistanceTimeMinutes, &e.LoadTimeMinutes, &e.RandomVariationMinutes,
		&e.ConfidenceScore, &zone, &factors, &active, &actual, &created,
	); err != nil {
		return domain.EstimateRecord{}, err
	}

	if factors != "" {
		if err := json.Unmarshal([]byte(factors), &e.Factors); err != nil {
			return domain.EstimateRecord{}, fmt.Errorf("decode factors for id=%s: %w", rec.ID, err)
		}
	}
	e.Zone = domain.Zone(zone)
	e.CreatedAt = time.UnixMilli(created)
	rec.Active = active == 1
	if actual.Valid {
		v := int(actual.Int64)
		rec.ActualDeliveryMinutes = &v
	}
	return rec, nil
}

func (s *SqliteEstimateRepository) ActiveForOrder(ctx context.Context, orderID int64) (*domain.EstimateRecord, error) {
	if s.DB == nil {
		return nil, errors.New("sqlite estimate repository: DB is nil")
	}

	rec, err := scanEstimate(s.DB.QueryRowContext(ctx,
		selectEstimateColumns+` WHERE order_id = ? AND is_active = 1;`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active estimate order_id=%d: %w", orderID, ErrEstimateNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("active estimate order_id=%d: %w", orderID, err)
	}
	return &rec, nil
}

// ListForOrder returns every record for an order, newest first.
func (s *SqliteEstimateRepository) ListForOrder(ctx context.Context, orderID int64) ([]domain.EstimateRecord, error) {
	if s.DB == nil {
		return nil, errors.New("sqlite estimate repository: DB is nil")
	}
	return s.list(ctx, selectEstimateColumns+` WHERE order_id = ? ORDER BY created_at DESC, rowid DESC;`, orderID)
}

func (s *SqliteEstimateRepository) RecordActualDelivery(ctx context.Context, orderID int64, actualMinutes int) error {
	if s.DB == nil {
		return errors.New("sqlite estimate repository: DB is nil")
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE delivery_estimates SET actual_delivery_minutes = ? WHERE order_id = ? AND is_active = 1;`,
		actualMinutes, orderID,
	)
	if err != nil {
		return fmt.Errorf("record actual delivery order_id=%d: %w", orderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record actual delivery order_id=%d: %w", orderID, ErrEstimateNotFound)
	}
	return nil
}

func (s *SqliteEstimateRepository) ListCompletedSince(ctx context.Context, since time.Time) (_ []domain.EstimateRecord, err error) {
	defer obs.Time(ctx, "sqlite.ListCompletedSince")(&err)

	if s.DB == nil {
		return nil, errors.New("sqlite estimate repository: DB is nil")
	}
	return s.list(ctx, selectEstimateColumns+`
	WHERE actual_delivery_minutes IS NOT NULL
		AND created_at >= ?
	ORDER BY created_at;`, since.UnixMilli())
}

func (s *SqliteEstimateRepository) list(ctx context.Context, q string, args ...any) ([]domain.EstimateRecord, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list estimates: query: %w", err)
	}
	defer rows.Close()

	out := make([]domain.EstimateRecord, 0, 16)
	for rows.Next() {
		rec, err := scanEstimate(rows)
		if err != nil {
			return nil, fmt.Errorf("list estimates: scan row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list estimates: row iteration: %w", err)
	}
	return out, nil
}
