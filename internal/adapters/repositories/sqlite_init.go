package repositories

import (
	"context"
	"database/sql"
	"delivery-estimate-service/internal/domain"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// InitSchema creates the SQLite tables used by the service.
func InitSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createOrdersQuery := `
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY,
		customer_name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL,
		order_details TEXT NOT NULL DEFAULT '{}',
		order_status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		delivered_at INTEGER
	);
	`

	createOrdersStatusIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_orders_status
	ON orders(order_status);
	`

	createEstimatesQuery := `
	CREATE TABLE IF NOT EXISTS delivery_estimates (
		id TEXT PRIMARY KEY,
		order_id INTEGER NOT NULL,
		estimated_minutes INTEGER NOT NULL,
		distance_miles REAL NOT NULL,
		base_time_minutes INTEGER NOT NULL,
		distance_time_minutes INTEGER NOT NULL,
		load_time_minutes INTEGER NOT NULL,
		random_variation_minutes INTEGER NOT NULL,
		confidence_score REAL NOT NULL,
		zone TEXT NOT NULL,
		factors TEXT NOT NULL DEFAULT '{}',
		is_active INTEGER NOT NULL DEFAULT 1,
		actual_delivery_minutes INTEGER,
		created_at INTEGER NOT NULL
	);
	`

	createEstimatesIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_delivery_estimates_order_active
	ON delivery_estimates(order_id, is_active);
	`

	createDistanceCacheQuery := `
	CREATE TABLE IF NOT EXISTS distance_cache (
		address_key TEXT PRIMARY KEY,
		distance_miles REAL NOT NULL,
		travel_minutes INTEGER NOT NULL,
		confidence REAL NOT NULL,
		source TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	`

	statements := []string{
		createOrdersQuery,
		createOrdersStatusIndexQuery,
		createEstimatesQuery,
		createEstimatesIndexQuery,
		createDistanceCacheQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type OrderSeed struct {
	ID           int64               `json:"id"`
	CustomerName string              `json:"customer_name"`
	Address      string              `json:"address"`
	Status       string              `json:"order_status"`
	Details      domain.OrderContext `json:"order_details"`
}

var knownStates = map[domain.OrderState]struct{}{
	domain.OrderPending:          {},
	domain.OrderPaymentConfirmed: {},
	domain.OrderPreparing:        {},
	domain.OrderOutForDelivery:   {},
	domain.OrderDelivered:        {},
	domain.OrderCancelled:        {},
}

// SeedFromJSON loads demo orders from a JSON array file.
func SeedFromJSON(db *sql.DB, jsonPath string) error {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed orders: read %q: %w", jsonPath, err)
	}

	var data []OrderSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("seed orders: parse json: %w", err)
	}

	now := time.Now()
	rows := make([]*domain.Order, 0, len(data))
	for i, item := range data {
		if item.ID <= 0 {
			return fmt.Errorf("seed orders: invalid id at index %d: %d", i+1, item.ID)
		}

		addr := strings.TrimSpace(item.Address)
		if addr == "" {
			return fmt.Errorf("seed orders: item at index %d: address cannot be empty", i+1)
		}

		status := domain.OrderState(item.Status)
		if status == "" {
			status = domain.OrderPending
		}
		if _, ok := knownStates[status]; !ok {
			return fmt.Errorf("seed orders: item at index %d: unknown status %q", i+1, item.Status)
		}

		rows = append(rows, &domain.Order{
			ID:           item.ID,
			CustomerName: item.CustomerName,
			Address:      addr,
			Details:      item.Details,
			Status:       status,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed orders: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, o := range rows {
		if _, err := insertOrder(context.Background(), tx, o, true); err != nil {
			return fmt.Errorf("seed orders: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed orders: commit tx: %w", err)
	}

	return nil
}
