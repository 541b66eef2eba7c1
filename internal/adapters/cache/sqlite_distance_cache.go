package cache

import (
	"context"
	"database/sql"
	"delivery-estimate-service/internal/domain"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zoobzio/clockz"
)

// SqliteDistanceCache persists resolved distances in the distance_cache
// table. Expired rows are ignored on read and overwritten on write.
type SqliteDistanceCache struct {
	DB    *sql.DB
	clock clockz.Clock
}

func NewSqliteDistanceCache(db *sql.DB, clock clockz.Clock) *SqliteDistanceCache {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &SqliteDistanceCache{DB: db, clock: clock}
}

func (s *SqliteDistanceCache) Get(ctx context.Context, key string) (domain.Distance, bool, error) {
	if s.DB == nil {
		return domain.Distance{}, false, errors.New("distance cache: db is nil")
	}
	if strings.TrimSpace(key) == "" {
		return domain.Distance{}, false, errors.New("get distance cache: key must not be empty")
	}

	q := `
	SELECT
		distance_miles,
		travel_minutes,
		confidence,
		source
	FROM distance_cache
	WHERE address_key = ?
		AND expires_at > ?;
	`

	var d domain.Distance
	var source string
	err := s.DB.QueryRowContext(ctx, q, key, s.clock.Now().Unix()).
		Scan(&d.Miles, &d.TravelMinutes, &d.Confidence, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Distance{}, false, nil
	}
	if err != nil {
		return domain.Distance{}, false, fmt.Errorf("get distance cache key=%q: %w", key, err)
	}

	d.Source = domain.DistanceSource(source)
	return d, true, nil
}

func (s *SqliteDistanceCache) Set(ctx context.Context, key string, d domain.Distance, ttl time.Duration) error {
	if s.DB == nil {
		return errors.New("distance cache: db is nil")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("insert distance cache: key must not be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("insert distance cache: ttl must be positive, got %s", ttl)
	}

	q := `
	INSERT OR REPLACE INTO distance_cache (
		address_key,
		distance_miles,
		travel_minutes,
		confidence,
		source,
		expires_at
	)
	VALUES (?, ?, ?, ?, ?, ?);
	`
	expires := s.clock.Now().Add(ttl).Unix()
	if _, err := s.DB.ExecContext(ctx, q, key, d.Miles, d.TravelMinutes, d.Confidence, string(d.Source), expires); err != nil {
		return fmt.Errorf("insert distance cache key=%q: %w", key, err)
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (s *SqliteDistanceCache) Purge(ctx context.Context) (int64, error) {
	if s.DB == nil {
		return 0, errors.New("distance cache: db is nil")
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM distance_cache WHERE expires_at <= ?;`, s.clock.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge distance cache: %w", err)
	}
	return res.RowsAffected()
}
