package ports

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"time"
)

// DistanceCache stores resolved distances keyed by normalized address.
// Get reports ok=false for missing or expired entries.
type DistanceCache interface {
	Get(ctx context.Context, key string) (_ domain.Distance, ok bool, err error)
	Set(ctx context.Context, key string, d domain.Distance, ttl time.Duration) error
}
