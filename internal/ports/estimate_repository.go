package ports

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"time"
)

type EstimateRepository interface {
	// SupersedeAndSave deactivates the order's active record and stores rec
	// as the new active one.
	SupersedeAndSave(ctx context.Context, rec domain.EstimateRecord) error
	ActiveForOrder(ctx context.Context, orderID int64) (*domain.EstimateRecord, error)
	RecordActualDelivery(ctx context.Context, orderID int64, actualMinutes int) error
	// ListCompletedSince returns records created at or after since that have
	// an actual delivery time.
	ListCompletedSince(ctx context.Context, since time.Time) ([]domain.EstimateRecord, error)
}

// EstimatePublisher announces new estimate records to other systems.
type EstimatePublisher interface {
	PublishEstimate(ctx context.Context, rec domain.EstimateRecord) error
}
