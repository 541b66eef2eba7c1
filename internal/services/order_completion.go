package services

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/platform/obs"
	"delivery-estimate-service/internal/ports"
	"fmt"
	"math"

	"github.com/zoobzio/clockz"
)

type CompletionResult struct {
	Order         *domain.Order
	ActualMinutes int
	Reestimated   []domain.DeliveryEstimate
}

// CompletionService closes out a delivered order: it stamps the order,
// records the actual delivery time against the active estimate, and
// re-estimates the orders still in the queue.
type CompletionService struct {
	orders    ports.OrderRepository
	estimates ports.EstimateRepository
	estimator *Estimator
	clock     clockz.Clock
}

func NewCompletionService(
	orders ports.OrderRepository,
	estimates ports.EstimateRepository,
	estimator *Estimator,
	clock clockz.Clock,
) *CompletionService {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &CompletionService{orders: orders, estimates: estimates, estimator: estimator, clock: clock}
}

func (s *CompletionService) CompleteDelivery(ctx context.Context, orderID int64) (_ CompletionResult, err error) {
	defer obs.Time(ctx, "services.CompleteDelivery")(&err)

	o, err := s.orders.MarkDelivered(ctx, orderID, s.clock.Now())
	if err != nil {
		return CompletionResult{}, fmt.Errorf("complete delivery: %w", err)
	}

	res := CompletionResult{Order: o}
	if o.DeliveredAt != nil {
		res.ActualMinutes = int(math.Round(o.DeliveredAt.Sub(o.CreatedAt).Minutes()))
	}

	if s.estimates != nil {
		if err := s.estimates.RecordActualDelivery(ctx, orderID, res.ActualMinutes); err != nil {
			// Orders placed before estimates were stored have nothing to update.
			obs.Logger(ctx).Warn().Int64("order_id", orderID).Err(err).Msg("actual delivery time not recorded")
		}
	}

	res.Reestimated, err = s.estimator.UpdateEstimateOnCompletion(ctx, orderID)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("complete delivery: %w", err)
	}
	return res, nil
}
