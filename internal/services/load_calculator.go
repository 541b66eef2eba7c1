package services

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/platform/obs"
	"delivery-estimate-service/internal/ports"
	"fmt"

	"github.com/zoobzio/clockz"
)

const (
	atCapacityQueueMinutes = 30
	perPendingQueueMinutes = 5
	maxQueueMinutes        = 15
)

// LoadCalculator derives kitchen and driver load from live order counts.
type LoadCalculator struct {
	settings *Settings
	orders   ports.OrderCounter
	clock    clockz.Clock
}

func NewLoadCalculator(settings *Settings, orders ports.OrderCounter, clock clockz.Clock) *LoadCalculator {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &LoadCalculator{settings: settings, orders: orders, clock: clock}
}

// CurrentLoad queries the order store. On failure it returns
// domain.FallbackLoadSnapshot and logs the cause.
func (l *LoadCalculator) CurrentLoad(ctx context.Context) domain.LoadSnapshot {
	active, pending, err := l.counts(ctx)
	if err != nil {
		obs.Logger(ctx).Warn().
			Str("failure", ClassifyFailure(err)).
			Err(err).
			Msg("order count failed, using fallback load snapshot")
		return domain.FallbackLoadSnapshot()
	}

	cfg := l.settings.Load()
	return ComputeLoad(active, pending, cfg.LoadMinutesPerOrder, cfg.MaxConcurrentDeliveries)
}

func (l *LoadCalculator) counts(ctx context.Context) (active, pending int, err error) {
	if l.orders == nil {
		return 0, 0, fmt.Errorf("load calculator: order store not configured")
	}

	active, err = l.orders.CountOrdersInStates(ctx, domain.ActiveOrderStates)
	if err != nil {
		return 0, 0, fmt.Errorf("count active orders: %w", err)
	}
	pending, err = l.orders.CountOrdersInStates(ctx, domain.PendingOrderStates)
	if err != nil {
		return 0, 0, fmt.Errorf("count pending orders: %w", err)
	}
	return active, pending, nil
}

// ComputeLoad is the pure load model. maxConcurrent must be positive.
func ComputeLoad(active, pending, minutesPerOrder, maxConcurrent int) domain.LoadSnapshot {
	utilization := float64(active) / float64(maxConcurrent)
	if utilization > 1.0 {
		utilization = 1.0
	}

	atCapacity := active >= maxConcurrent

	var queue int
	if atCapacity {
		queue = int(float64(pending) / float64(maxConcurrent) * atCapacityQueueMinutes)
	} else {
		queue = min(pending*perPendingQueueMinutes, maxQueueMinutes)
	}

	return domain.LoadSnapshot{
		ActiveOrders:           active,
		PendingOrders:          pending,
		LoadFactorMinutes:      active * minutesPerOrder,
		CapacityUtilization:    utilization,
		QueueTimeMinutes:       queue,
		IsAtCapacity:           atCapacity,
		EstimatedQueuePosition: pending + 1,
	}
}

// PeakHoursFactor applies PeakFactorForHour to the current local hour.
func (l *LoadCalculator) PeakHoursFactor() float64 {
	return PeakFactorForHour(l.clock.Now().Hour())
}

// PeakFactorForHour: lunch and dinner rush 1.2, shoulders 1.1, otherwise 1.0.
func PeakFactorForHour(hour int) float64 {
	switch {
	case hour >= 11 && hour <= 14, hour >= 17 && hour <= 21:
		return 1.2
	case hour >= 15 && hour <= 16, hour >= 22 && hour <= 23:
		return 1.1
	default:
		return 1.0
	}
}
