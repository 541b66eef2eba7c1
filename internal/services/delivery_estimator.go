package services

import (
	"context"
	"delivery-estimate-service/internal/config"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/platform/obs"
	"delivery-estimate-service/internal/ports"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"golang.org/x/sync/errgroup"
)

const (
	fallbackEstimateMinutes = 45
	fallbackConfidence      = 0.3
	reestimateWorkers       = 5
)

// RandSource draws the random variation. IntN returns a value in [0, n).
type RandSource interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DistanceSource resolves an address to a distance; it must not fail.
type DistanceSource interface {
	Resolve(ctx context.Context, address string) domain.Distance
}

// LoadSource reports current load and the time-of-day multiplier.
type LoadSource interface {
	CurrentLoad(ctx context.Context) domain.LoadSnapshot
	PeakHoursFactor() float64
}

// Estimator produces delivery ETAs. Construct one per process and share it;
// it is safe for concurrent use.
type Estimator struct {
	settings  *Settings
	distances DistanceSource
	load      LoadSource

	rnd       RandSource
	clock     clockz.Clock
	newID     func() string
	orders    ports.OrderRepository
	estimates ports.EstimateRepository
	publisher ports.EstimatePublisher
	monitor   *PerformanceMonitor
}

type EstimatorOption func(*Estimator)

func WithRandSource(r RandSource) EstimatorOption {
	return func(e *Estimator) { e.rnd = r }
}

func WithClock(c clockz.Clock) EstimatorOption {
	return func(e *Estimator) { e.clock = c }
}

func WithIDGenerator(f func() string) EstimatorOption {
	return func(e *Estimator) { e.newID = f }
}

func WithOrderRepository(r ports.OrderRepository) EstimatorOption {
	return func(e *Estimator) { e.orders = r }
}

func WithEstimateRepository(r ports.EstimateRepository) EstimatorOption {
	return func(e *Estimator) { e.estimates = r }
}

func WithPublisher(p ports.EstimatePublisher) EstimatorOption {
	return func(e *Estimator) { e.publisher = p }
}

func WithMonitor(m *PerformanceMonitor) EstimatorOption {
	return func(e *Estimator) { e.monitor = m }
}

func NewEstimator(settings *Settings, distances DistanceSource, load LoadSource, opts ...EstimatorOption) *Estimator {
	e := &Estimator{
		settings:  settings,
		distances: distances,
		load:      load,
		rnd:       globalRand{},
		clock:     clockz.RealClock,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the parameters currently in effect.
func (e *Estimator) Config() config.Estimation { return e.settings.Load() }

// UpdateConfig validates cfg and swaps it in for subsequent estimates.
func (e *Estimator) UpdateConfig(cfg config.Estimation) error {
	if err := e.settings.Store(cfg); err != nil {
		return fmt.Errorf("update config: %w", err)
	}
	obs.Logger(context.Background()).Info().
		Int("base_time_minutes", cfg.BaseTimeMinutes).
		Float64("delivery_radius_miles", cfg.DeliveryRadiusMiles).
		Int("max_concurrent_deliveries", cfg.MaxConcurrentDeliveries).
		Msg("estimation config replaced")
	return nil
}

// Estimate returns an ETA for address. The only error it returns wraps
// domain.ErrOutsideDeliveryRadius; every other failure yields a fallback
// estimate with Factors.Fallback set.
func (e *Estimator) Estimate(ctx context.Context, address string, oc *domain.OrderContext) (domain.DeliveryEstimate, error) {
	return e.estimate(ctx, address, oc, e.monitor)
}

// estimate reports to monitor, which may be nil.
func (e *Estimator) estimate(ctx context.Context, address string, oc *domain.OrderContext, monitor *PerformanceMonitor) (domain.DeliveryEstimate, error) {
	start := e.clock.Now()
	cfg := e.settings.Load()

	var (
		dist    domain.Distance
		load    domain.LoadSnapshot
		peak    float64
		distErr error
		loadErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		distErr = safely(func() { dist = e.distances.Resolve(ctx, address) })
		return nil
	})
	g.Go(func() error {
		loadErr = safely(func() {
			load = e.load.CurrentLoad(ctx)
			peak = e.load.PeakHoursFactor()
		})
		return nil
	})
	_ = g.Wait()

	if distErr != nil {
		return e.fallback(ctx, monitor, start, cfg, fmt.Errorf("resolve distance: %w", distErr)), nil
	}

	if dist.Miles > cfg.DeliveryRadiusMiles {
		monitor.TrackError(ctx, "outside_radius")
		return domain.DeliveryEstimate{}, &domain.OutsideRadiusError{
			DistanceMiles: dist.Miles,
			RadiusMiles:   cfg.DeliveryRadiusMiles,
		}
	}

	if loadErr != nil {
		return e.fallback(ctx, monitor, start, cfg, fmt.Errorf("load: %w", loadErr)), nil
	}

	var est domain.DeliveryEstimate
	var err error
	if perr := safely(func() { est, err = e.compute(cfg, dist, load, peak, oc) }); perr != nil {
		err = perr
	}
	if err != nil {
		return e.fallback(ctx, monitor, start, cfg, err), nil
	}

	monitor.TrackEstimation(ctx, e.clock.Now().Sub(start), dist.CacheHit, est.ConfidenceScore, false)
	return est, nil
}

func (e *Estimator) compute(
	cfg config.Estimation,
	dist domain.Distance,
	load domain.LoadSnapshot,
	peak float64,
	oc *domain.OrderContext,
) (domain.DeliveryEstimate, error) {
	if math.IsNaN(peak) || math.IsInf(peak, 0) || peak <= 0 {
		return domain.DeliveryEstimate{}, fmt.Errorf("invalid peak factor %v", peak)
	}
	if math.IsNaN(dist.Miles) || dist.Miles < 0 {
		return domain.DeliveryEstimate{}, fmt.Errorf("invalid distance %v", dist.Miles)
	}

	distanceTime := int(dist.Miles * cfg.DistanceFactorMinutesPerMile)
	variation := cfg.RandomVariationMin + e.rnd.IntN(cfg.RandomVariationMax-cfg.RandomVariationMin+1)

	raw := cfg.BaseTimeMinutes + distanceTime + load.LoadFactorMinutes + variation
	adjusted := int(float64(raw) * peak)
	estimated := clampInt(adjusted, cfg.MinDeliveryMinutes, cfg.MaxDeliveryMinutes)

	return domain.DeliveryEstimate{
		EstimatedMinutes:       estimated,
		DistanceMiles:          dist.Miles,
		BaseTimeMinutes:        cfg.BaseTimeMinutes,
		DistanceTimeMinutes:    distanceTime,
		LoadTimeMinutes:        load.LoadFactorMinutes,
		RandomVariationMinutes: variation,
		ConfidenceScore:        CombineConfidence(dist.Confidence, load.CapacityUtilization, dist.Miles),
		Zone:                   domain.ClassifyZone(dist.Miles),
		CreatedAt:              e.clock.Now(),
		Factors: domain.Factors{
			PeakFactor:          peak,
			TravelTimeMinutes:   dist.TravelMinutes,
			CapacityUtilization: load.CapacityUtilization,
			QueuePosition:       load.EstimatedQueuePosition,
			QueueTimeMinutes:    load.QueueTimeMinutes,
			OrderComplexity:     OrderComplexity(oc),
			DistanceSource:      string(dist.Source),
			CacheHit:            dist.CacheHit,
		},
	}, nil
}

// CombineConfidence degrades the distance confidence under heavy load and
// for long trips, clamped to [0, 1].
func CombineConfidence(distanceConfidence, utilization, miles float64) float64 {
	c := distanceConfidence

	switch {
	case utilization > 0.8:
		c *= 0.8
	case utilization > 0.6:
		c *= 0.9
	}

	switch {
	case miles > 6.0:
		c *= 0.85
	case miles > 4.0:
		c *= 0.95
	}

	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}

func (e *Estimator) fallback(ctx context.Context, monitor *PerformanceMonitor, start time.Time, cfg config.Estimation, cause error) domain.DeliveryEstimate {
	obs.Logger(ctx).Error().
		Str("failure", FailureUnexpected).
		Err(cause).
		Msg("estimation failed, returning fallback estimate")

	monitor.TrackError(ctx, FailureUnexpected)
	monitor.TrackEstimation(ctx, e.clock.Now().Sub(start), false, fallbackConfidence, true)

	return domain.DeliveryEstimate{
		EstimatedMinutes: clampInt(fallbackEstimateMinutes, cfg.MinDeliveryMinutes, cfg.MaxDeliveryMinutes),
		DistanceMiles:    3.0,
		BaseTimeMinutes:  cfg.BaseTimeMinutes,
		ConfidenceScore:  fallbackConfidence,
		Zone:             domain.ZoneMiddle,
		CreatedAt:        e.clock.Now(),
		Factors: domain.Factors{
			Fallback: true,
			Error:    cause.Error(),
		},
	}
}

// ValidateDeliveryAddress reports whether address is inside the delivery
// radius, with an ETA when it is. Validations are not tracked as estimations.
func (e *Estimator) ValidateDeliveryAddress(ctx context.Context, address string) domain.AddressValidation {
	cfg := e.settings.Load()

	if strings.TrimSpace(address) == "" {
		return domain.AddressValidation{
			IsValid:      false,
			MaxDistance:  cfg.DeliveryRadiusMiles,
			Error:        "delivery address is required",
			SuggestedFix: "Please provide a complete, valid address",
		}
	}

	est, err := e.estimate(ctx, address, nil, nil)
	var re *domain.OutsideRadiusError
	if errors.As(err, &re) {
		return domain.AddressValidation{
			IsValid:       false,
			DistanceMiles: re.DistanceMiles,
			MaxDistance:   re.RadiusMiles,
			Zone:          domain.ClassifyZone(re.DistanceMiles),
			Error:         re.Error(),
			SuggestedFix:  "Please provide an address within our delivery area",
		}
	}

	minutes := est.EstimatedMinutes
	return domain.AddressValidation{
		IsValid:          true,
		DistanceMiles:    est.DistanceMiles,
		MaxDistance:      cfg.DeliveryRadiusMiles,
		Zone:             est.Zone,
		EstimatedMinutes: &minutes,
	}
}

// DeliveryZonesInfo describes the zone bands under the current config.
func (e *Estimator) DeliveryZonesInfo() domain.ZonesInfo {
	cfg := e.settings.Load()

	return domain.ZonesInfo{
		Zones: map[domain.Zone]domain.ZoneInfo{
			domain.ZoneInner: {
				MinMiles:    0,
				MaxMiles:    domain.InnerZoneMaxMiles,
				Description: "Close to the restaurant, fastest delivery",
			},
			domain.ZoneMiddle: {
				MinMiles:    domain.InnerZoneMaxMiles,
				MaxMiles:    domain.MiddleZoneMaxMiles,
				Description: "Standard delivery area",
			},
			domain.ZoneOuter: {
				MinMiles:    domain.MiddleZoneMaxMiles,
				MaxMiles:    cfg.DeliveryRadiusMiles,
				Description: "Edge of the delivery area, longer delivery",
			},
		},
		MaxDeliveryRadius:  cfg.DeliveryRadiusMiles,
		BaseDeliveryTime:   cfg.BaseTimeMinutes,
		MinDeliveryMinutes: cfg.MinDeliveryMinutes,
		MaxDeliveryMinutes: cfg.MaxDeliveryMinutes,
	}
}

// EstimateForOrder estimates o, stores the result as the order's active
// record and publishes it.
func (e *Estimator) EstimateForOrder(ctx context.Context, o *domain.Order) (domain.EstimateRecord, error) {
	est, err := e.Estimate(ctx, o.Address, &o.Details)
	if err != nil {
		return domain.EstimateRecord{}, fmt.Errorf("estimate order %d: %w", o.ID, err)
	}

	rec := domain.EstimateRecord{
		ID:       e.newID(),
		OrderID:  o.ID,
		Estimate: est,
		Active:   true,
	}

	if e.estimates != nil {
		if err := e.estimates.SupersedeAndSave(ctx, rec); err != nil {
			return domain.EstimateRecord{}, fmt.Errorf("estimate order %d: %w", o.ID, err)
		}
	}

	if e.publisher != nil {
		if err := e.publisher.PublishEstimate(ctx, rec); err != nil {
			obs.Logger(ctx).Warn().Int64("order_id", o.ID).Err(err).Msg("publish estimate failed")
		}
	}

	return rec, nil
}

// UpdateEstimateOnCompletion re-estimates every order still waiting for
// delivery after completedOrderID left the system. Each new estimate
// supersedes the order's previous one. Orders that are now outside the
// radius, or whose record cannot be stored, are skipped. Results keep the
// order-store listing order.
func (e *Estimator) UpdateEstimateOnCompletion(ctx context.Context, completedOrderID int64) ([]domain.DeliveryEstimate, error) {
	if e.orders == nil {
		return nil, errors.New("update estimates: order repository not configured")
	}

	orders, err := e.orders.ListOrdersInStates(ctx, domain.ReestimateOrderStates)
	if err != nil {
		return nil, fmt.Errorf("update estimates: list orders: %w", err)
	}

	results := make([]*domain.DeliveryEstimate, len(orders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reestimateWorkers)
	for i, o := range orders {
		if o.ID == completedOrderID {
			continue
		}

		g.Go(func() error {
			rec, err := e.EstimateForOrder(gctx, o)
			if err != nil {
				ev := obs.Logger(gctx).Warn()
				if !errors.Is(err, domain.ErrOutsideDeliveryRadius) {
					ev = obs.Logger(gctx).Error()
				}
				ev.Int64("order_id", o.ID).Err(err).Msg("re-estimate skipped")
				return nil
			}
			results[i] = &rec.Estimate
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.DeliveryEstimate, 0, len(orders))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}

	obs.Logger(ctx).Info().
		Int64("completed_order_id", completedOrderID).
		Int("candidates", len(orders)).
		Int("updated", len(out)).
		Msg("estimates updated on completion")

	return out, nil
}

// safely runs fn and converts a panic into an error.
func safely(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
