package services

import (
	"context"
	"delivery-estimate-service/internal/config"
	"delivery-estimate-service/internal/domain"
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

var typicalLoad = domain.LoadSnapshot{
	ActiveOrders:           2,
	PendingOrders:          1,
	LoadFactorMinutes:      6,
	CapacityUtilization:    0.5,
	QueueTimeMinutes:       5,
	EstimatedQueuePosition: 2,
}

func matrixDistance(miles float64) domain.Distance {
	return domain.Distance{Miles: miles, TravelMinutes: 14, Confidence: 0.9, Source: domain.SourceDistanceMatrix}
}

func newTestEstimator(t *testing.T, d DistanceSource, l LoadSource, opts ...EstimatorOption) *Estimator {
	t.Helper()
	opts = append([]EstimatorOption{WithRandSource(fixedRand(8)), WithClock(clockz.NewFakeClock())}, opts...)
	return NewEstimator(testSettings(t), d, l, opts...)
}

func TestEstimateWorkedExample(t *testing.T) {
	e := newTestEstimator(t,
		stubDistances{d: matrixDistance(3.5)},
		stubLoad{snap: typicalLoad, peak: 1.1},
	)

	est, err := e.Estimate(context.Background(), customerAddr, nil)
	require.NoError(t, err)

	assert.Equal(t, 45, est.EstimatedMinutes)
	assert.Equal(t, domain.ZoneMiddle, est.Zone)
	assert.InDelta(t, 0.9, est.ConfidenceScore, 1e-9)
	assert.Equal(t, 25, est.BaseTimeMinutes)
	assert.Equal(t, 7, est.DistanceTimeMinutes)
	assert.Equal(t, 6, est.LoadTimeMinutes)
	assert.Equal(t, 3, est.RandomVariationMinutes)
	assert.Equal(t, 41, est.BreakdownSum())
	assert.Equal(t, 1.1, est.Factors.PeakFactor)
	assert.Equal(t, 14, est.Factors.TravelTimeMinutes)
	assert.Equal(t, 2, est.Factors.QueuePosition)
	assert.Equal(t, "distance_matrix", est.Factors.DistanceSource)
	assert.False(t, est.Factors.Fallback)
}

func TestEstimateOutsideRadius(t *testing.T) {
	monitor := NewPerformanceMonitor(nil, nil, nil)
	e := newTestEstimator(t,
		stubDistances{d: matrixDistance(10.0)},
		stubLoad{snap: typicalLoad, peak: 1.0},
		WithMonitor(monitor),
	)

	est, err := e.Estimate(context.Background(), customerAddr, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOutsideDeliveryRadius))

	var re *domain.OutsideRadiusError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 10.0, re.DistanceMiles)
	assert.Equal(t, 8.0, re.RadiusMiles)
	assert.Zero(t, est)
	assert.Equal(t, int64(1), monitor.Stats().Errors["outside_radius"])
}

func TestEstimateAtRadiusBoundaryIsAccepted(t *testing.T) {
	e := newTestEstimator(t, stubDistances{d: matrixDistance(8.0)}, stubLoad{snap: typicalLoad, peak: 1.0})

	est, err := e.Estimate(context.Background(), customerAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ZoneOuter, est.Zone)
}

func TestEstimateFallbackOnPanic(t *testing.T) {
	monitor := NewPerformanceMonitor(nil, nil, nil)
	e := newTestEstimator(t,
		stubDistances{panicMsg: "resolver exploded"},
		stubLoad{snap: typicalLoad, peak: 1.0},
		WithMonitor(monitor),
	)

	est, err := e.Estimate(context.Background(), customerAddr, nil)
	require.NoError(t, err)

	assert.Equal(t, 45, est.EstimatedMinutes)
	assert.Equal(t, 3.0, est.DistanceMiles)
	assert.LessOrEqual(t, est.ConfidenceScore, 0.3)
	assert.Equal(t, domain.ZoneMiddle, est.Zone)
	assert.True(t, est.Factors.Fallback)
	assert.Contains(t, est.Factors.Error, "resolver exploded")

	stats := monitor.Stats()
	assert.Equal(t, int64(1), stats.Fallbacks)
	assert.Equal(t, int64(1), stats.Errors[FailureUnexpected])
}

func TestEstimateFallbackOnInvalidPeak(t *testing.T) {
	e := newTestEstimator(t, stubDistances{d: matrixDistance(2.0)}, stubLoad{snap: typicalLoad, peak: 0})

	est, err := e.Estimate(context.Background(), customerAddr, nil)
	require.NoError(t, err)
	assert.True(t, est.Factors.Fallback)
}

func TestEstimateClampsToWindow(t *testing.T) {
	busy := domain.LoadSnapshot{ActiveOrders: 40, LoadFactorMinutes: 120, CapacityUtilization: 1}
	e := newTestEstimator(t, stubDistances{d: matrixDistance(7.5)}, stubLoad{snap: busy, peak: 1.2})

	est, err := e.Estimate(context.Background(), customerAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, 90, est.EstimatedMinutes)

	e = newTestEstimator(t, stubDistances{d: matrixDistance(0)}, stubLoad{peak: 1.0}, WithRandSource(fixedRand(0)))
	e.settings = testSettings(t, func(c *config.Estimation) { c.BaseTimeMinutes = 5 })

	est, err = e.Estimate(context.Background(), customerAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, 15, est.EstimatedMinutes)
	assert.Equal(t, 0, est.BreakdownSum())
}

func TestEstimateProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	peaks := []float64{1.0, 1.1, 1.2}

	estimate := func(miles float64, active, draw, peakIdx int) domain.DeliveryEstimate {
		snap := ComputeLoad(active, 1, 3, 4)
		e := NewEstimator(testSettings(t), stubDistances{d: matrixDistance(miles)},
			stubLoad{snap: snap, peak: peaks[peakIdx]}, WithRandSource(fixedRand(draw)))
		est, err := e.Estimate(context.Background(), customerAddr, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return est
	}

	properties.Property("estimate stays within the delivery window", prop.ForAll(
		func(miles float64, active, draw, peakIdx int) bool {
			est := estimate(miles, active, draw, peakIdx)
			return est.EstimatedMinutes >= 15 && est.EstimatedMinutes <= 90
		},
		gen.Float64Range(0, 8), gen.IntRange(0, 40), gen.IntRange(0, 15), gen.IntRange(0, 2),
	))

	properties.Property("more load never shortens the estimate", prop.ForAll(
		func(miles float64, active, draw, peakIdx int) bool {
			return estimate(miles, active+1, draw, peakIdx).EstimatedMinutes >=
				estimate(miles, active, draw, peakIdx).EstimatedMinutes
		},
		gen.Float64Range(0, 8), gen.IntRange(0, 40), gen.IntRange(0, 15), gen.IntRange(0, 2),
	))

	properties.Property("variation stays in configured range", prop.ForAll(
		func(draw int) bool {
			v := estimate(3, 1, draw, 0).RandomVariationMinutes
			return v >= -5 && v <= 10
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

func TestCombineConfidence(t *testing.T) {
	cases := []struct {
		name              string
		conf, util, miles float64
		want              float64
	}{
		{"no penalty", 0.9, 0.5, 3.5, 0.9},
		{"busy and long", 0.9, 0.85, 7, 0.9 * 0.8 * 0.85},
		{"moderate", 0.9, 0.7, 5, 0.9 * 0.9 * 0.95},
		{"thresholds are exclusive", 0.7, 0.6, 4.0, 0.7},
		{"clamped", 1.5, 0, 0, 1.0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.InDelta(t, c.want, CombineConfidence(c.conf, c.util, c.miles), 1e-9)
		})
	}
}

func TestCombineConfidenceProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("confidence stays in [0, input]", prop.ForAll(
		func(conf, util, miles float64) bool {
			c := CombineConfidence(conf, util, miles)
			return c >= 0 && c <= conf
		},
		gen.Float64Range(0, 1), gen.Float64Range(0, 1), gen.Float64Range(0, 8),
	))

	properties.TestingRun(t)
}

func TestUpdateConfig(t *testing.T) {
	e := newTestEstimator(t, stubDistances{d: matrixDistance(3.5)}, stubLoad{snap: typicalLoad, peak: 1.0})

	cfg := e.Config()
	cfg.BaseTimeMinutes = 30
	require.NoError(t, e.UpdateConfig(cfg))
	assert.Equal(t, 30, e.Config().BaseTimeMinutes)

	est, err := e.Estimate(context.Background(), customerAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, 30, est.BaseTimeMinutes)

	bad := e.Config()
	bad.MinDeliveryMinutes = 100
	require.Error(t, e.UpdateConfig(bad))
	assert.Equal(t, 15, e.Config().MinDeliveryMinutes)
}

func TestUpdateConfigConcurrentWithEstimates(t *testing.T) {
	e := newTestEstimator(t, stubDistances{d: matrixDistance(3.5)}, stubLoad{snap: typicalLoad, peak: 1.0})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cfg := config.DefaultEstimation()
			cfg.BaseTimeMinutes = 20 + i
			_ = e.UpdateConfig(cfg)
		}()
		go func() {
			defer wg.Done()
			est, err := e.Estimate(context.Background(), customerAddr, nil)
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, est.BaseTimeMinutes, 20)
		}()
	}
	wg.Wait()
}

func TestValidateDeliveryAddress(t *testing.T) {
	ctx := context.Background()

	e := newTestEstimator(t, stubDistances{d: matrixDistance(3.5)}, stubLoad{snap: typicalLoad, peak: 1.1})
	v := e.ValidateDeliveryAddress(ctx, customerAddr)
	assert.True(t, v.IsValid)
	require.NotNil(t, v.EstimatedMinutes)
	assert.Equal(t, 45, *v.EstimatedMinutes)
	assert.Equal(t, domain.ZoneMiddle, v.Zone)

	v = e.ValidateDeliveryAddress(ctx, "  ")
	assert.False(t, v.IsValid)
	assert.NotEmpty(t, v.Error)
	assert.Nil(t, v.EstimatedMinutes)

	far := newTestEstimator(t, stubDistances{d: matrixDistance(12.3)}, stubLoad{snap: typicalLoad, peak: 1.0})
	v = far.ValidateDeliveryAddress(ctx, customerAddr)
	assert.False(t, v.IsValid)
	assert.Equal(t, 12.3, v.DistanceMiles)
	assert.Equal(t, 8.0, v.MaxDistance)
	assert.Contains(t, v.Error, "12.3 miles")
	assert.NotEmpty(t, v.SuggestedFix)
}

func TestValidateDeliveryAddressIsNotTracked(t *testing.T) {
	ctx := context.Background()
	monitor := NewPerformanceMonitor(nil, nil, clockz.NewFakeClock())

	near := newTestEstimator(t, stubDistances{d: matrixDistance(3.5)}, stubLoad{snap: typicalLoad, peak: 1.1}, WithMonitor(monitor))
	far := newTestEstimator(t, stubDistances{d: matrixDistance(12.3)}, stubLoad{snap: typicalLoad, peak: 1.0}, WithMonitor(monitor))

	assert.True(t, near.ValidateDeliveryAddress(ctx, customerAddr).IsValid)
	assert.False(t, far.ValidateDeliveryAddress(ctx, customerAddr).IsValid)

	stats := monitor.Stats()
	assert.Zero(t, stats.Estimations)
	assert.Empty(t, stats.Errors)

	_, err := near.Estimate(ctx, customerAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), monitor.Stats().Estimations)
}

func TestDeliveryZonesInfo(t *testing.T) {
	e := newTestEstimator(t, stubDistances{}, stubLoad{})

	info := e.DeliveryZonesInfo()
	assert.Len(t, info.Zones, 3)
	assert.Equal(t, 8.0, info.Zones[domain.ZoneOuter].MaxMiles)
	assert.Equal(t, 2.0, info.Zones[domain.ZoneMiddle].MinMiles)
	assert.Equal(t, 8.0, info.MaxDeliveryRadius)
	assert.Equal(t, 25, info.BaseDeliveryTime)
}

func TestEstimateForOrderPublishes(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	e := newTestEstimator(t,
		stubDistances{d: matrixDistance(3.5)},
		stubLoad{snap: typicalLoad, peak: 1.0},
		WithPublisher(pub),
		WithIDGenerator(func() string { return "est-1" }),
	)

	rec, err := e.EstimateForOrder(context.Background(), &domain.Order{ID: 7, Address: customerAddr})
	require.NoError(t, err, "publish failures must not fail the estimate")
	assert.Equal(t, "est-1", rec.ID)
	assert.Equal(t, int64(7), rec.OrderID)
	assert.True(t, rec.Active)

	require.Len(t, pub.published(), 1)
	assert.Equal(t, rec, pub.published()[0])
}

func TestUpdateEstimateOnCompletionRequiresOrders(t *testing.T) {
	e := newTestEstimator(t, stubDistances{}, stubLoad{})
	_, err := e.UpdateEstimateOnCompletion(context.Background(), 1)
	require.Error(t, err)
}
