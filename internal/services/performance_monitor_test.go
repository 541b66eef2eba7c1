package services

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/platform/obs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMonitorStats(t *testing.T) {
	ctx := context.Background()
	m := NewPerformanceMonitor(nil, nil, nil)

	m.TrackEstimation(ctx, 100*time.Millisecond, true, 0.9, false)
	m.TrackEstimation(ctx, 3*time.Second, false, 0.3, true)
	m.TrackError(ctx, FailureTimeout)
	m.TrackError(ctx, FailureTimeout)

	s := m.Stats()
	assert.Equal(t, int64(2), s.Estimations)
	assert.Equal(t, 0.5, s.CacheHitRate)
	assert.InDelta(t, 1550, s.AverageLatencyMs, 0.001)
	assert.Equal(t, int64(1), s.Fallbacks)
	assert.Equal(t, int64(1), s.LatencyAlerts)
	assert.Equal(t, map[string]int64{FailureTimeout: 2}, s.Errors)
}

func TestNilMonitorIsSafe(t *testing.T) {
	var m *PerformanceMonitor
	m.TrackEstimation(context.Background(), time.Second, false, 0.5, false)
	m.TrackError(context.Background(), FailureUnexpected)

	assert.Zero(t, m.Stats().Estimations)
	_, err := m.AnalyzeAccuracy(context.Background(), time.Hour)
	assert.Error(t, err)
}

func TestMonitorRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m := NewPerformanceMonitor(obs.NewMetricsRecorder(provider.Meter("test")), nil, nil)
	e := newTestEstimator(t, stubDistances{d: matrixDistance(3.5)}, stubLoad{snap: typicalLoad, peak: 1.0}, WithMonitor(m))

	_, err := e.Estimate(context.Background(), customerAddr, nil)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	assert.True(t, names["estimator.estimations"])
	assert.True(t, names["estimator.latency_ms"])
	assert.True(t, names["estimator.confidence"])
}

func sample(est, actual int, conf float64, zone domain.Zone) domain.AccuracySample {
	return domain.AccuracySample{EstimatedMinutes: est, ActualMinutes: actual, Confidence: conf, Zone: zone}
}

func TestComputeAccuracy(t *testing.T) {
	report := ComputeAccuracy([]domain.AccuracySample{
		sample(30, 32, 0.9, domain.ZoneInner),
		sample(40, 48, 0.7, domain.ZoneMiddle),
		sample(50, 62, 0.5, domain.ZoneOuter),
		sample(45, 65, 0.3, domain.ZoneOuter),
	})

	assert.Equal(t, 4, report.TotalComparisons)
	assert.InDelta(t, 10.5, report.AverageErrorMinutes, 1e-9)
	assert.InDelta(t, 10.0, report.MedianErrorMinutes, 1e-9)
	assert.Equal(t, 0.25, report.WithinFiveMinutes)
	assert.Equal(t, 0.5, report.WithinTenMinutes)
	assert.Equal(t, map[string]int{"0-5": 1, "6-10": 1, "11-15": 1, "16+": 1}, report.ErrorDistribution)
	assert.Greater(t, report.ConfidenceCorrelation, 0.9)
	assert.LessOrEqual(t, report.ConfidenceCorrelation, 1.0)

	outer := report.ZonePerformance[domain.ZoneOuter]
	assert.Equal(t, 2, outer.Count)
	assert.InDelta(t, 16.0, outer.AverageError, 1e-9)
	assert.InDelta(t, 47.5, outer.AverageEstimated, 1e-9)
	assert.InDelta(t, 63.5, outer.AverageActual, 1e-9)
	assert.Zero(t, outer.AccuracyRate)
	assert.Equal(t, 1.0, report.ZonePerformance[domain.ZoneInner].AccuracyRate)
}

func TestComputeAccuracyDegenerateInputs(t *testing.T) {
	empty := ComputeAccuracy(nil)
	assert.Zero(t, empty.TotalComparisons)
	assert.Len(t, empty.ErrorDistribution, 4)
	assert.Empty(t, empty.ZonePerformance)

	single := ComputeAccuracy([]domain.AccuracySample{sample(30, 40, 0.9, domain.ZoneInner)})
	assert.Zero(t, single.ConfidenceCorrelation)
	assert.Equal(t, 10.0, single.MedianErrorMinutes)

	flat := ComputeAccuracy([]domain.AccuracySample{
		sample(30, 31, 0.7, domain.ZoneInner),
		sample(30, 50, 0.7, domain.ZoneInner),
	})
	assert.Zero(t, flat.ConfidenceCorrelation)
}

func TestAnalyzeAccuracyUsesWindow(t *testing.T) {
	clock := clockz.NewFakeClock()
	actual := 38
	store := &memEstimates{recs: []domain.EstimateRecord{
		{ID: "a", OrderID: 1, Estimate: domain.DeliveryEstimate{EstimatedMinutes: 35, ConfidenceScore: 0.9, Zone: domain.ZoneInner}, ActualDeliveryMinutes: &actual},
		{ID: "b", OrderID: 2, Estimate: domain.DeliveryEstimate{EstimatedMinutes: 40}},
	}}

	m := NewPerformanceMonitor(nil, store, clock)
	report, err := m.AnalyzeAccuracy(context.Background(), 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, clock.Now().Add(-24*time.Hour), store.since)
	assert.Equal(t, 1, report.TotalComparisons)
	assert.InDelta(t, 3.0, report.AverageErrorMinutes, 1e-9)
}
