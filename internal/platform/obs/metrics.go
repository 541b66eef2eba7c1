package obs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "delivery-estimate-service"

// MetricsRecorder records estimator metrics.
// Use NewMetricsRecorder for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	RecordEstimation(ctx context.Context, duration time.Duration, cacheHit bool, confidence float64, fallback bool)
	RecordError(ctx context.Context, kind string)
	RecordDistanceSource(ctx context.Context, source string)
}

type otelMetrics struct {
	estimations metric.Int64Counter
	latency     metric.Float64Histogram
	cacheHits   metric.Int64Counter
	errors      metric.Int64Counter
	confidence  metric.Float64Histogram
	sources     metric.Int64Counter
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	estimations, err := meter.Int64Counter("estimator.estimations",
		metric.WithDescription("Number of delivery estimates produced"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("estimator.latency_ms",
		metric.WithDescription("Estimate latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter("estimator.cache_hits",
		metric.WithDescription("Estimates whose distance came from cache"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter("estimator.errors",
		metric.WithDescription("Estimation errors by kind"),
	)
	if err != nil {
		return nil, err
	}

	confidence, err := meter.Float64Histogram("estimator.confidence",
		metric.WithDescription("Confidence score of produced estimates"),
	)
	if err != nil {
		return nil, err
	}

	sources, err := meter.Int64Counter("estimator.distance_sources",
		metric.WithDescription("Distance resolutions by resolver step"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		estimations: estimations,
		latency:     latency,
		cacheHits:   cacheHits,
		errors:      errs,
		confidence:  confidence,
		sources:     sources,
	}, nil
}

// NewMetricsRecorder builds instruments on meter, or on the global meter
// provider when meter is nil. Instrument failures yield a no-op recorder.
func NewMetricsRecorder(meter metric.Meter) MetricsRecorder {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	m, err := newOtelMetrics(meter)
	if err != nil {
		Logger(context.Background()).Warn().Err(err).Msg("metrics initialization failed, using no-op recorder")
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordEstimation(ctx context.Context, duration time.Duration, cacheHit bool, confidence float64, fallback bool) {
	attrs := metric.WithAttributes(attribute.Bool("fallback", fallback))

	m.estimations.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.confidence.Record(ctx, confidence, attrs)
	if cacheHit {
		m.cacheHits.Add(ctx, 1)
	}
}

func (m *otelMetrics) RecordError(ctx context.Context, kind string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *otelMetrics) RecordDistanceSource(ctx context.Context, source string) {
	m.sources.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// NoopMetrics discards all measurements.
type NoopMetrics struct{}

func (NoopMetrics) RecordEstimation(context.Context, time.Duration, bool, float64, bool) {}
func (NoopMetrics) RecordError(context.Context, string)                                {}
func (NoopMetrics) RecordDistanceSource(context.Context, string)                       {}
