package services

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/platform/obs"
	"delivery-estimate-service/internal/ports"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
)

const latencyAlertThreshold = 2 * time.Second

// PerformanceMonitor tracks estimator latency, cache hits and errors, and
// analyzes accuracy once actual delivery times are known. A nil monitor is
// valid and records nothing.
type PerformanceMonitor struct {
	metrics   obs.MetricsRecorder
	estimates ports.EstimateRepository
	clock     clockz.Clock

	count        atomic.Int64
	cacheHits    atomic.Int64
	fallbacks    atomic.Int64
	latencyTotal atomic.Int64 // microseconds
	alerts       atomic.Int64

	mu        sync.Mutex
	errCounts map[string]int64
}

func NewPerformanceMonitor(metrics obs.MetricsRecorder, estimates ports.EstimateRepository, clock clockz.Clock) *PerformanceMonitor {
	if metrics == nil {
		metrics = obs.NoopMetrics{}
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	return &PerformanceMonitor{
		metrics:   metrics,
		estimates: estimates,
		clock:     clock,
		errCounts: make(map[string]int64),
	}
}

func (m *PerformanceMonitor) TrackEstimation(ctx context.Context, d time.Duration, cacheHit bool, confidence float64, fallback bool) {
	if m == nil {
		return
	}

	m.count.Add(1)
	m.latencyTotal.Add(d.Microseconds())
	if cacheHit {
		m.cacheHits.Add(1)
	}
	if fallback {
		m.fallbacks.Add(1)
	}
	m.metrics.RecordEstimation(ctx, d, cacheHit, confidence, fallback)

	if d > latencyAlertThreshold {
		m.alerts.Add(1)
		obs.Logger(ctx).Warn().
			Int64("dur_ms", d.Milliseconds()).
			Int64("threshold_ms", latencyAlertThreshold.Milliseconds()).
			Msg("slow delivery estimate")
	}
}

func (m *PerformanceMonitor) TrackError(ctx context.Context, kind string) {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.errCounts[kind]++
	m.mu.Unlock()
	m.metrics.RecordError(ctx, kind)
}

type MonitorStats struct {
	Estimations      int64            `json:"estimations"`
	CacheHitRate     float64          `json:"cache_hit_rate"`
	AverageLatencyMs float64          `json:"average_latency_ms"`
	Fallbacks        int64            `json:"fallbacks"`
	LatencyAlerts    int64            `json:"latency_alerts"`
	Errors           map[string]int64 `json:"errors"`
}

func (m *PerformanceMonitor) Stats() MonitorStats {
	if m == nil {
		return MonitorStats{Errors: map[string]int64{}}
	}

	s := MonitorStats{
		Estimations:   m.count.Load(),
		Fallbacks:     m.fallbacks.Load(),
		LatencyAlerts: m.alerts.Load(),
	}
	if s.Estimations > 0 {
		s.CacheHitRate = float64(m.cacheHits.Load()) / float64(s.Estimations)
		s.AverageLatencyMs = float64(m.latencyTotal.Load()) / 1000 / float64(s.Estimations)
	}

	m.mu.Lock()
	s.Errors = make(map[string]int64, len(m.errCounts))
	for k, v := range m.errCounts {
		s.Errors[k] = v
	}
	m.mu.Unlock()

	return s
}

// AnalyzeAccuracy compares estimates created within window against their
// actual delivery times.
func (m *PerformanceMonitor) AnalyzeAccuracy(ctx context.Context, window time.Duration) (domain.AccuracyReport, error) {
	if m == nil || m.estimates == nil {
		return domain.AccuracyReport{}, errors.New("analyze accuracy: estimate repository not configured")
	}

	recs, err := m.estimates.ListCompletedSince(ctx, m.clock.Now().Add(-window))
	if err != nil {
		return domain.AccuracyReport{}, fmt.Errorf("analyze accuracy: %w", err)
	}

	samples := make([]domain.AccuracySample, 0, len(recs))
	for _, r := range recs {
		if r.ActualDeliveryMinutes == nil {
			continue
		}
		samples = append(samples, domain.AccuracySample{
			EstimatedMinutes: r.Estimate.EstimatedMinutes,
			ActualMinutes:    *r.ActualDeliveryMinutes,
			Confidence:       r.Estimate.ConfidenceScore,
			Zone:             r.Estimate.Zone,
		})
	}

	return ComputeAccuracy(samples), nil
}

// ComputeAccuracy summarizes absolute estimate error. The correlation is
// between confidence and negative error, so well-calibrated confidence
// scores give a positive value.
func ComputeAccuracy(samples []domain.AccuracySample) domain.AccuracyReport {
	report := domain.AccuracyReport{
		TotalComparisons:  len(samples),
		ZonePerformance:   map[domain.Zone]domain.ZonePerformance{},
		ErrorDistribution: map[string]int{"0-5": 0, "6-10": 0, "11-15": 0, "16+": 0},
	}
	if len(samples) == 0 {
		return report
	}

	errs := make([]float64, len(samples))
	conf := make([]float64, len(samples))
	var sum float64
	var within5, within10 int

	type zoneAcc struct {
		n, accurate            int
		errSum, estSum, actSum float64
	}
	zones := map[domain.Zone]*zoneAcc{}

	for i, s := range samples {
		e := s.AbsError()
		errs[i] = float64(e)
		conf[i] = s.Confidence
		sum += float64(e)

		if e <= 5 {
			within5++
		}
		if e <= 10 {
			within10++
		}

		switch {
		case e <= 5:
			report.ErrorDistribution["0-5"]++
		case e <= 10:
			report.ErrorDistribution["6-10"]++
		case e <= 15:
			report.ErrorDistribution["11-15"]++
		default:
			report.ErrorDistribution["16+"]++
		}

		z := zones[s.Zone]
		if z == nil {
			z = &zoneAcc{}
			zones[s.Zone] = z
		}
		z.n++
		z.errSum += float64(e)
		z.estSum += float64(s.EstimatedMinutes)
		z.actSum += float64(s.ActualMinutes)
		if e <= 10 {
			z.accurate++
		}
	}

	n := float64(len(samples))
	report.AverageErrorMinutes = sum / n
	report.MedianErrorMinutes = median(errs)
	report.WithinFiveMinutes = float64(within5) / n
	report.WithinTenMinutes = float64(within10) / n

	negErr := make([]float64, len(errs))
	for i, e := range errs {
		negErr[i] = -e
	}
	report.ConfidenceCorrelation = pearson(conf, negErr)

	for zone, z := range zones {
		zn := float64(z.n)
		report.ZonePerformance[zone] = domain.ZonePerformance{
			Count:            z.n,
			AverageError:     z.errSum / zn,
			AverageEstimated: z.estSum / zn,
			AverageActual:    z.actSum / zn,
			AccuracyRate:     float64(z.accurate) / zn,
		}
	}

	return report
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

// pearson returns 0 for fewer than two points or zero variance.
func pearson(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}

	n := float64(len(x))
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n

	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}

	r := cov / math.Sqrt(vx*vy)
	return math.Max(-1, math.Min(1, r))
}
