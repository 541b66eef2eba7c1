package services

import (
	"context"
	"delivery-estimate-service/internal/config"
	"delivery-estimate-service/internal/domain"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fixedRand always draws v (mod n).
type fixedRand int

func (f fixedRand) IntN(n int) int { return int(f) % n }

type stubDistances struct {
	d        domain.Distance
	panicMsg string
}

func (s stubDistances) Resolve(context.Context, string) domain.Distance {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.d
}

type stubLoad struct {
	snap domain.LoadSnapshot
	peak float64
}

func (s stubLoad) CurrentLoad(context.Context) domain.LoadSnapshot { return s.snap }
func (s stubLoad) PeakHoursFactor() float64                         { return s.peak }

type counterFunc func(states []domain.OrderState) (int, error)

func (f counterFunc) CountOrdersInStates(_ context.Context, states []domain.OrderState) (int, error) {
	return f(states)
}

type capturePublisher struct {
	mu   sync.Mutex
	recs []domain.EstimateRecord
	err  error
}

func (p *capturePublisher) PublishEstimate(_ context.Context, rec domain.EstimateRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return p.err
}

func (p *capturePublisher) published() []domain.EstimateRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.EstimateRecord(nil), p.recs...)
}

// memEstimates is an in-memory estimate store for monitor tests.
type memEstimates struct {
	recs  []domain.EstimateRecord
	since time.Time
}

func (m *memEstimates) SupersedeAndSave(_ context.Context, rec domain.EstimateRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memEstimates) ActiveForOrder(context.Context, int64) (*domain.EstimateRecord, error) {
	return nil, nil
}

func (m *memEstimates) RecordActualDelivery(context.Context, int64, int) error { return nil }

func (m *memEstimates) ListCompletedSince(_ context.Context, since time.Time) ([]domain.EstimateRecord, error) {
	m.since = since
	return m.recs, nil
}

func testSettings(t *testing.T, mutate ...func(*config.Estimation)) *Settings {
	t.Helper()
	cfg := config.DefaultEstimation()
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewSettings(cfg)
	require.NoError(t, err)
	return s
}
