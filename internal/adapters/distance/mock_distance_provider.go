package distance

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/ports"
	"fmt"
	"sync/atomic"
)

type MockPair struct {
	From, To       string
	Meters         int
	Seconds        int
	TrafficSeconds int
}

// MockDistanceProvider answers from a fixed table. Err, when set, is
// returned for every call.
type MockDistanceProvider struct {
	m     map[string]ports.DistanceResult
	Err   error
	calls atomic.Int64
}

func NewMockDistanceProvider(pairs []MockPair) *MockDistanceProvider {
	m := make(map[string]ports.DistanceResult, len(pairs))
	for _, p := range pairs {
		r := ports.DistanceResult{DistanceMeters: p.Meters, DurationSeconds: p.Seconds}
		if p.TrafficSeconds > 0 {
			ts := p.TrafficSeconds
			r.DurationInTrafficSeconds = &ts
		}
		m[p.From+"|"+p.To] = r
	}
	return &MockDistanceProvider{m: m}
}

func (p *MockDistanceProvider) GetDistance(ctx context.Context, origin, destination string) (ports.DistanceResult, error) {
	p.calls.Add(1)
	if p.Err != nil {
		return ports.DistanceResult{}, p.Err
	}

	r, ok := p.m[origin+"|"+destination]
	if !ok {
		return ports.DistanceResult{}, fmt.Errorf("missing pair %q -> %q: %w", origin, destination, ports.ErrNoResults)
	}
	return r, nil
}

func (p *MockDistanceProvider) Calls() int { return int(p.calls.Load()) }

// MockGeocoder answers from a fixed address table.
type MockGeocoder struct {
	m     map[string]domain.Coordinates
	Err   error
	calls atomic.Int64
}

func NewMockGeocoder(points map[string]domain.Coordinates) *MockGeocoder {
	return &MockGeocoder{m: points}
}

func (g *MockGeocoder) Geocode(ctx context.Context, address string) (domain.Coordinates, error) {
	g.calls.Add(1)
	if g.Err != nil {
		return domain.Coordinates{}, g.Err
	}

	c, ok := g.m[address]
	if !ok {
		return domain.Coordinates{}, fmt.Errorf("mock geocode %q: %w", address, ports.ErrNoResults)
	}
	return c, nil
}

func (g *MockGeocoder) Calls() int { return int(g.calls.Load()) }
