package ports

import (
	"context"
	"delivery-estimate-service/internal/domain"
)

// DistanceResult is a single origin -> destination road measurement.
type DistanceResult struct {
	DistanceMeters  int
	DurationSeconds int
	// DurationInTrafficSeconds is set when the provider returned a
	// traffic-aware duration.
	DurationInTrafficSeconds *int
}

// DistanceProvider computes driving distance between two addresses.
type DistanceProvider interface {
	GetDistance(ctx context.Context, origin, destination string) (DistanceResult, error)
}

// Geocoder resolves a free-text address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (domain.Coordinates, error)
}
