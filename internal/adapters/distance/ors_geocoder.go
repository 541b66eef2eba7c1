package distance

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/platform/obs"
	"delivery-estimate-service/internal/ports"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

const orsBaseURL = "https://api.openrouteservice.org"

// ORSGeocoder is the alternate geocoder backed by OpenRouteService
// (/geocode/search, Pelias). It is safe for concurrent use.
type ORSGeocoder struct {
	http    *httpClient
	country string
}

func NewORSGeocoder(apiKey string, opts ...Option) (*ORSGeocoder, error) {
	if apiKey == "" {
		return nil, errors.New("ORS api key is empty")
	}

	c := newHTTPClient(orsBaseURL, opts)
	c.decorate = func(req *http.Request) {
		req.Header.Set("Authorization", apiKey)
	}

	return &ORSGeocoder{http: c, country: "US"}, nil
}

type orsGeocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

func (o *ORSGeocoder) Geocode(ctx context.Context, address string) (_ domain.Coordinates, err error) {
	defer obs.Time(ctx, "ors.Geocode")(&err)

	norm := normalize(address)
	if norm == "" {
		return domain.Coordinates{}, errors.New("ors geocode: address must be non-empty")
	}

	q := url.Values{}
	q.Set("text", norm)
	q.Set("boundary.country", o.country)
	q.Set("size", "1")

	var decoded orsGeocodeResponse
	if err := o.http.getJSON(ctx, "/geocode/search", q, &decoded); err != nil {
		return domain.Coordinates{}, fmt.Errorf("ors geocode %q: %w", norm, err)
	}

	if len(decoded.Features) == 0 {
		return domain.Coordinates{}, fmt.Errorf("ors geocode %q: %w", norm, ports.ErrNoResults)
	}

	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		return domain.Coordinates{}, fmt.Errorf("ors geocode %q: %w: invalid coordinate format", norm, ports.ErrMalformedResponse)
	}

	return domain.Coordinates{Lon: coords[0], Lat: coords[1]}, nil
}
