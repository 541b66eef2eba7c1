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

const googleBaseURL = "https://maps.googleapis.com/maps/api"

// GoogleMapsClient implements DistanceProvider (Distance Matrix with live
// traffic) and Geocoder (Geocoding API). It is safe for concurrent use.
type GoogleMapsClient struct {
	http   *httpClient
	apiKey string
}

func NewGoogleMapsClient(apiKey string, opts ...Option) (*GoogleMapsClient, error) {
	if apiKey == "" {
		return nil, errors.New("google maps api key is empty")
	}

	c := &GoogleMapsClient{apiKey: apiKey}
	c.http = newHTTPClient(googleBaseURL, opts)
	return c, nil
}

type googleValue struct {
	Value int `json:"value"`
}

type matrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status            string       `json:"status"`
			Distance          *googleValue `json:"distance"`
			Duration          *googleValue `json:"duration"`
			DurationInTraffic *googleValue `json:"duration_in_traffic"`
		} `json:"elements"`
	} `json:"rows"`
}

// GetDistance queries the Distance Matrix for a single driving pair,
// departing now so that duration_in_traffic is populated.
func (g *GoogleMapsClient) GetDistance(ctx context.Context, origin, destination string) (_ ports.DistanceResult, err error) {
	defer obs.Time(ctx, "google.GetDistance")(&err)

	origin, destination = normalize(origin), normalize(destination)
	if origin == "" || destination == "" {
		return ports.DistanceResult{}, errors.New("get google distance: origin and destination must be non-empty")
	}

	q := url.Values{}
	q.Set("origins", origin)
	q.Set("destinations", destination)
	q.Set("mode", "driving")
	q.Set("departure_time", "now")
	q.Set("traffic_model", "best_guess")
	q.Set("units", "imperial")
	q.Set("key", g.apiKey)

	var decoded matrixResponse
	if err := g.http.getJSON(ctx, "/distancematrix/json", q, &decoded); err != nil {
		return ports.DistanceResult{}, fmt.Errorf("get google distance %q: %w", destination, err)
	}

	if err := statusErr(decoded.Status, decoded.ErrorMessage); err != nil {
		return ports.DistanceResult{}, fmt.Errorf("get google distance %q: %w", destination, err)
	}
	if len(decoded.Rows) == 0 || len(decoded.Rows[0].Elements) == 0 {
		return ports.DistanceResult{}, fmt.Errorf("get google distance %q: %w: empty matrix", destination, ports.ErrMalformedResponse)
	}

	el := decoded.Rows[0].Elements[0]
	if err := statusErr(el.Status, ""); err != nil {
		return ports.DistanceResult{}, fmt.Errorf("get google distance %q: %w", destination, err)
	}
	if el.Distance == nil || el.Duration == nil {
		return ports.DistanceResult{}, fmt.Errorf("get google distance %q: %w: element missing distance or duration",
			destination, ports.ErrMalformedResponse)
	}

	res := ports.DistanceResult{
		DistanceMeters:  el.Distance.Value,
		DurationSeconds: el.Duration.Value,
	}
	if el.DurationInTraffic != nil {
		v := el.DurationInTraffic.Value
		res.DurationInTrafficSeconds = &v
	}
	return res, nil
}

type googleGeocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location *struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (g *GoogleMapsClient) Geocode(ctx context.Context, address string) (_ domain.Coordinates, err error) {
	defer obs.Time(ctx, "google.Geocode")(&err)

	address = normalize(address)
	if address == "" {
		return domain.Coordinates{}, errors.New("google geocode: address must be non-empty")
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)

	var decoded googleGeocodeResponse
	if err := g.http.getJSON(ctx, "/geocode/json", q, &decoded); err != nil {
		return domain.Coordinates{}, fmt.Errorf("google geocode %q: %w", address, err)
	}
	if err := statusErr(decoded.Status, decoded.ErrorMessage); err != nil {
		return domain.Coordinates{}, fmt.Errorf("google geocode %q: %w", address, err)
	}
	if len(decoded.Results) == 0 {
		return domain.Coordinates{}, fmt.Errorf("google geocode %q: %w", address, ports.ErrNoResults)
	}

	loc := decoded.Results[0].Geometry.Location
	if loc == nil {
		return domain.Coordinates{}, fmt.Errorf("google geocode %q: %w: missing location", address, ports.ErrMalformedResponse)
	}
	return domain.Coordinates{Lon: loc.Lng, Lat: loc.Lat}, nil
}

// statusErr maps Google's in-body status codes onto typed errors.
func statusErr(status, msg string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return ports.ErrNoResults
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return &ports.StatusError{Code: http.StatusTooManyRequests, Body: status}
	case "UNKNOWN_ERROR":
		return &ports.StatusError{Code: http.StatusServiceUnavailable, Body: status}
	case "REQUEST_DENIED", "INVALID_REQUEST", "MAX_ELEMENTS_EXCEEDED", "MAX_DIMENSIONS_EXCEEDED":
		return fmt.Errorf("%w: %s %s", ports.ErrProviderRejected, status, msg)
	case "":
		return fmt.Errorf("%w: missing status", ports.ErrMalformedResponse)
	default:
		return fmt.Errorf("%w: unexpected status %q", ports.ErrMalformedResponse, status)
	}
}
