package services

import (
	"context"
	"delivery-estimate-service/internal/config"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/platform/obs"
	"delivery-estimate-service/internal/ports"
	"fmt"
	"math"
	"strings"
)

const metersPerMile = 1609.344

// Confidence assigned to each resolver step.
const (
	matrixConfidence     = 0.9
	geocodeConfidence    = 0.7
	altGeocodeConfidence = 0.5
	keywordConfidence    = 0.3
	defaultConfidence    = 0.2
)

type geocodeStep struct {
	name       string
	source     domain.DistanceSource
	roadFactor float64
	speedMPH   float64
	confidence float64
}

var (
	primaryGeocodeStep = geocodeStep{"geocode", domain.SourceGeocode, 1.3, 25, geocodeConfidence}
	altGeocodeStep     = geocodeStep{"alt_geocode", domain.SourceAltGeocode, 1.4, 20, altGeocodeConfidence}
)

// DistanceResolver turns a free-text address into a road distance from the
// restaurant. Steps, in order: cache, distance matrix, geocode+haversine,
// alternate geocoder, keyword heuristic. Any collaborator may be nil, in
// which case its step is skipped.
type DistanceResolver struct {
	settings    *Settings
	cache       ports.DistanceCache
	matrix      ports.DistanceProvider
	geocoder    ports.Geocoder
	altGeocoder ports.Geocoder
	metrics     obs.MetricsRecorder
}

type ResolverOption func(*DistanceResolver)

func WithDistanceCache(c ports.DistanceCache) ResolverOption {
	return func(r *DistanceResolver) { r.cache = c }
}

func WithDistanceMatrix(p ports.DistanceProvider) ResolverOption {
	return func(r *DistanceResolver) { r.matrix = p }
}

func WithGeocoder(g ports.Geocoder) ResolverOption {
	return func(r *DistanceResolver) { r.geocoder = g }
}

func WithAltGeocoder(g ports.Geocoder) ResolverOption {
	return func(r *DistanceResolver) { r.altGeocoder = g }
}

func WithResolverMetrics(m obs.MetricsRecorder) ResolverOption {
	return func(r *DistanceResolver) { r.metrics = m }
}

func NewDistanceResolver(settings *Settings, opts ...ResolverOption) *DistanceResolver {
	r := &DistanceResolver{settings: settings, metrics: obs.NoopMetrics{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CacheKey normalizes an address for cache lookups.
func CacheKey(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// Resolve never fails. Degradation shows up as lower confidence.
func (r *DistanceResolver) Resolve(ctx context.Context, address string) (d domain.Distance) {
	log := obs.Logger(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("failure", FailureUnexpected).
				Interface("panic", rec).
				Msg("distance resolution panicked, using conservative distance")
			r.metrics.RecordError(ctx, FailureUnexpected)
			d = domain.ConservativeDistance()
		}
		r.metrics.RecordDistanceSource(ctx, string(d.Source))
	}()

	cfg := r.settings.Load()
	key := CacheKey(address)
	if key == "" {
		return HeuristicDistance(address)
	}

	if cached, ok := r.fromCache(ctx, key); ok {
		return cached
	}

	d, ok := r.fromMatrix(ctx, cfg, address)
	if !ok {
		d, ok = r.fromGeocoder(ctx, cfg, r.geocoder, primaryGeocodeStep, address)
	}
	if !ok {
		d, ok = r.fromGeocoder(ctx, cfg, r.altGeocoder, altGeocodeStep, address)
	}
	if !ok {
		return HeuristicDistance(address)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, d, cfg.DistanceCacheTTL); err != nil {
			r.degraded(ctx, "cache_write", err)
		}
	}
	return d
}

func (r *DistanceResolver) fromCache(ctx context.Context, key string) (domain.Distance, bool) {
	if r.cache == nil {
		return domain.Distance{}, false
	}

	d, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.degraded(ctx, "cache_read", err)
		return domain.Distance{}, false
	}
	if !ok {
		return domain.Distance{}, false
	}

	d.CacheHit = true
	return d, true
}

func (r *DistanceResolver) fromMatrix(ctx context.Context, cfg config.Estimation, address string) (domain.Distance, bool) {
	if r.matrix == nil {
		return domain.Distance{}, false
	}

	stepCtx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout)
	defer cancel()

	res, err := r.matrix.GetDistance(stepCtx, cfg.Restaurant.Address, address)
	if err == nil && res.DistanceMeters < 0 {
		err = fmt.Errorf("%w: negative distance %d", ports.ErrMalformedResponse, res.DistanceMeters)
	}
	if err != nil {
		r.degraded(ctx, "distance_matrix", err)
		return domain.Distance{}, false
	}

	seconds := res.DurationSeconds
	if res.DurationInTrafficSeconds != nil {
		seconds = *res.DurationInTrafficSeconds
	}

	return domain.Distance{
		Miles:         roundMiles(float64(res.DistanceMeters) / metersPerMile),
		TravelMinutes: int(math.Round(float64(seconds) / 60)),
		Confidence:    matrixConfidence,
		Source:        domain.SourceDistanceMatrix,
	}, true
}

func (r *DistanceResolver) fromGeocoder(
	ctx context.Context,
	cfg config.Estimation,
	g ports.Geocoder,
	step geocodeStep,
	address string,
) (domain.Distance, bool) {
	if g == nil {
		return domain.Distance{}, false
	}

	stepCtx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout)
	defer cancel()

	dest, err := g.Geocode(stepCtx, address)
	if err == nil && !validCoordinates(dest) {
		err = fmt.Errorf("%w: coordinates out of range %+v", ports.ErrMalformedResponse, dest)
	}
	if err != nil {
		r.degraded(ctx, step.name, err)
		return domain.Distance{}, false
	}

	origin := domain.Coordinates{Lon: cfg.Restaurant.Lng, Lat: cfg.Restaurant.Lat}
	miles := domain.HaversineMiles(origin, dest) * step.roadFactor

	return domain.Distance{
		Miles:         roundMiles(miles),
		TravelMinutes: int(miles / step.speedMPH * 60),
		Confidence:    step.confidence,
		Source:        step.source,
	}, true
}

// degraded logs an expected fallback with its failure kind.
func (r *DistanceResolver) degraded(ctx context.Context, step string, err error) {
	kind := ClassifyFailure(err)
	ev := obs.Logger(ctx).Warn()
	if kind == FailureUnexpected {
		ev = obs.Logger(ctx).Error()
	}
	ev.Str("step", step).Str("failure", kind).Err(err).Msg("distance step failed, falling back")
	r.metrics.RecordError(ctx, kind)
}

var heuristicRules = []struct {
	keywords []string
	miles    float64
	minutes  int
}{
	{[]string{"downtown", "center", "main st"}, 1.5, 8},
	{[]string{"suburb", "heights", "hills"}, 4.0, 20},
	{[]string{"county", "rural", "rd"}, 6.0, 30},
}

// HeuristicDistance guesses a distance from address keywords without any
// network access.
func HeuristicDistance(address string) domain.Distance {
	lower := strings.ToLower(address)
	for _, rule := range heuristicRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return domain.Distance{
					Miles:         rule.miles,
					TravelMinutes: rule.minutes,
					Confidence:    keywordConfidence,
					Source:        domain.SourceHeuristic,
				}
			}
		}
	}
	return domain.Distance{Miles: 3.0, TravelMinutes: 15, Confidence: defaultConfidence, Source: domain.SourceHeuristic}
}

func roundMiles(m float64) float64 {
	return math.Round(m*100) / 100
}

func validCoordinates(c domain.Coordinates) bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lon) &&
		c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
