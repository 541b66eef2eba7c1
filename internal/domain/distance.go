package domain

// DistanceSource names the resolver step that produced a Distance.
type DistanceSource string

const (
	SourceCache          DistanceSource = "cache"
	SourceDistanceMatrix DistanceSource = "distance_matrix"
	SourceGeocode        DistanceSource = "geocode"
	SourceAltGeocode     DistanceSource = "alt_geocode"
	SourceHeuristic      DistanceSource = "heuristic"
	SourceFallback       DistanceSource = "fallback"
)

// Distance is a resolved road distance from the restaurant.
type Distance struct {
	Miles         float64        `json:"miles"`
	TravelMinutes int            `json:"travel_minutes"`
	Confidence    float64        `json:"confidence"`
	Source        DistanceSource `json:"source"`
	CacheHit      bool           `json:"-"`
}

// ConservativeDistance is returned when resolution fails unexpectedly.
func ConservativeDistance() Distance {
	return Distance{Miles: 3.0, TravelMinutes: 15, Confidence: 0.3, Source: SourceFallback}
}
