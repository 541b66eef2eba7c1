package domain

import "time"

// Zone is a coarse distance band used for display and fees.
type Zone string

const (
	ZoneInner  Zone = "inner"
	ZoneMiddle Zone = "middle"
	ZoneOuter  Zone = "outer"
)

const (
	InnerZoneMaxMiles  = 2.0
	MiddleZoneMaxMiles = 5.0
)

// ClassifyZone maps a distance in miles to its zone.
func ClassifyZone(miles float64) Zone {
	switch {
	case miles <= InnerZoneMaxMiles:
		return ZoneInner
	case miles <= MiddleZoneMaxMiles:
		return ZoneMiddle
	default:
		return ZoneOuter
	}
}

// Factors carries explanatory data about an estimate. It is never used to
// recompute EstimatedMinutes.
type Factors struct {
	PeakFactor          float64 `json:"peak_factor"`
	TravelTimeMinutes   int     `json:"travel_time_minutes"`
	CapacityUtilization float64 `json:"capacity_utilization"`
	QueuePosition       int     `json:"queue_position"`
	QueueTimeMinutes    int     `json:"queue_time_minutes"`
	OrderComplexity     float64 `json:"order_complexity"`
	DistanceSource      string  `json:"distance_source,omitempty"`
	CacheHit            bool    `json:"cache_hit"`

	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DeliveryEstimate is an immutable ETA. The breakdown minutes are recorded
// before the peak multiplier and the clamp, so their sum only equals
// EstimatedMinutes when the peak factor is 1.0 and no clamping occurred.
type DeliveryEstimate struct {
	EstimatedMinutes       int       `json:"estimated_minutes"`
	DistanceMiles          float64   `json:"distance_miles"`
	BaseTimeMinutes        int       `json:"base_time_minutes"`
	DistanceTimeMinutes    int       `json:"distance_time_minutes"`
	LoadTimeMinutes        int       `json:"load_time_minutes"`
	RandomVariationMinutes int       `json:"random_variation_minutes"`
	ConfidenceScore        float64   `json:"confidence_score"`
	Zone                   Zone      `json:"zone"`
	CreatedAt              time.Time `json:"created_at"`
	Factors                Factors   `json:"factors"`
}

// BreakdownSum is the pre-adjustment total of the additive components.
func (e DeliveryEstimate) BreakdownSum() int {
	return e.BaseTimeMinutes + e.DistanceTimeMinutes + e.LoadTimeMinutes + e.RandomVariationMinutes
}

// EstimateRecord is a persisted estimate for one order. A newer record for the
// same order supersedes the older one, which stays stored with Active=false.
type EstimateRecord struct {
	ID                    string
	OrderID               int64
	Estimate              DeliveryEstimate
	Active                bool
	ActualDeliveryMinutes *int
}
