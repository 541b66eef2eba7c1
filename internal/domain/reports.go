package domain

// AddressValidation is the answer to "can we deliver here?".
type AddressValidation struct {
	IsValid          bool    `json:"is_valid"`
	DistanceMiles    float64 `json:"distance_miles"`
	MaxDistance      float64 `json:"max_distance"`
	Zone             Zone    `json:"zone,omitempty"`
	EstimatedMinutes *int    `json:"estimated_time,omitempty"`
	Error            string  `json:"error,omitempty"`
	SuggestedFix     string  `json:"suggested_fix,omitempty"`
}

type ZoneInfo struct {
	MinMiles    float64 `json:"min_miles"`
	MaxMiles    float64 `json:"max_miles"`
	Description string  `json:"description"`
}

// ZonesInfo is static reference data derived from configuration.
type ZonesInfo struct {
	Zones              map[Zone]ZoneInfo `json:"zones"`
	MaxDeliveryRadius  float64           `json:"max_delivery_radius"`
	BaseDeliveryTime   int               `json:"base_delivery_time"`
	MinDeliveryMinutes int               `json:"min_delivery_time"`
	MaxDeliveryMinutes int               `json:"max_delivery_time"`
}

// AccuracySample pairs an estimate with the observed delivery time.
type AccuracySample struct {
	EstimatedMinutes int
	ActualMinutes    int
	Confidence       float64
	Zone             Zone
}

func (s AccuracySample) AbsError() int {
	d := s.EstimatedMinutes - s.ActualMinutes
	if d < 0 {
		return -d
	}
	return d
}

type ZonePerformance struct {
	Count            int     `json:"count"`
	AverageError     float64 `json:"average_error_minutes"`
	AverageEstimated float64 `json:"average_estimated_minutes"`
	AverageActual    float64 `json:"average_actual_minutes"`
	AccuracyRate     float64 `json:"accuracy_rate"`
}

// AccuracyReport summarizes estimate error over completed deliveries.
type AccuracyReport struct {
	TotalComparisons      int                      `json:"total_comparisons"`
	AverageErrorMinutes   float64                  `json:"average_error_minutes"`
	MedianErrorMinutes    float64                  `json:"median_error_minutes"`
	WithinFiveMinutes     float64                  `json:"within_5_minutes"`
	WithinTenMinutes      float64                  `json:"within_10_minutes"`
	ConfidenceCorrelation float64                  `json:"confidence_accuracy_correlation"`
	ZonePerformance       map[Zone]ZonePerformance `json:"zone_performance"`
	ErrorDistribution     map[string]int           `json:"error_distribution"`
}
