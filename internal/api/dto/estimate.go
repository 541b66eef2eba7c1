package dto

import "delivery-estimate-service/internal/domain"

type EstimateRequest struct {
	Address      string               `json:"address"`
	OrderDetails *domain.OrderContext `json:"order_details,omitempty"`
}

type ValidateAddressRequest struct {
	Address string `json:"address"`
}

type OrderEstimateResponse struct {
	EstimateID string                  `json:"estimate_id"`
	OrderID    int64                   `json:"order_id"`
	Estimate   domain.DeliveryEstimate `json:"estimate"`
}

type CompletionResponse struct {
	OrderID       int64                     `json:"order_id"`
	ActualMinutes int                       `json:"actual_delivery_minutes"`
	Updated       int                       `json:"updated_estimates"`
	Estimates     []domain.DeliveryEstimate `json:"estimates"`
}

type LoadResponse struct {
	domain.LoadSnapshot
	PeakFactor float64 `json:"peak_factor"`
}
