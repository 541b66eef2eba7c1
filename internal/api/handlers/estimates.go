package handlers

import (
	"context"
	"delivery-estimate-service/internal/api/dto"
	"delivery-estimate-service/internal/domain"
	"net/http"
	"strings"
)

// Estimator is the estimation surface the HTTP layer depends on.
type Estimator interface {
	Estimate(ctx context.Context, address string, oc *domain.OrderContext) (domain.DeliveryEstimate, error)
	ValidateDeliveryAddress(ctx context.Context, address string) domain.AddressValidation
	DeliveryZonesInfo() domain.ZonesInfo
	EstimateForOrder(ctx context.Context, o *domain.Order) (domain.EstimateRecord, error)
}

type EstimateHandler struct {
	Estimator Estimator
}

// Create estimates an ad-hoc address, typically from the checkout page.
func (h *EstimateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.EstimateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeError(w, r, http.StatusBadRequest, "address is required")
		return
	}

	est, err := h.Estimator.Estimate(r.Context(), req.Address, req.OrderDetails)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, est)
}

func (h *EstimateHandler) ValidateAddress(w http.ResponseWriter, r *http.Request) {
	var req dto.ValidateAddressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, r, http.StatusOK, h.Estimator.ValidateDeliveryAddress(r.Context(), req.Address))
}

func (h *EstimateHandler) Zones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.Estimator.DeliveryZonesInfo())
}
