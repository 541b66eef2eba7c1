package handlers

import (
	"context"
	"delivery-estimate-service/internal/api/dto"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/services"
	"net/http"
)

type OrderReader interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
}

type DeliveryCompleter interface {
	CompleteDelivery(ctx context.Context, orderID int64) (services.CompletionResult, error)
}

type OrderHandler struct {
	Orders     OrderReader
	Estimator  Estimator
	Completion DeliveryCompleter
}

// Estimate computes and stores a fresh estimate for an existing order,
// superseding any earlier one.
func (h *OrderHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	o, err := h.Orders.GetOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	rec, err := h.Estimator.EstimateForOrder(r.Context(), o)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, dto.OrderEstimateResponse{
		EstimateID: rec.ID,
		OrderID:    rec.OrderID,
		Estimate:   rec.Estimate,
	})
}

// Delivered marks the order delivered and refreshes the queue's estimates.
func (h *OrderHandler) Delivered(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := h.Completion.CompleteDelivery(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	estimates := res.Reestimated
	if estimates == nil {
		estimates = []domain.DeliveryEstimate{}
	}
	writeJSON(w, r, http.StatusOK, dto.CompletionResponse{
		OrderID:       id,
		ActualMinutes: res.ActualMinutes,
		Updated:       len(estimates),
		Estimates:     estimates,
	})
}
