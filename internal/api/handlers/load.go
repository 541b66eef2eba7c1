package handlers

import (
	"context"
	"delivery-estimate-service/internal/api/dto"
	"delivery-estimate-service/internal/domain"
	"net/http"
)

type LoadReporter interface {
	CurrentLoad(ctx context.Context) domain.LoadSnapshot
	PeakHoursFactor() float64
}

type LoadHandler struct {
	Load LoadReporter
}

// Current reports kitchen load and the peak-hour multiplier in effect now.
func (h *LoadHandler) Current(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, dto.LoadResponse{
		LoadSnapshot: h.Load.CurrentLoad(r.Context()),
		PeakFactor:   h.Load.PeakHoursFactor(),
	})
}
