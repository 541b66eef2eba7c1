package handlers

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/services"
	"net/http"
	"strconv"
	"time"
)

const maxAccuracyWindowHours = 24 * 90

type Monitor interface {
	Stats() services.MonitorStats
	AnalyzeAccuracy(ctx context.Context, window time.Duration) (domain.AccuracyReport, error)
}

type PerformanceHandler struct {
	Monitor Monitor
}

func (h *PerformanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.Monitor.Stats())
}

// Accuracy reports estimate error over the last ?hours= (default 24).
func (h *PerformanceHandler) Accuracy(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAccuracyWindowHours {
			writeError(w, r, http.StatusBadRequest, "hours must be between 1 and 2160")
			return
		}
		hours = n
	}

	report, err := h.Monitor.AnalyzeAccuracy(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}
