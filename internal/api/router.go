package api

import (
	"delivery-estimate-service/internal/api/handlers"
	"net/http"
)

type Deps struct {
	Estimator  handlers.Estimator
	Orders     handlers.OrderReader
	Completion handlers.DeliveryCompleter
	Monitor    handlers.Monitor
	Load       handlers.LoadReporter
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// Handlers stay unaware of concrete adapters.
func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()

	estimates := &handlers.EstimateHandler{Estimator: deps.Estimator}
	orders := &handlers.OrderHandler{
		Orders:     deps.Orders,
		Estimator:  deps.Estimator,
		Completion: deps.Completion,
	}
	perf := &handlers.PerformanceHandler{Monitor: deps.Monitor}
	load := &handlers.LoadHandler{Load: deps.Load}

	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("POST /estimates", estimates.Create)
	mux.HandleFunc("POST /addresses/validate", estimates.ValidateAddress)
	mux.HandleFunc("GET /zones", estimates.Zones)
	mux.HandleFunc("POST /orders/{id}/estimate", orders.Estimate)
	mux.HandleFunc("POST /orders/{id}/delivered", orders.Delivered)
	mux.HandleFunc("GET /performance", perf.Stats)
	mux.HandleFunc("GET /performance/accuracy", perf.Accuracy)
	mux.HandleFunc("GET /load", load.Current)

	return requestIDMiddleware(loggingMiddleware(mux))
}
