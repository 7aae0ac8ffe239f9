package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)

	// Operations
	mux.Handle("POST /api/v1/operations", chain(http.HandlerFunc(h.SubmitOperation)))
	mux.Handle("POST /api/v1/operations/preview", chain(http.HandlerFunc(h.PreviewOperation)))
	mux.Handle("GET /api/v1/templates", chain(http.HandlerFunc(h.ListTemplates)))

	// Plans
	mux.Handle("GET /api/v1/plans", chain(http.HandlerFunc(h.ListPlans)))
	mux.Handle("GET /api/v1/plans/{id}", chain(http.HandlerFunc(h.GetPlan)))
	mux.Handle("POST /api/v1/plans/{id}/cancel", chain(http.HandlerFunc(h.CancelPlan)))

	// Workers
	mux.Handle("GET /api/v1/workers", chain(http.HandlerFunc(h.ListWorkers)))
	mux.Handle("GET /api/v1/workers/{type}", chain(http.HandlerFunc(h.GetWorker)))
	mux.Handle("PUT /api/v1/workers/{type}/health", chain(http.HandlerFunc(h.ReportWorkerHealth)))

	// Stats
	mux.Handle("GET /api/v1/stats", chain(http.HandlerFunc(h.GetStats)))
}
