package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/dbflow/internal/domain"
)

// ListWorkers возвращает зарегистрированные воркеры с последним известным здоровьем.
// GET /api/v1/workers
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers := h.svc.ListWorkers()
	List(w, workers, len(workers))
}

// GetWorker возвращает воркер по типу.
// GET /api/v1/workers/{type}
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	desc, err := h.svc.GetWorker(domain.WorkerType(r.PathValue("type")))
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, desc)
}

// ReportWorkerHealth применяет внешний отчёт о здоровье воркера.
// PUT /api/v1/workers/{type}/health
//
// Обновление асинхронное: writer-горутина реестра применит его позже,
// поэтому ответ — 202.
func (h *Handler) ReportWorkerHealth(w http.ResponseWriter, r *http.Request) {
	workerType := domain.WorkerType(r.PathValue("type"))

	var req ReportHealthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	err := h.svc.ReportHealth(r.Context(), workerType, req.Health, req.Message)
	if HandleError(w, h.logger, err) {
		return
	}

	h.logger.Info("worker health reported",
		"worker", workerType,
		"health", req.Health,
		"message", req.Message,
	)
	Accepted(w, req)
}
