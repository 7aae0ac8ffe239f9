package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// maxWait — верхняя граница ожидания результата в запросе.
const maxWait = 10 * time.Minute

// SubmitOperation принимает операцию к выполнению.
// POST /api/v1/operations?wait=30s
//
// Без wait возвращает 202 и описание плана. С wait ждёт завершения:
// если план не успел, он завершается как TIMED_OUT с частичными результатами.
func (h *Handler) SubmitOperation(w http.ResponseWriter, r *http.Request) {
	var req SubmitOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	wait, err := parseWait(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	opReq, err := req.toDomain()
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	requestID := req.RequestID
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		requestID = key
	}

	summary, handle, err := h.svc.Submit(r.Context(), opReq, requestID)
	if HandleError(w, h.logger, err) {
		return
	}

	if wait <= 0 {
		Accepted(w, SubmitOperationResponse{Plan: summary})
		return
	}

	result := h.svc.Wait(handle, wait)
	Success(w, SubmitOperationResponse{Plan: summary, Result: result})
}

// PreviewOperation строит план без выполнения.
// POST /api/v1/operations/preview
func (h *Handler) PreviewOperation(w http.ResponseWriter, r *http.Request) {
	var req SubmitOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	opReq, err := req.toDomain()
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	summary, err := h.svc.Preview(opReq)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, summary)
}

// ListTemplates возвращает шаблоны планов по видам операций.
// GET /api/v1/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := h.svc.Templates()
	List(w, templates, len(templates))
}

// GetStats возвращает сводку по оркестратору.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	Success(w, h.svc.Stats())
}

// parseWait читает параметр wait: Go duration или число секунд.
func parseWait(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := parseNonNegative(raw)
		if convErr != nil {
			return 0, errInvalidQuery("wait")
		}
		d = time.Duration(secs) * time.Second
	}
	if d < 0 {
		return 0, errInvalidQuery("wait")
	}
	return min(d, maxWait), nil
}
