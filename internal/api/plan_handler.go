package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/repo"
)

// ListPlans возвращает список планов с фильтрацией.
// GET /api/v1/plans?kind=...&status=...&limit=...&offset=...
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.PlanFilter{}

	if kind := q.Get("kind"); kind != "" {
		k, err := domain.ParseOperationKind(kind)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		filter.Kind = k
	}

	if status := q.Get("status"); status != "" {
		s, err := domain.ParsePlanStatus(status)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		filter.Status = s
	}

	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		BadRequest(w, errInvalidQuery("limit").Error())
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		BadRequest(w, errInvalidQuery("offset").Error())
		return
	}

	plans, err := h.svc.ListPlans(r.Context(), filter)
	if HandleError(w, h.logger, err) {
		return
	}

	result := make([]PlanListItem, len(plans))
	for i, p := range plans {
		result[i] = PlanListItemFromDomain(p)
	}

	List(w, result, len(result))
}

// GetPlan возвращает результат плана: промежуточный для активного,
// сохранённый для завершённого.
// GET /api/v1/plans/{id}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid plan id")
		return
	}

	result, err := h.svc.GetPlan(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, result)
}

// CancelPlan отменяет активный план.
// POST /api/v1/plans/{id}/cancel
func (h *Handler) CancelPlan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid plan id")
		return
	}

	if HandleError(w, h.logger, h.svc.CancelPlan(r.Context(), id)) {
		return
	}

	Success(w, CancelPlanResponse{PlanID: id.String(), Status: domain.PlanStatusCancelled})
}

// queryInt парсит неотрицательное число из query. Пустая строка даёт 0.
func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return parseNonNegative(raw)
}

func parseNonNegative(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

func errInvalidQuery(name string) error {
	return fmt.Errorf("invalid %s", name)
}
