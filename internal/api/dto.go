package api

import (
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/service"
)

// Operation DTOs

// SubmitOperationRequest — запрос на выполнение операции.
type SubmitOperationRequest struct {
	Kind     string         `json:"kind"`
	Priority string         `json:"priority,omitempty"`
	Params   map[string]any `json:"params,omitempty"`

	// RequestID — ключ идемпотентности. Можно передать заголовком Idempotency-Key.
	RequestID string `json:"request_id,omitempty"`
}

// toDomain конвертирует запрос в domain.OperationRequest.
func (r SubmitOperationRequest) toDomain() (domain.OperationRequest, error) {
	kind, err := domain.ParseOperationKind(r.Kind)
	if err != nil {
		return domain.OperationRequest{}, err
	}
	priority, err := domain.ParsePriority(r.Priority)
	if err != nil {
		return domain.OperationRequest{}, err
	}
	return domain.OperationRequest{
		Kind:     kind,
		Priority: priority,
		Params:   r.Params,
	}, nil
}

// SubmitOperationResponse — ответ на приём операции.
// Result заполнен, если запрос ждал завершения (?wait=).
type SubmitOperationResponse struct {
	Plan   *service.PlanSummary `json:"plan"`
	Result *domain.PlanResult   `json:"result,omitempty"`
}

// Plan DTOs

// PlanListItem — краткое представление плана в списке.
type PlanListItem struct {
	PlanID     string               `json:"plan_id"`
	Kind       domain.OperationKind `json:"kind"`
	Priority   domain.Priority      `json:"priority"`
	Status     domain.PlanStatus    `json:"status"`
	Success    bool                 `json:"success"`
	TotalTasks int                  `json:"total_tasks"`
	Completed  int                  `json:"completed"`
	Failed     int                  `json:"failed"`
	Error      string               `json:"error,omitempty"`
	StartedAt  string               `json:"started_at"`
	ElapsedMs  int64                `json:"elapsed_ms"`
}

// PlanListItemFromDomain конвертирует domain.PlanResult в PlanListItem.
func PlanListItemFromDomain(r domain.PlanResult) PlanListItem {
	return PlanListItem{
		PlanID:     r.PlanID.String(),
		Kind:       r.Kind,
		Priority:   r.Priority,
		Status:     r.Status,
		Success:    r.Success,
		TotalTasks: r.TotalTasks,
		Completed:  r.Completed,
		Failed:     r.Failed,
		Error:      r.Error,
		StartedAt:  r.StartedAt.UTC().Format(timeFormat),
		ElapsedMs:  r.ElapsedMs,
	}
}

// CancelPlanResponse — ответ на отмену плана.
type CancelPlanResponse struct {
	PlanID string            `json:"plan_id"`
	Status domain.PlanStatus `json:"status"`
}

// Worker DTOs

// ReportHealthRequest — внешний отчёт о здоровье воркера.
type ReportHealthRequest struct {
	Health  string `json:"health"`
	Message string `json:"message,omitempty"`
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"
