package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
)

// TaskSummary — описание task принятого плана.
type TaskSummary struct {
	Name       string            `json:"name"`
	WorkerType domain.WorkerType `json:"worker_type"`
	Priority   domain.Priority   `json:"priority"`
	DependsOn  []string          `json:"depends_on,omitempty"`
	Params     map[string]any    `json:"params,omitempty"`
}

// PlanSummary — описание плана в момент приёма.
//
// Снимается до передачи плана оркестратору: после Submit план
// принадлежит циклу оркестратора и читать его напрямую нельзя.
type PlanSummary struct {
	PlanID    uuid.UUID            `json:"plan_id"`
	RequestID string               `json:"request_id,omitempty"`
	Kind      domain.OperationKind `json:"kind"`
	Priority  domain.Priority      `json:"priority"`
	Tasks     []TaskSummary        `json:"tasks"`
	CreatedAt time.Time            `json:"created_at"`
}

// summarize строит PlanSummary. Зависимости переводятся из ID tasks в имена шагов.
func summarize(plan *domain.WorkflowPlan, requestID string) *PlanSummary {
	prefix := plan.ID.String() + "/"

	tasks := make([]TaskSummary, len(plan.Tasks))
	for i, t := range plan.Tasks {
		var deps []string
		for _, dep := range t.DependsOn {
			deps = append(deps, strings.TrimPrefix(dep, prefix))
		}
		tasks[i] = TaskSummary{
			Name:       t.Name,
			WorkerType: t.WorkerType,
			Priority:   t.Priority,
			DependsOn:  deps,
			Params:     t.DeclaredParams(),
		}
	}

	return &PlanSummary{
		PlanID:    plan.ID,
		RequestID: requestID,
		Kind:      plan.Kind,
		Priority:  plan.Priority,
		Tasks:     tasks,
		CreatedAt: plan.CreatedAt,
	}
}
