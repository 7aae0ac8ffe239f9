package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowPlan — DAG подзадач, реализующий один OperationRequest.
//
// План создаётся Planner'ом, передаётся оркестратору и удаляется
// из активных, когда все tasks завершены, истёк таймаут или план отменён.
type WorkflowPlan struct {
	// ID — уникальный идентификатор плана.
	ID uuid.UUID `json:"id"`

	// Kind — вид операции.
	Kind OperationKind `json:"kind"`

	// Priority — приоритет плана.
	Priority Priority `json:"priority"`

	// Tasks — tasks в порядке создания.
	Tasks []*WorkflowTask `json:"tasks"`

	// Params — параметры исходного запроса.
	Params map[string]any `json:"params,omitempty"`

	// CreatedAt — время создания плана.
	CreatedAt time.Time `json:"created_at"`
}

// Task возвращает task по ID или nil.
func (p *WorkflowPlan) Task(id string) *WorkflowTask {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TaskByName возвращает task по имени шага или nil.
func (p *WorkflowPlan) TaskByName(name string) *WorkflowTask {
	for _, t := range p.Tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Counts считает tasks по статусам: всего, успешно завершённых, упавших.
func (p *WorkflowPlan) Counts() (total, completed, failed int) {
	for _, t := range p.Tasks {
		switch t.Status {
		case TaskStatusCompleted:
			completed++
		case TaskStatusFailed:
			failed++
		}
	}
	return len(p.Tasks), completed, failed
}

// TaskID строит идентификатор task в пространстве имён плана.
func TaskID(planID uuid.UUID, name string) string {
	return planID.String() + "/" + name
}
