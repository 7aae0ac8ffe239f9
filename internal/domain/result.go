package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskReport — итог одного task в PlanResult.
type TaskReport struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	WorkerType WorkerType     `json:"worker_type"`
	Status     TaskStatus     `json:"status"`
	RetryCount int            `json:"retry_count"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	Reason     FailureReason  `json:"reason,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// PlanResult — агрегированный результат выполнения плана.
//
// Вызывающая сторона всегда получает PlanResult: частичный успех
// (часть tasks завершилась, часть упала) — это валидный результат, а не ошибка.
type PlanResult struct {
	PlanID   uuid.UUID     `json:"plan_id"`
	Kind     OperationKind `json:"kind"`
	Priority Priority      `json:"priority"`
	Status   PlanStatus    `json:"status"`

	// Success — true, если ни один task не упал и план не прерван.
	Success bool `json:"success"`

	// Partial — часть tasks завершилась успешно, часть нет.
	Partial bool `json:"partial"`

	TotalTasks int `json:"total_tasks"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`

	// Unfinished — tasks, не дошедшие до финального статуса (таймаут, отмена).
	Unfinished int `json:"unfinished"`

	Tasks []TaskReport `json:"tasks"`

	// Errors — ошибки упавших tasks в формате "<name>: <error>".
	Errors []string `json:"errors,omitempty"`

	// DegradedWorkers — воркеры, которые были DEGRADED в момент dispatch.
	DegradedWorkers []WorkerType `json:"degraded_workers,omitempty"`

	// Error — ошибка уровня плана (timeout, stalled, cancelled).
	Error string `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ElapsedMs  int64     `json:"elapsed_ms"`
}

// Elapsed возвращает продолжительность выполнения плана.
func (r *PlanResult) Elapsed() time.Duration {
	return time.Duration(r.ElapsedMs) * time.Millisecond
}

// TaskReport возвращает отчёт по имени шага.
func (r *PlanResult) TaskReport(name string) (TaskReport, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskReport{}, false
}
