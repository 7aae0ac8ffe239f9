package orchestrator

import (
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/engine"
	"github.com/shaiso/dbflow/internal/telemetry"
)

// PlanState — состояние выполнения одного плана в памяти.
//
// PlanState создаётся при Submit и удаляется, когда план завершён,
// истёк таймаут или план отменён. Принадлежит циклу оркестратора:
// ни одна другая горутина его не читает и не меняет.
type PlanState struct {
	// Plan — выполняемый план.
	Plan *domain.WorkflowPlan

	// DAG — граф зависимостей tasks (может содержать цикл: это выявит stall detection).
	DAG *engine.DAG

	// Context — контекст для рендеринга параметров (outputs завершённых шагов).
	Context *engine.Context

	handle    *Handle
	startedAt time.Time
	logger    *slog.Logger

	// deadline — таймер таймаута плана.
	deadline *time.Timer

	// retries — tasks, ожидающие повтора (taskID → таймер).
	retries map[string]*time.Timer

	// degraded — воркеры, которые были DEGRADED при постановке в очередь или dispatch.
	degraded []domain.WorkerType
}

// NewPlanState создаёт PlanState для плана.
func NewPlanState(plan *domain.WorkflowPlan, startedAt time.Time, logger *slog.Logger) *PlanState {
	return &PlanState{
		Plan:      plan,
		DAG:       engine.Link(plan.Tasks),
		Context:   engine.NewContext(plan),
		startedAt: startedAt,
		logger:    telemetry.WithPlanID(logger, plan.ID.String()),
		retries:   make(map[string]*time.Timer),
	}
}

// PlanID возвращает ID плана.
func (s *PlanState) PlanID() uuid.UUID {
	return s.Plan.ID
}

// awaitingRetry проверяет, ждёт ли task повтора.
func (s *PlanState) awaitingRetry(taskID string) bool {
	_, ok := s.retries[taskID]
	return ok
}

// noteDegraded запоминает DEGRADED воркер.
func (s *PlanState) noteDegraded(workerType domain.WorkerType) {
	if !slices.Contains(s.degraded, workerType) {
		s.degraded = append(s.degraded, workerType)
	}
}

// stopTimers останавливает таймер дедлайна и таймеры повторов.
func (s *PlanState) stopTimers() {
	if s.deadline != nil {
		s.deadline.Stop()
	}
	for id, timer := range s.retries {
		timer.Stop()
		delete(s.retries, id)
	}
}

// Stats возвращает статистику выполнения.
func (s *PlanState) Stats() PlanStats {
	stats := PlanStats{Total: len(s.Plan.Tasks)}
	for _, task := range s.Plan.Tasks {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.Pending++
		case domain.TaskStatusReady:
			stats.Ready++
		case domain.TaskStatusRunning:
			stats.Running++
		case domain.TaskStatusCompleted:
			stats.Completed++
		case domain.TaskStatusFailed:
			if s.awaitingRetry(task.ID) {
				stats.AwaitingRetry++
			} else {
				stats.Failed++
			}
		}
	}
	return stats
}

// PlanStats — статистика выполнения плана.
type PlanStats struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	Ready         int `json:"ready"`
	Running       int `json:"running"`
	AwaitingRetry int `json:"awaiting_retry"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
}

// Active — есть tasks, которые двигают план вперёд.
func (s PlanStats) Active() bool {
	return s.Ready+s.Running+s.AwaitingRetry > 0
}

// Done — все tasks в финальном статусе.
func (s PlanStats) Done() bool {
	return s.Pending == 0 && !s.Active()
}
