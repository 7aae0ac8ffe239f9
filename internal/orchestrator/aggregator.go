package orchestrator

import (
	"slices"
	"time"

	"github.com/shaiso/dbflow/internal/domain"
)

// Aggregate собирает PlanResult из состояния плана.
//
// status — итоговый (или текущий, для snapshot) статус плана,
// planErr — ошибка уровня плана (timeout, stalled, cancelled), может быть nil.
// Aggregate не выполняет I/O и не меняет состояние.
func (s *PlanState) Aggregate(status domain.PlanStatus, planErr error, now time.Time) *domain.PlanResult {
	plan := s.Plan
	result := &domain.PlanResult{
		PlanID:          plan.ID,
		Kind:            plan.Kind,
		Priority:        plan.Priority,
		Status:          status,
		TotalTasks:      len(plan.Tasks),
		Tasks:           make([]domain.TaskReport, 0, len(plan.Tasks)),
		DegradedWorkers: slices.Clone(s.degraded),
		StartedAt:       s.startedAt,
		FinishedAt:      now,
		ElapsedMs:       now.Sub(s.startedAt).Milliseconds(),
	}
	if planErr != nil {
		result.Error = planErr.Error()
	}

	for _, task := range plan.Tasks {
		report := domain.TaskReport{
			ID:         task.ID,
			Name:       task.Name,
			WorkerType: task.WorkerType,
			Status:     task.Status,
			RetryCount: task.RetryCount,
			StartedAt:  task.StartedAt,
			FinishedAt: task.CompletedAt,
			DurationMs: task.Duration().Milliseconds(),
		}
		if task.Result != nil {
			report.Outputs = task.Result.Outputs
			report.Error = task.Result.Error
			report.Reason = task.Result.Reason
		}

		switch task.Status {
		case domain.TaskStatusCompleted:
			result.Completed++
		case domain.TaskStatusFailed:
			result.Failed++
			if report.Error != "" {
				result.Errors = append(result.Errors, task.Name+": "+report.Error)
			}
		default:
			result.Unfinished++
		}

		result.Tasks = append(result.Tasks, report)
	}

	result.Success = status == domain.PlanStatusSucceeded
	result.Partial = result.Completed > 0 && (result.Failed > 0 || result.Unfinished > 0)

	return result
}

// finalStatus вычисляет статус плана, у которого не осталось работы.
func finalStatus(stats PlanStats) domain.PlanStatus {
	if stats.Failed == 0 {
		return domain.PlanStatusSucceeded
	}
	return domain.PlanStatusFailed
}
