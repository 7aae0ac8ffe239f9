package domain

import (
	"fmt"
	"strings"
)

// TaskStatus — статус выполнения WorkflowTask.
//
// Жизненный цикл:
//
//	PENDING → READY → RUNNING → COMPLETED
//	                          ↘ FAILED → READY (retry, пока есть попытки)
//	PENDING → FAILED (упала зависимость, воркер CRITICAL, план завис)
type TaskStatus string

const (
	// TaskStatusPending — task ждёт завершения зависимостей.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusReady — зависимости удовлетворены, task в очереди на выполнение.
	TaskStatusReady TaskStatus = "READY"

	// TaskStatusRunning — task выполняется воркером.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusCompleted — task успешно завершён.
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusFailed — task завершился с ошибкой.
	// Финальный, если попытки исчерпаны или ошибка не retriable.
	TaskStatusFailed TaskStatus = "FAILED"
)

// taskTransitions — допустимые переходы между статусами task.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {TaskStatusReady, TaskStatusFailed},
	TaskStatusReady:   {TaskStatusRunning, TaskStatusFailed},
	TaskStatusRunning: {TaskStatusCompleted, TaskStatusFailed},
	TaskStatusFailed:  {TaskStatusReady},
}

// CanTransition проверяет, допустим ли переход from → to.
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для COMPLETED и FAILED.
//
// FAILED может быть не окончательным, если task ждёт retry —
// это знает только оркестратор.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// PlanStatus — итоговый статус плана.
type PlanStatus string

const (
	// PlanStatusRunning — план выполняется.
	PlanStatusRunning PlanStatus = "RUNNING"

	// PlanStatusSucceeded — все tasks завершились успешно.
	PlanStatusSucceeded PlanStatus = "SUCCEEDED"

	// PlanStatusFailed — хотя бы один task упал.
	PlanStatusFailed PlanStatus = "FAILED"

	// PlanStatusTimedOut — план не уложился в таймаут.
	PlanStatusTimedOut PlanStatus = "TIMED_OUT"

	// PlanStatusStalled — ни один task не может стать готовым (цикл или дефект шаблона).
	PlanStatusStalled PlanStatus = "STALLED"

	// PlanStatusCancelled — план отменён.
	PlanStatusCancelled PlanStatus = "CANCELLED"
)

// IsTerminal возвращает true, если план завершён.
func (s PlanStatus) IsTerminal() bool {
	return s != PlanStatusRunning && s != ""
}

// PlanStatuses — все статусы плана.
var PlanStatuses = []PlanStatus{
	PlanStatusRunning,
	PlanStatusSucceeded,
	PlanStatusFailed,
	PlanStatusTimedOut,
	PlanStatusStalled,
	PlanStatusCancelled,
}

// ParsePlanStatus парсит строку в PlanStatus (без учёта регистра).
func ParsePlanStatus(s string) (PlanStatus, error) {
	status := PlanStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range PlanStatuses {
		if known == status {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown plan status %q", s)
}

// Health — состояние здоровья воркера.
type Health string

const (
	// HealthHealthy — воркер работает нормально.
	HealthHealthy Health = "HEALTHY"

	// HealthDegraded — воркер работает с проблемами.
	// Dispatch не блокируется, но факт попадает в метаданные плана.
	HealthDegraded Health = "DEGRADED"

	// HealthCritical — воркер недоступен, tasks на него сразу падают.
	HealthCritical Health = "CRITICAL"
)

// ParseHealth парсит строку в Health (без учёта регистра).
func ParseHealth(s string) (Health, error) {
	switch Health(strings.ToUpper(strings.TrimSpace(s))) {
	case HealthHealthy:
		return HealthHealthy, nil
	case HealthDegraded:
		return HealthDegraded, nil
	case HealthCritical:
		return HealthCritical, nil
	default:
		return "", fmt.Errorf("unknown health status %q", s)
	}
}
