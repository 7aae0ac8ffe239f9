package domain

import (
	"errors"
	"fmt"
)

// Таксономия ошибок выполнения операций.
var (
	// ErrUnknownOperationKind — для вида операции нет шаблона (ошибка планирования).
	ErrUnknownOperationKind = errors.New("unknown operation kind")

	// ErrWorkerUnavailable — воркер в состоянии CRITICAL или не зарегистрирован.
	// Не retriable.
	ErrWorkerUnavailable = errors.New("worker unavailable")

	// ErrTransientTaskFailure — ошибка выполнения task, retriable.
	ErrTransientTaskFailure = errors.New("transient task failure")

	// ErrRetriesExhausted — все попытки исчерпаны.
	ErrRetriesExhausted = errors.New("retry attempts exhausted")

	// ErrDependencyFailed — упала одна из зависимостей task.
	ErrDependencyFailed = errors.New("dependency failed")

	// ErrPlanTimeout — план не завершился за отведённое время.
	ErrPlanTimeout = errors.New("plan timeout")

	// ErrStalledPlan — остались pending tasks, но ни один не может стать готовым.
	ErrStalledPlan = errors.New("circular or stalled plan")

	// ErrPlanCancelled — план отменён вызывающей стороной.
	ErrPlanCancelled = errors.New("plan cancelled")

	// ErrInvalidParams — не удалось отрендерить параметры task.
	ErrInvalidParams = errors.New("invalid task params")

	// ErrInvalidTransition — недопустимый переход статуса task (ошибка программы).
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// FailureReason — машинно-читаемая причина падения task.
type FailureReason string

const (
	ReasonWorkerUnavailable FailureReason = "worker-unavailable"
	ReasonDependencyFailed  FailureReason = "dependency-failed"
	ReasonRetriesExhausted  FailureReason = "retries-exhausted"
	ReasonInvalidParams     FailureReason = "invalid-params"
	ReasonStalledPlan       FailureReason = "stalled-plan"
)

// Err возвращает sentinel-ошибку, соответствующую причине.
func (r FailureReason) Err() error {
	switch r {
	case ReasonWorkerUnavailable:
		return ErrWorkerUnavailable
	case ReasonDependencyFailed:
		return ErrDependencyFailed
	case ReasonRetriesExhausted:
		return ErrRetriesExhausted
	case ReasonInvalidParams:
		return ErrInvalidParams
	case ReasonStalledPlan:
		return ErrStalledPlan
	default:
		return nil
	}
}

// TransitionError — ошибка недопустимого перехода статуса.
type TransitionError struct {
	TaskID string
	From   TaskStatus
	To     TaskStatus
}

// Error реализует интерфейс error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: task %s: %s → %s", ErrInvalidTransition, e.TaskID, e.From, e.To)
}

// Unwrap возвращает ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
