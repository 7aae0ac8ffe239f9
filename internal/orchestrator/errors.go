package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrNotRunning — оркестратор не запущен (Start не вызывался или уже Stop).
	ErrNotRunning = errors.New("orchestrator is not running")

	// ErrOrchestratorStopped — оркестратор остановлен, активные планы отменены.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")

	// ErrInvalidPlan — план нельзя принять к выполнению.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrPlanAlreadyActive — план с таким ID уже выполняется.
	ErrPlanAlreadyActive = errors.New("plan already active")

	// ErrPlanNotActive — план не найден среди активных.
	ErrPlanNotActive = errors.New("plan not active")
)
