package engine

import "errors"

// Ошибки валидации плана.
var (
	// ErrEmptyPlan — план не содержит tasks.
	ErrEmptyPlan = errors.New("plan has no tasks")

	// ErrEmptyTaskID — task не имеет ID.
	ErrEmptyTaskID = errors.New("task has empty ID")

	// ErrDuplicateTaskID — несколько tasks с одинаковым ID.
	ErrDuplicateTaskID = errors.New("duplicate task ID")

	// ErrMissingWorkerType — task не указывает тип воркера.
	ErrMissingWorkerType = errors.New("task has no worker type")

	// ErrMissingDependency — task зависит от несуществующего task.
	ErrMissingDependency = errors.New("task depends on unknown task")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — task зависит от самого себя.
	ErrSelfDependency = errors.New("task depends on itself")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	TaskID  string // ID task, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.TaskID != "" {
		return "task " + e.TaskID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(taskID, field, message string, err error) *ValidationError {
	return &ValidationError{
		TaskID:  taskID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
