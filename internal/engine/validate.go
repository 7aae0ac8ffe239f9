package engine

import (
	"fmt"

	"github.com/shaiso/dbflow/internal/domain"
)

// Validate выполняет полную валидацию tasks плана.
//
// Проверяет:
// - Наличие tasks
// - Непустые и уникальные ID
// - Наличие типа воркера
// - Отсутствие self-dependency
// - Валидность зависимостей (depends_on)
// - Отсутствие циклов (делегируется DAG)
func Validate(tasks []*domain.WorkflowTask) error {
	if len(tasks) == 0 {
		return ErrEmptyPlan
	}

	taskIDs := make(map[string]bool, len(tasks))

	for _, task := range tasks {
		if err := ValidateTask(task, taskIDs); err != nil {
			return err
		}
	}

	_, err := BuildDAG(tasks)
	return err
}

// ValidateTask валидирует один task.
// taskIDs — уже встреченные ID (для проверки уникальности).
func ValidateTask(task *domain.WorkflowTask, taskIDs map[string]bool) error {
	if task.ID == "" {
		return NewValidationError("", "id", "task has empty ID", ErrEmptyTaskID)
	}

	if taskIDs[task.ID] {
		return NewValidationError(task.ID, "id",
			fmt.Sprintf("duplicate task ID: %s", task.ID), ErrDuplicateTaskID)
	}
	taskIDs[task.ID] = true

	if task.WorkerType == "" {
		return NewValidationError(task.ID, "worker_type",
			"task has no worker type", ErrMissingWorkerType)
	}

	for _, dep := range task.DependsOn {
		if dep == task.ID {
			return NewValidationError(task.ID, "depends_on",
				"task depends on itself", ErrSelfDependency)
		}
	}

	return nil
}
