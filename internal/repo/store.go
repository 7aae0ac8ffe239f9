package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
)

// PlanStore хранит результаты завершённых планов.
//
// Реализации: PlanRepo (PostgreSQL) и MemoryPlanStore.
// Обе реализуют orchestrator.Notifier через PlanFinished.
type PlanStore interface {
	Save(ctx context.Context, result *domain.PlanResult) error
	Get(ctx context.Context, id uuid.UUID) (*domain.PlanResult, error)
	List(ctx context.Context, filter PlanFilter) ([]domain.PlanResult, error)
	PlanFinished(ctx context.Context, result *domain.PlanResult) error
}

// PlanFilter — параметры фильтрации результатов.
type PlanFilter struct {
	Kind   domain.OperationKind
	Status domain.PlanStatus
	Limit  int
	Offset int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// normalize применяет лимиты по умолчанию.
func (f PlanFilter) normalize() PlanFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// matches проверяет результат на соответствие фильтру.
func (f PlanFilter) matches(r *domain.PlanResult) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}
