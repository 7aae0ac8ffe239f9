package registry

import (
	"fmt"

	"github.com/shaiso/dbflow/internal/domain"
)

// HealthChecker — источник последнего известного здоровья воркеров.
type HealthChecker interface {
	CheckHealth(workerType domain.WorkerType) domain.Health
}

// HealthGate решает, можно ли отправлять task на воркер.
//
// Gate только читает последнее известное значение и никогда
// не выполняет проверку здоровья синхронно.
type HealthGate struct {
	checker HealthChecker
}

// NewHealthGate создаёт HealthGate поверх источника здоровья.
func NewHealthGate(checker HealthChecker) *HealthGate {
	return &HealthGate{checker: checker}
}

// Admit возвращает здоровье воркера и ошибку, если dispatch запрещён.
//
// CRITICAL → domain.ErrWorkerUnavailable. DEGRADED пропускается:
// вызывающая сторона сама решает, как отразить его в метаданных.
func (g *HealthGate) Admit(workerType domain.WorkerType) (domain.Health, error) {
	health := g.checker.CheckHealth(workerType)
	if health == domain.HealthCritical {
		return health, fmt.Errorf("%w: %s is %s", domain.ErrWorkerUnavailable, workerType, health)
	}
	return health, nil
}
