package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
)

const defaultMemoryCapacity = 1000

// MemoryPlanStore — результаты планов в памяти процесса.
// Используется, когда DB_URL не задан. Хранит последние Capacity результатов.
type MemoryPlanStore struct {
	mu       sync.RWMutex
	results  map[uuid.UUID]*domain.PlanResult
	order    []uuid.UUID // в порядке сохранения
	capacity int
}

// NewMemoryPlanStore создаёт хранилище. capacity <= 0 даёт 1000.
func NewMemoryPlanStore(capacity int) *MemoryPlanStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryPlanStore{
		results:  make(map[uuid.UUID]*domain.PlanResult),
		capacity: capacity,
	}
}

// Save сохраняет копию результата, вытесняя самый старый при переполнении.
func (s *MemoryPlanStore) Save(_ context.Context, result *domain.PlanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *result
	if _, exists := s.results[result.PlanID]; !exists {
		s.order = append(s.order, result.PlanID)
	}
	s.results[result.PlanID] = &copied

	for len(s.order) > s.capacity {
		delete(s.results, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// PlanFinished сохраняет результат завершённого плана.
func (s *MemoryPlanStore) PlanFinished(ctx context.Context, result *domain.PlanResult) error {
	return s.Save(ctx, result)
}

// Get возвращает результат по ID плана.
func (s *MemoryPlanStore) Get(_ context.Context, id uuid.UUID) (*domain.PlanResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *result
	return &copied, nil
}

// List возвращает результаты, новые первыми.
func (s *MemoryPlanStore) List(_ context.Context, filter PlanFilter) ([]domain.PlanResult, error) {
	filter = filter.normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PlanResult
	skipped := 0
	for i := len(s.order) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		result := s.results[s.order[i]]
		if !filter.matches(result) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, *result)
	}
	return out, nil
}
