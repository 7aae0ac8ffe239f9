package worker

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/shaiso/dbflow/internal/domain"
)

// Executor — единый контракт вызова воркера.
//
// task — копия, которую можно читать без синхронизации.
// Params уже отрендерены. Любая ошибка считается транзиентной.
type Executor interface {
	Execute(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error)
}

// Prober — executor, умеющий проверять доступность своего воркера.
// Используется HealthMonitor'ом, никогда не вызывается в горячем пути.
type Prober interface {
	Probe(ctx context.Context) error
}

// ExecutorFunc — адаптер функции к Executor.
type ExecutorFunc func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error)

// Execute вызывает f(ctx, task).
func (f ExecutorFunc) Execute(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
	return f(ctx, task)
}

// Registry — реестр executor'ов по типу воркера.
//
// Заполняется при старте сервиса, дальше только читается пулом.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.WorkerType]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[domain.WorkerType]Executor)}
}

// Register добавляет executor для типа воркера (заменяет существующий).
func (r *Registry) Register(workerType domain.WorkerType, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[workerType] = executor
}

// Get возвращает executor для типа воркера.
func (r *Registry) Get(workerType domain.WorkerType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[workerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkerType, workerType)
	}
	return executor, nil
}

// Has проверяет, есть ли executor для типа воркера.
func (r *Registry) Has(workerType domain.WorkerType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[workerType]
	return ok
}

// Types возвращает зарегистрированные типы в отсортированном порядке.
func (r *Registry) Types() []domain.WorkerType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.WorkerType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Probers возвращает executor'ы, реализующие Prober.
func (r *Registry) Probers() map[domain.WorkerType]Prober {
	r.mu.RLock()
	defer r.mu.RUnlock()

	probers := make(map[domain.WorkerType]Prober)
	for t, e := range r.executors {
		if p, ok := e.(Prober); ok {
			probers[t] = p
		}
	}
	return probers
}
