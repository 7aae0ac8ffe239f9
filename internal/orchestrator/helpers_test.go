package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/worker"
)

// staticGate — health gate с фиксированным здоровьем воркеров.
type staticGate struct {
	mu     sync.Mutex
	health map[domain.WorkerType]domain.Health
}

func newStaticGate() *staticGate {
	return &staticGate{health: make(map[domain.WorkerType]domain.Health)}
}

func (g *staticGate) set(wt domain.WorkerType, h domain.Health) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.health[wt] = h
}

func (g *staticGate) Admit(wt domain.WorkerType) (domain.Health, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.health[wt]
	if !ok {
		h = domain.HealthHealthy
	}
	if h == domain.HealthCritical {
		return h, fmt.Errorf("%w: %s", domain.ErrWorkerUnavailable, wt)
	}
	return h, nil
}

// callLog записывает порядок вызовов executor'ов.
type callLog struct {
	mu    sync.Mutex
	calls []string
	count map[string]int
}

func newCallLog() *callLog {
	return &callLog{count: make(map[string]int)}
}

// record фиксирует вызов и возвращает номер попытки (с 1).
func (l *callLog) record(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
	l.count[name]++
	return l.count[name]
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) times(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count[name]
}

// waitCalled ждёт первого вызова executor'а шага.
func waitCalled(t *testing.T, log *callLog, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if log.times(name) > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("%s was not called", name)
}

// behavior — поведение executor'а для шага.
type behavior func(ctx context.Context, attempt int, task *domain.WorkflowTask) (map[string]any, error)

// scriptedExecutors создаёт реестр, где все типы воркеров выполняют
// шаги по сценарию behaviors (по имени шага). Шаг без сценария успешен.
func scriptedExecutors(log *callLog, behaviors map[string]behavior) *worker.Registry {
	reg := worker.NewRegistry()
	exec := worker.ExecutorFunc(func(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
		attempt := log.record(task.Name)
		if b, ok := behaviors[task.Name]; ok {
			return b(ctx, attempt, task)
		}
		return map[string]any{"step": task.Name}, nil
	})
	for _, wt := range domain.WorkerTypes {
		reg.Register(wt, exec)
	}
	return reg
}

// failFirst — шаг падает первые n попыток.
func failFirst(n int) behavior {
	return func(_ context.Context, attempt int, task *domain.WorkflowTask) (map[string]any, error) {
		if attempt <= n {
			return nil, fmt.Errorf("%s: attempt %d failed", task.Name, attempt)
		}
		return map[string]any{"attempt": attempt}, nil
	}
}

// alwaysFail — шаг падает всегда.
func alwaysFail() behavior {
	return failFirst(1 << 30)
}

// blockUntil — шаг ждёт release или отмены ctx.
func blockUntil(release <-chan struct{}) behavior {
	return func(ctx context.Context, _ int, task *domain.WorkflowTask) (map[string]any, error) {
		select {
		case <-release:
			return map[string]any{"released": true}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// startOrchestrator создаёт и запускает оркестратор с быстрыми повторами.
func startOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Gate == nil {
		cfg.Gate = newStaticGate()
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry = RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	}
	o := New(cfg)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(o.Stop)
	return o
}

// taskSpec — описание task для ручной сборки плана.
type taskSpec struct {
	name       string
	deps       []string
	worker     domain.WorkerType
	priority   domain.Priority
	maxRetries int
	params     map[string]any

	// paramTemplates — параметры по умолчанию, рендерятся перед постановкой в очередь.
	paramTemplates map[string]any
}

// makePlan собирает план из описаний tasks.
func makePlan(specs ...taskSpec) *domain.WorkflowPlan {
	plan := &domain.WorkflowPlan{
		ID:        uuid.New(),
		Kind:      domain.OperationQuery,
		Priority:  domain.PriorityMedium,
		CreatedAt: time.Now(),
	}
	for _, s := range specs {
		wt := s.worker
		if wt == "" {
			wt = domain.WorkerQuery
		}
		deps := make([]string, len(s.deps))
		for i, d := range s.deps {
			deps[i] = domain.TaskID(plan.ID, d)
		}
		plan.Tasks = append(plan.Tasks, &domain.WorkflowTask{
			ID:             domain.TaskID(plan.ID, s.name),
			PlanID:         plan.ID,
			Name:           s.name,
			Kind:           plan.Kind,
			WorkerType:     wt,
			Priority:       s.priority.OrDefault(),
			Params:         s.params,
			ParamTemplates: s.paramTemplates,
			DependsOn:      deps,
			Status:         domain.TaskStatusPending,
			MaxRetries:     s.maxRetries,
		})
	}
	return plan
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}

func mustReport(t *testing.T, result *domain.PlanResult, name string) domain.TaskReport {
	t.Helper()
	report, ok := result.TaskReport(name)
	if !ok {
		t.Fatalf("no report for task %s", name)
	}
	return report
}
