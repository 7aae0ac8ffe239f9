package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/mq"
	"github.com/shaiso/dbflow/internal/orchestrator"
	"github.com/shaiso/dbflow/internal/planner"
	"github.com/shaiso/dbflow/internal/registry"
	"github.com/shaiso/dbflow/internal/repo"
	"github.com/shaiso/dbflow/internal/telemetry"
)

// Deduplicator отсеивает повторные запросы по request ID.
type Deduplicator interface {
	Claim(ctx context.Context, requestID string) error
	Release(ctx context.Context, requestID string) error
}

// Config — зависимости Service.
type Config struct {
	Planner      *planner.Planner
	Orchestrator *orchestrator.Orchestrator
	Store        repo.PlanStore
	Workers      *registry.Registry

	// Dedup — необязательный фильтр повторных запросов.
	Dedup Deduplicator

	// Logger
	Logger *slog.Logger
}

// Service — точка входа для HTTP API и консьюмеров очередей:
// приём операций, чтение и отмена планов, здоровье воркеров.
type Service struct {
	planner *planner.Planner
	orch    *orchestrator.Orchestrator
	store   repo.PlanStore
	workers *registry.Registry
	dedup   Deduplicator
	logger  *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		planner: cfg.Planner,
		orch:    cfg.Orchestrator,
		store:   cfg.Store,
		workers: cfg.Workers,
		dedup:   cfg.Dedup,
		logger:  cfg.Logger,
	}
}

// Submit строит план для запроса и передаёт его оркестратору.
//
// Непустой requestID проверяется через Deduplicator: повтор даёт
// repo.ErrDuplicateRequest. Недоступность Redis не блокирует приём.
func (s *Service) Submit(ctx context.Context, req domain.OperationRequest, requestID string) (*PlanSummary, *orchestrator.Handle, error) {
	kind, err := domain.ParseOperationKind(string(req.Kind))
	if err != nil {
		return nil, nil, err
	}
	req.Kind = kind
	req.Priority = req.Priority.OrDefault()

	claimed := false
	if s.dedup != nil && requestID != "" {
		switch err := s.dedup.Claim(ctx, requestID); {
		case err == nil:
			claimed = true
		case errors.Is(err, repo.ErrDuplicateRequest):
			return nil, nil, err
		default:
			s.logger.Warn("request dedup unavailable", "request_id", requestID, "error", err)
		}
	}

	release := func() {
		if !claimed {
			return
		}
		if err := s.dedup.Release(context.WithoutCancel(ctx), requestID); err != nil {
			s.logger.Warn("failed to release request", "request_id", requestID, "error", err)
		}
	}

	plan, err := s.planner.BuildPlan(req)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("build plan: %w", err)
	}

	summary := summarize(plan, requestID)

	handle, err := s.orch.Submit(plan)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("submit plan: %w", err)
	}

	s.logger.Info("operation accepted",
		"plan_id", summary.PlanID,
		"kind", summary.Kind,
		"priority", summary.Priority,
		"tasks", len(summary.Tasks),
		"request_id", requestID,
	)

	return summary, handle, nil
}

// Wait ждёт результат плана. timeout > 0 завершает план как TIMED_OUT
// по истечении времени.
func (s *Service) Wait(h *orchestrator.Handle, timeout time.Duration) *domain.PlanResult {
	return s.orch.Await(h, timeout)
}

// Preview строит план без выполнения.
func (s *Service) Preview(req domain.OperationRequest) (*PlanSummary, error) {
	kind, err := domain.ParseOperationKind(string(req.Kind))
	if err != nil {
		return nil, err
	}
	req.Kind = kind

	plan, err := s.planner.BuildPlan(req)
	if err != nil {
		return nil, err
	}
	return summarize(plan, ""), nil
}

// Templates возвращает шаблоны планов.
func (s *Service) Templates() []planner.Template {
	return s.planner.Templates()
}

// GetPlan возвращает промежуточный результат активного плана
// или сохранённый результат завершённого.
func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*domain.PlanResult, error) {
	if result, ok := s.orch.Snapshot(id); ok {
		return result, nil
	}
	if result, ok := s.orch.Finished(id); ok {
		return result, nil
	}

	result, err := s.store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListPlans возвращает планы: сначала активные (только на первой странице),
// затем сохранённые. Фильтр по статусу RUNNING отдаёт только активные.
func (s *Service) ListPlans(ctx context.Context, filter repo.PlanFilter) ([]domain.PlanResult, error) {
	var result []domain.PlanResult

	if (filter.Status == "" || filter.Status == domain.PlanStatusRunning) && filter.Offset <= 0 {
		active := s.orch.ActivePlans()
		slices.SortFunc(active, func(a, b *domain.PlanResult) int {
			return b.StartedAt.Compare(a.StartedAt)
		})
		for _, r := range active {
			if filter.Kind != "" && r.Kind != filter.Kind {
				continue
			}
			result = append(result, *r)
		}
	}

	if filter.Status == domain.PlanStatusRunning {
		return result, nil
	}

	stored, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return append(result, stored...), nil
}

// CancelPlan отменяет активный план.
func (s *Service) CancelPlan(ctx context.Context, id uuid.UUID) error {
	err := s.orch.Cancel(id)
	if err == nil {
		s.logger.Info("plan cancelled", "plan_id", id)
		return nil
	}
	if !errors.Is(err, orchestrator.ErrPlanNotActive) {
		return err
	}

	if _, ok := s.orch.Finished(id); ok {
		return fmt.Errorf("%w: %s", ErrPlanFinished, id)
	}
	if _, getErr := s.store.Get(ctx, id); getErr == nil {
		return fmt.Errorf("%w: %s", ErrPlanFinished, id)
	}
	return fmt.Errorf("%w: %s", ErrPlanNotFound, id)
}

// ListWorkers возвращает дескрипторы зарегистрированных воркеров.
func (s *Service) ListWorkers() []domain.WorkerDescriptor {
	return s.workers.List()
}

// GetWorker возвращает дескриптор воркера.
func (s *Service) GetWorker(workerType domain.WorkerType) (domain.WorkerDescriptor, error) {
	return s.workers.Get(workerType)
}

// ReportHealth применяет внешний отчёт о здоровье воркера.
func (s *Service) ReportHealth(ctx context.Context, workerType domain.WorkerType, health string, message string) error {
	h, err := domain.ParseHealth(health)
	if err != nil {
		return fmt.Errorf("%w: %q", registry.ErrInvalidHealth, health)
	}
	return s.workers.UpdateHealth(ctx, workerType, h, message)
}

// Stats — сводка по оркестратору и воркерам.
type Stats struct {
	Running     bool                   `json:"running"`
	PoolSize    int                    `json:"pool_size"`
	ActivePlans int                    `json:"active_plans"`
	Workers     map[string]int         `json:"workers"`
	Kinds       []domain.OperationKind `json:"kinds"`
}

// Stats возвращает сводку для /api/v1/stats.
func (s *Service) Stats() Stats {
	workers := make(map[string]int)
	for _, w := range s.workers.List() {
		workers[string(w.Health)]++
	}

	templates := s.planner.Templates()
	kinds := make([]domain.OperationKind, len(templates))
	for i, t := range templates {
		kinds[i] = t.Kind
	}

	return Stats{
		Running:     s.orch.IsRunning(),
		PoolSize:    s.orch.PoolSize(),
		ActivePlans: s.orch.ActivePlansCount(),
		Workers:     workers,
		Kinds:       kinds,
	}
}

// HandleOperationMessage принимает операцию из очереди operations.requested.
//
// Повтор по request ID подтверждается без выполнения. Неизвестный вид
// операции окончательный и уходит в DLQ.
func (s *Service) HandleOperationMessage(ctx context.Context, requestID string, payload mq.OperationRequestedPayload) error {
	_, _, err := s.Submit(ctx, payload.Request, requestID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrDuplicateRequest):
		telemetry.FromContext(ctx).Info("duplicate operation request skipped", "request_id", requestID, "source", payload.Source)
		return nil
	case errors.Is(err, domain.ErrUnknownOperationKind):
		return mq.Permanent(err)
	default:
		return err
	}
}

// HandleHealthMessage применяет отчёт о здоровье из очереди workers.health.
func (s *Service) HandleHealthMessage(ctx context.Context, payload mq.HealthPayload) error {
	err := s.ReportHealth(ctx, payload.WorkerType, string(payload.Health), payload.Message)
	if errors.Is(err, registry.ErrInvalidHealth) || errors.Is(err, registry.ErrWorkerNotFound) {
		return mq.Permanent(err)
	}
	return err
}
