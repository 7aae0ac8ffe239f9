package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/telemetry"
)

const defaultTickInterval = time.Second

// Publisher отправляет запрос на операцию серверу (RabbitMQ).
type Publisher interface {
	PublishOperationRequested(ctx context.Context, req domain.OperationRequest, requestID string) error
}

// Scheduler — планировщик регулярных операций.
type Scheduler struct {
	mu        sync.Mutex
	schedules []*domain.Schedule

	publisher Publisher
	leader    Leader
	interval  time.Duration
	logger    *slog.Logger

	// now подменяется в тестах.
	now func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	// Schedules — расписания (из файла конфигурации).
	Schedules []domain.Schedule

	// Publisher — куда отправлять запросы (обязательно).
	Publisher Publisher

	// Leader — выбор лидера. nil — экземпляр всегда лидер.
	Leader Leader

	// Interval — период тика (default: 1s).
	Interval time.Duration

	Logger *slog.Logger
}

// New создаёт Scheduler и вычисляет первое время запуска каждого расписания.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultTickInterval
	}

	s := &Scheduler{
		publisher: cfg.Publisher,
		leader:    cfg.Leader,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}

	seen := make(map[string]bool, len(cfg.Schedules))
	for i := range cfg.Schedules {
		sched := cfg.Schedules[i]
		if err := ValidateSchedule(&sched); err != nil {
			return nil, err
		}
		if seen[sched.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSchedule, sched.Name)
		}
		seen[sched.Name] = true

		if sched.ID == uuid.Nil {
			sched.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("dbflow/schedule/"+sched.Name))
		}
		sched.Operation.Kind = domain.OperationKind(strings.ToUpper(string(sched.Operation.Kind)))

		next, err := CalculateNextDue(&sched, s.now())
		if err != nil {
			return nil, err
		}
		sched.NextDueAt = &next
		s.schedules = append(s.schedules, &sched)
	}

	return s, nil
}

// Schedules возвращает копии расписаний.
func (s *Scheduler) Schedules() []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Schedule, len(s.schedules))
	for i, sched := range s.schedules {
		out[i] = *sched
	}
	return out
}

// Run вызывает Tick каждые Interval до отмены ctx.
// Если задан Leader, тик выполняется только лидером.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"schedules", len(s.schedules),
		"interval", s.interval,
	)

	tk := time.NewTicker(s.interval)
	defer tk.Stop()

	defer func() {
		if s.leader != nil {
			if err := s.leader.Release(context.Background()); err != nil {
				s.logger.Warn("failed to release leader lock", "error", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-tk.C:
			if err := s.TickAsLeader(ctx); err != nil && !errors.Is(err, ErrNotLeader) {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// TickAsLeader выполняет Tick, если экземпляр лидер.
func (s *Scheduler) TickAsLeader(ctx context.Context) error {
	if s.leader != nil {
		ok, err := s.leader.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire leader lock: %w", err)
		}
		if !ok {
			return ErrNotLeader
		}
	}
	return s.Tick(ctx)
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled, next_due_at <= now)
// 2. Для каждого отправляет OperationRequest
// 3. Сдвигает next_due_at
//
// Ошибки одного schedule не блокируют обработку остальных.
// Если отправка не удалась, next_due_at не сдвигается: запрос
// повторится на следующем тике с тем же request ID.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	var due []*domain.Schedule
	for _, sched := range s.schedules {
		if sched.IsDue(now) {
			due = append(due, sched)
		}
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(due))

	var failed []string
	for _, sched := range due {
		if err := s.processSchedule(ctx, sched, now); err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			failed = append(failed, sched.Name)
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(due),
		"failed", len(failed),
	)

	if len(failed) > 0 {
		slices.Sort(failed)
		return fmt.Errorf("schedules failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

// processSchedule отправляет запрос для одного schedule.
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	// Idempotency key: "{schedule_id}_{next_due_at_unix}" — один запрос на одно срабатывание
	requestID := fmt.Sprintf("%s_%d", sched.ID, sched.NextDueAt.Unix())

	if err := s.publisher.PublishOperationRequested(ctx, sched.Operation, requestID); err != nil {
		return fmt.Errorf("publish operation: %w", err)
	}

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		// Расписание проверено при загрузке, сюда попадать не должны
		sched.Enabled = false
		return fmt.Errorf("calculate next due, schedule disabled: %w", err)
	}
	sched.RecordRun(requestID, nextDue)

	telemetry.SchedulesFired.WithLabelValues(sched.Name).Inc()
	s.logger.Info("operation requested by schedule",
		"schedule_name", sched.Name,
		"request_id", requestID,
		"kind", sched.Operation.Kind,
		"next_due_at", nextDue,
	)
	return nil
}
