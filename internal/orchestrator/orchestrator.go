package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/worker"
)

// Default configuration values.
const (
	defaultPerTypeConcurrency = 2
	defaultPlanTimeout        = 10 * time.Minute
	defaultNotifyTimeout      = 10 * time.Second

	// finishedLimit — сколько последних результатов хранится в памяти,
	// пока notifier сохраняет их в БД.
	finishedLimit = 256
)

// HealthGate решает, можно ли ставить task на воркер.
type HealthGate interface {
	Admit(workerType domain.WorkerType) (domain.Health, error)
}

// ExecutorSource возвращает executor по типу воркера.
type ExecutorSource interface {
	Get(workerType domain.WorkerType) (worker.Executor, error)
}

// Notifier получает результаты завершённых планов (БД, RabbitMQ).
// Вызывается вне цикла оркестратора, ошибки только логируются.
type Notifier interface {
	PlanFinished(ctx context.Context, result *domain.PlanResult) error
}

// NotifierFunc — адаптер функции к Notifier.
type NotifierFunc func(ctx context.Context, result *domain.PlanResult) error

// PlanFinished вызывает f(ctx, result).
func (f NotifierFunc) PlanFinished(ctx context.Context, result *domain.PlanResult) error {
	return f(ctx, result)
}

// DispatchHook вызывается циклом оркестратора перед передачей task в пул.
// Выполняется в горутине цикла: может читать plan, но не должен блокироваться.
type DispatchHook func(plan *domain.WorkflowPlan, task *domain.WorkflowTask)

// Config — конфигурация Orchestrator.
type Config struct {
	// Executors — реализации воркеров (обязательно).
	Executors ExecutorSource

	// Gate — health gate (обязательно).
	Gate HealthGate

	// PoolSize — число одновременно выполняемых tasks.
	// По умолчанию: число типов воркеров × PerTypeConcurrency.
	PoolSize int

	// PerTypeConcurrency — используется для размера пула по умолчанию (default: 2).
	PerTypeConcurrency int

	// PlanTimeout — таймаут плана (default: 10m).
	PlanTimeout time.Duration

	// TaskTimeout — таймаут одной попытки task. 0 — без таймаута.
	TaskTimeout time.Duration

	// Retry — политика повторов.
	Retry RetryPolicy

	// Notifiers — получатели результатов.
	Notifiers []Notifier

	// OnDispatch — необязательный hook перед dispatch.
	OnDispatch DispatchHook

	// Logger
	Logger *slog.Logger
}

// Orchestrator выполняет WorkflowPlan'ы.
//
// Весь state планов принадлежит одной горутине — циклу (loop).
// Внешние вызовы (Submit, Cancel, Snapshot) передаются в цикл через
// канал команд, результаты выполнения tasks приходят через канал
// результатов, таймеры повторов и дедлайнов тоже отправляют события
// в цикл. Сами tasks выполняются пулом из PoolSize горутин.
//
// Orchestrator одноразовый: после Stop его нельзя запустить снова.
type Orchestrator struct {
	executors  ExecutorSource
	gate       HealthGate
	poolSize   int
	timeout    time.Duration
	taskTTL    time.Duration
	retry      RetryPolicy
	notifiers  []Notifier
	onDispatch DispatchHook
	logger     *slog.Logger
	now        func() time.Time

	cmdCh    chan func()
	resultCh chan taskOutcome
	workCh   chan workItem
	loopDone chan struct{}

	// Принадлежит циклу.
	plans    map[uuid.UUID]*PlanState
	ready    readyQueue
	inflight int
	seq      int64

	// Последние завершённые планы, FIFO длиной не больше finishedLimit.
	finished      map[uuid.UUID]*domain.PlanResult
	finishedOrder []uuid.UUID

	// Lifecycle
	mu         sync.Mutex
	running    bool
	started    bool
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	notifyWG   sync.WaitGroup
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	perType := cfg.PerTypeConcurrency
	if perType <= 0 {
		perType = defaultPerTypeConcurrency
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = len(domain.WorkerTypes) * perType
	}

	timeout := cfg.PlanTimeout
	if timeout <= 0 {
		timeout = defaultPlanTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		executors:  cfg.Executors,
		gate:       cfg.Gate,
		poolSize:   poolSize,
		timeout:    timeout,
		taskTTL:    cfg.TaskTimeout,
		retry:      cfg.Retry.withDefaults(),
		notifiers:  cfg.Notifiers,
		onDispatch: cfg.OnDispatch,
		logger:     logger,
		now:        time.Now,
		cmdCh:      make(chan func()),
		resultCh:   make(chan taskOutcome),
		workCh:     make(chan workItem, poolSize),
		loopDone:   make(chan struct{}),
		plans:      make(map[uuid.UUID]*PlanState),
		finished:   make(map[uuid.UUID]*domain.PlanResult),
	}
}

// Handle — ссылка на отправленный план.
type Handle struct {
	// PlanID — ID плана.
	PlanID uuid.UUID

	done   chan struct{}
	result *domain.PlanResult
}

// Done закрывается, когда план завершён.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result возвращает результат или nil, если план ещё выполняется.
func (h *Handle) Result() *domain.PlanResult {
	select {
	case <-h.done:
		return h.result
	default:
		return nil
	}
}

// Start запускает цикл и пул исполнителей.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return fmt.Errorf("%w: already started", ErrNotRunning)
	}
	o.started = true
	o.running = true

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"pool_size", o.poolSize,
		"plan_timeout", o.timeout,
		"task_timeout", o.taskTTL,
		"retry_base", o.retry.BaseDelay,
		"retry_max", o.retry.MaxDelay,
	)

	for range o.poolSize {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.runExecutor(ctx)
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает оркестратор.
//
// Активные планы завершаются со статусом CANCELLED, их Handle закрываются.
// Stop ждёт завершения цикла, пула и отправки уведомлений.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	o.logger.Info("stopping orchestrator...")

	o.cancelFunc()
	o.wg.Wait()
	o.notifyWG.Wait()

	o.logger.Info("orchestrator stopped")
}

// IsRunning проверяет, запущен ли оркестратор.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// PoolSize возвращает размер пула.
func (o *Orchestrator) PoolSize() int {
	return o.poolSize
}

// Submit принимает план к выполнению.
//
// С момента Submit план принадлежит оркестратору: вызывающая сторона
// не должна менять его до закрытия Handle.Done(). План с циклом или
// потерянной зависимостью принимается и завершается как STALLED.
func (o *Orchestrator) Submit(plan *domain.WorkflowPlan) (*Handle, error) {
	if err := validateSubmission(plan); err != nil {
		return nil, err
	}

	h := &Handle{PlanID: plan.ID, done: make(chan struct{})}

	var acceptErr error
	if err := o.do(func() { acceptErr = o.accept(plan, h) }); err != nil {
		return nil, err
	}
	if acceptErr != nil {
		return nil, acceptErr
	}
	return h, nil
}

// Await ждёт завершения плана и возвращает его результат.
//
// timeout > 0 ограничивает ожидание: по истечении план принудительно
// завершается как TIMED_OUT с частичными результатами. Await всегда
// возвращает PlanResult.
func (o *Orchestrator) Await(h *Handle, timeout time.Duration) *domain.PlanResult {
	if timeout <= 0 {
		<-h.done
		return h.result
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.result
	case <-timer.C:
		err := fmt.Errorf("%w: not finished within %s", domain.ErrPlanTimeout, timeout)
		_ = o.do(func() {
			if ps, ok := o.plans[h.PlanID]; ok && ps.handle == h {
				o.finalize(ps, domain.PlanStatusTimedOut, err)
			}
		})
		<-h.done
		return h.result
	}
}

// AwaitContext ждёт завершения плана до отмены ctx.
// В отличие от Await, отмена ctx не завершает план.
func (o *Orchestrator) AwaitContext(ctx context.Context, h *Handle) (*domain.PlanResult, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel отменяет план.
//
// Новые tasks плана не запускаются, результаты уже выполняющихся
// отбрасываются. Выполняющиеся tasks не прерываются.
func (o *Orchestrator) Cancel(planID uuid.UUID) error {
	var cancelErr error
	err := o.do(func() {
		ps, ok := o.plans[planID]
		if !ok {
			cancelErr = fmt.Errorf("%w: %s", ErrPlanNotActive, planID)
			return
		}
		o.finalize(ps, domain.PlanStatusCancelled, domain.ErrPlanCancelled)
	})
	if err != nil {
		return err
	}
	return cancelErr
}

// Snapshot возвращает текущий (промежуточный) результат активного плана.
func (o *Orchestrator) Snapshot(planID uuid.UUID) (*domain.PlanResult, bool) {
	var result *domain.PlanResult
	_ = o.do(func() {
		if ps, ok := o.plans[planID]; ok {
			result = ps.Aggregate(domain.PlanStatusRunning, nil, o.now())
		}
	})
	return result, result != nil
}

// Finished возвращает результат недавно завершённого плана.
//
// Уведомления отправляются асинхронно: между закрытием Handle и записью
// в хранилище результат доступен только здесь.
func (o *Orchestrator) Finished(planID uuid.UUID) (*domain.PlanResult, bool) {
	var result *domain.PlanResult
	_ = o.do(func() { result = o.finished[planID] })
	return result, result != nil
}

// Stats возвращает статистику активного плана.
func (o *Orchestrator) Stats(planID uuid.UUID) (PlanStats, bool) {
	var stats PlanStats
	var found bool
	_ = o.do(func() {
		if ps, ok := o.plans[planID]; ok {
			stats, found = ps.Stats(), true
		}
	})
	return stats, found
}

// ActivePlans возвращает промежуточные результаты всех активных планов.
func (o *Orchestrator) ActivePlans() []*domain.PlanResult {
	var results []*domain.PlanResult
	_ = o.do(func() {
		now := o.now()
		results = make([]*domain.PlanResult, 0, len(o.plans))
		for _, ps := range o.plans {
			results = append(results, ps.Aggregate(domain.PlanStatusRunning, nil, now))
		}
	})
	return results
}

// ActivePlansCount возвращает количество активных планов.
func (o *Orchestrator) ActivePlansCount() int {
	var n int
	_ = o.do(func() { n = len(o.plans) })
	return n
}

// do выполняет fn в горутине цикла и ждёт завершения.
func (o *Orchestrator) do(fn func()) error {
	if !o.IsRunning() {
		return ErrNotRunning
	}

	done := make(chan struct{})
	select {
	case o.cmdCh <- func() { fn(); close(done) }:
	case <-o.loopDone:
		return ErrOrchestratorStopped
	}
	<-done
	return nil
}

// post отправляет событие в цикл без ожидания выполнения (таймеры).
func (o *Orchestrator) post(fn func()) {
	select {
	case o.cmdCh <- fn:
	case <-o.loopDone:
	}
}

// loop — цикл оркестратора, единственный писатель состояния планов.
func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.loopDone)

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return
		case fn := <-o.cmdCh:
			fn()
		case out := <-o.resultCh:
			o.handleOutcome(out)
		}
	}
}

// shutdown отменяет все активные планы при остановке.
func (o *Orchestrator) shutdown() {
	err := fmt.Errorf("%w: %w", domain.ErrPlanCancelled, ErrOrchestratorStopped)
	for _, ps := range o.plans {
		o.finalize(ps, domain.PlanStatusCancelled, err)
	}
}

// validateSubmission проверяет план до передачи в цикл.
func validateSubmission(plan *domain.WorkflowPlan) error {
	if plan == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}
	if plan.ID == uuid.Nil {
		return fmt.Errorf("%w: plan has no ID", ErrInvalidPlan)
	}
	if len(plan.Tasks) == 0 {
		return fmt.Errorf("%w: plan has no tasks", ErrInvalidPlan)
	}

	seen := make(map[string]bool, len(plan.Tasks))
	for _, task := range plan.Tasks {
		if task == nil || task.ID == "" {
			return fmt.Errorf("%w: task without ID", ErrInvalidPlan)
		}
		if seen[task.ID] {
			return fmt.Errorf("%w: duplicate task ID %s", ErrInvalidPlan, task.ID)
		}
		seen[task.ID] = true
		if task.Status != domain.TaskStatusPending {
			return fmt.Errorf("%w: task %s is %s, expected PENDING", ErrInvalidPlan, task.ID, task.Status)
		}
	}
	return nil
}
