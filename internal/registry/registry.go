package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shaiso/dbflow/internal/domain"
)

const defaultUpdateBuffer = 64

// HealthUpdate — сообщение об изменении здоровья воркера.
type HealthUpdate struct {
	Type    domain.WorkerType
	Health  domain.Health
	Message string
	At      time.Time
}

// HealthObserver получает применённые обновления здоровья (метрики, логи).
type HealthObserver func(update HealthUpdate)

// Config — конфигурация Registry.
type Config struct {
	// UpdateBuffer — размер буфера канала обновлений (default: 64).
	UpdateBuffer int

	// Observer — вызывается writer-горутиной после применения обновления.
	Observer HealthObserver

	// Logger
	Logger *slog.Logger
}

// Registry хранит по одному WorkerDescriptor на тип воркера.
//
// Чтение (CheckHealth, Get, List) идёт под RWMutex и видит недавнее,
// но не обязательно самое последнее значение. Здоровье меняет только
// одна writer-горутина (Run), которая читает канал обновлений.
type Registry struct {
	mu      sync.RWMutex
	workers map[domain.WorkerType]*domain.WorkerDescriptor

	updates  chan HealthUpdate
	done     chan struct{}
	observer HealthObserver
	logger   *slog.Logger
	now      func() time.Time
}

// New создаёт пустой Registry.
func New(cfg Config) *Registry {
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = defaultUpdateBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Registry{
		workers:  make(map[domain.WorkerType]*domain.WorkerDescriptor),
		updates:  make(chan HealthUpdate, cfg.UpdateBuffer),
		done:     make(chan struct{}),
		observer: cfg.Observer,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// RegisterWorker регистрирует воркер в состоянии HEALTHY.
// Повторная регистрация обновляет capabilities и сохраняет health.
func (r *Registry) RegisterWorker(workerType domain.WorkerType, capabilities []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.workers[workerType]; ok {
		existing.Capabilities = slices.Clone(capabilities)
		return
	}

	r.workers[workerType] = &domain.WorkerDescriptor{
		Type:            workerType,
		Capabilities:    slices.Clone(capabilities),
		Health:          domain.HealthHealthy,
		HealthUpdatedAt: now,
		RegisteredAt:    now,
	}

	r.logger.Info("worker registered",
		"worker", workerType,
		"capabilities", capabilities,
	)
}

// UpdateHealth отправляет обновление здоровья writer-горутине.
//
// Блокируется, если буфер заполнен, до отмены ctx или остановки Run.
func (r *Registry) UpdateHealth(ctx context.Context, workerType domain.WorkerType, health domain.Health, message string) error {
	switch health {
	case domain.HealthHealthy, domain.HealthDegraded, domain.HealthCritical:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidHealth, health)
	}

	if _, err := r.Get(workerType); err != nil {
		return err
	}

	update := HealthUpdate{
		Type:    workerType,
		Health:  health,
		Message: message,
		At:      r.now(),
	}

	select {
	case r.updates <- update:
		return nil
	case <-r.done:
		return ErrRegistryStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run — writer-горутина реестра. Применяет обновления до отмены ctx.
func (r *Registry) Run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-r.updates:
			r.apply(update)
		}
	}
}

// apply применяет обновление. Вызывается только из Run.
func (r *Registry) apply(update HealthUpdate) {
	r.mu.Lock()
	desc, ok := r.workers[update.Type]
	if !ok {
		r.mu.Unlock()
		return
	}
	previous := desc.Health
	desc.Health = update.Health
	desc.HealthMessage = update.Message
	desc.HealthUpdatedAt = update.At
	r.mu.Unlock()

	if previous != update.Health {
		level := slog.LevelInfo
		if update.Health == domain.HealthCritical {
			level = slog.LevelWarn
		}
		r.logger.Log(context.Background(), level, "worker health changed",
			"worker", update.Type,
			"from", previous,
			"to", update.Health,
			"message", update.Message,
		)
	}

	if r.observer != nil {
		r.observer(update)
	}
}

// CheckHealth возвращает последнее известное здоровье воркера.
// Незарегистрированный воркер считается CRITICAL.
func (r *Registry) CheckHealth(workerType domain.WorkerType) domain.Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.workers[workerType]
	if !ok {
		return domain.HealthCritical
	}
	return desc.Health
}

// Get возвращает копию дескриптора воркера.
func (r *Registry) Get(workerType domain.WorkerType) (domain.WorkerDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.workers[workerType]
	if !ok {
		return domain.WorkerDescriptor{}, fmt.Errorf("%w: %s", ErrWorkerNotFound, workerType)
	}
	c := *desc
	c.Capabilities = slices.Clone(desc.Capabilities)
	return c, nil
}

// List возвращает копии всех дескрипторов, отсортированные по типу.
func (r *Registry) List() []domain.WorkerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.WorkerDescriptor, 0, len(r.workers))
	for _, desc := range r.workers {
		c := *desc
		c.Capabilities = slices.Clone(desc.Capabilities)
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.WorkerDescriptor) int {
		switch {
		case a.Type < b.Type:
			return -1
		case a.Type > b.Type:
			return 1
		default:
			return 0
		}
	})
	return result
}

// Types возвращает зарегистрированные типы воркеров.
func (r *Registry) Types() []domain.WorkerType {
	list := r.List()
	types := make([]domain.WorkerType, len(list))
	for i, d := range list {
		types[i] = d.Type
	}
	return types
}
