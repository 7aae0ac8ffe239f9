package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/telemetry"
	"github.com/shaiso/dbflow/internal/worker"
)

const (
	defaultProbeInterval    = 15 * time.Second
	defaultProbeTimeout     = 5 * time.Second
	defaultFailureThreshold = 3
)

// HealthUpdater — получатель результатов проверок.
type HealthUpdater interface {
	UpdateHealth(ctx context.Context, workerType domain.WorkerType, health domain.Health, message string) error
}

// MonitorConfig — конфигурация HealthMonitor.
type MonitorConfig struct {
	// Probers — проверяемые воркеры.
	Probers map[domain.WorkerType]worker.Prober

	// Updater — куда отправлять результаты (обычно *Registry).
	Updater HealthUpdater

	// Interval — период проверок (default: 15s).
	Interval time.Duration

	// Timeout — таймаут одной проверки (default: 5s).
	Timeout time.Duration

	// FailureThreshold — сколько неудач подряд переводят воркер в CRITICAL (default: 3).
	// Меньшее число неудач даёт DEGRADED.
	FailureThreshold int

	// Logger
	Logger *slog.Logger
}

// HealthMonitor периодически проверяет воркеры и публикует их здоровье.
//
// Монитор не пишет в реестр напрямую: результаты уходят через
// UpdateHealth в канал единственной writer-горутины реестра.
type HealthMonitor struct {
	probers   map[domain.WorkerType]worker.Prober
	updater   HealthUpdater
	interval  time.Duration
	timeout   time.Duration
	threshold int
	logger    *slog.Logger

	// failures — неудачи подряд. Используется только горутиной Run.
	failures map[domain.WorkerType]int
}

// NewHealthMonitor создаёт HealthMonitor.
func NewHealthMonitor(cfg MonitorConfig) *HealthMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &HealthMonitor{
		probers:   cfg.Probers,
		updater:   cfg.Updater,
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		threshold: cfg.FailureThreshold,
		logger:    cfg.Logger,
		failures:  make(map[domain.WorkerType]int),
	}
}

// Run проверяет воркеры сразу и затем каждые Interval до отмены ctx.
func (m *HealthMonitor) Run(ctx context.Context) {
	m.logger.Info("health monitor started",
		"workers", len(m.probers),
		"interval", m.interval,
		"threshold", m.threshold,
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probeAll(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

// probeAll выполняет одну проверку всех воркеров.
func (m *HealthMonitor) probeAll(ctx context.Context) {
	for workerType, prober := range m.probers {
		if ctx.Err() != nil {
			return
		}

		health, message := m.probe(ctx, workerType, prober)
		if err := m.updater.UpdateHealth(ctx, workerType, health, message); err != nil && ctx.Err() == nil {
			m.logger.Warn("failed to publish worker health",
				"worker", workerType,
				"error", err,
			)
		}
	}
}

// probe проверяет один воркер и возвращает вычисленное здоровье.
func (m *HealthMonitor) probe(ctx context.Context, workerType domain.WorkerType, prober worker.Prober) (domain.Health, string) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := prober.Probe(probeCtx)
	if err == nil {
		m.failures[workerType] = 0
		return domain.HealthHealthy, ""
	}

	m.failures[workerType]++
	failures := m.failures[workerType]

	telemetry.WithWorker(m.logger, string(workerType)).Debug("worker probe failed",
		"failures", failures,
		"error", err,
	)

	if failures >= m.threshold {
		return domain.HealthCritical, err.Error()
	}
	return domain.HealthDegraded, err.Error()
}
