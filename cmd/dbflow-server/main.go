// dbflow-server — принимает операции над базами данных и выполняет их планы.
//
// Server:
//   - Принимает OperationRequest через HTTP API и очередь operations.requested
//   - Строит план по шаблону операции и выполняет его оркестратором
//   - Следит за здоровьем воркеров (probes + очередь workers.health)
//   - Сохраняет результаты планов в PostgreSQL и публикует plan.finished
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/dbflow/internal/api"
	"github.com/shaiso/dbflow/internal/config"
	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/mq"
	"github.com/shaiso/dbflow/internal/orchestrator"
	"github.com/shaiso/dbflow/internal/planner"
	"github.com/shaiso/dbflow/internal/registry"
	"github.com/shaiso/dbflow/internal/repo"
	"github.com/shaiso/dbflow/internal/service"
	"github.com/shaiso/dbflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting dbflow-server")

	if err := run(logger); err != nil {
		logger.Error("dbflow-server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("dbflow-server stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// PostgreSQL: хранилище результатов и driver sql.
	// Без БД результаты хранятся в памяти, если ни один воркер не требует sql.
	var store repo.PlanStore
	backends := config.Backends{}

	pool, err := repo.NewPool(ctx, repo.PoolConfig{DSN: cfg.DatabaseURL})
	switch {
	case err == nil:
		defer pool.Close()
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		store = repo.NewPlanRepo(pool)
		backends.DB = pool
		logger.Info("database connected")
	case cfg.NeedsDriver(config.DriverSQL):
		return fmt.Errorf("connect to database: %w", err)
	default:
		logger.Warn("database not available, keeping plan results in memory", "error", err)
		store = repo.NewMemoryPlanStore(0)
	}

	// Redis: driver redis и дедупликация запросов
	var dedup service.Deduplicator
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		backends.Redis = rdb
		dedup = repo.NewRequestDedup(rdb, 0)
		logger.Info("redis configured", "addr", opts.Addr)
	}

	executors, err := config.BuildExecutors(cfg.Workers, backends)
	if err != nil {
		return fmt.Errorf("build executors: %w", err)
	}

	// RabbitMQ
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL, Logger: logger})
	if err != nil {
		logger.Warn("RabbitMQ not available, running in HTTP-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn, "dbflow-server", logger)
	}

	// Реестр воркеров
	workers := registry.New(registry.Config{
		Observer: healthObserver(publisher, logger),
		Logger:   logger,
	})
	for _, spec := range cfg.Workers {
		workers.RegisterWorker(spec.Type, spec.Capabilities)
	}

	notifiers := []orchestrator.Notifier{store}
	if publisher != nil {
		notifiers = append(notifiers, publisher)
	}

	orch := orchestrator.New(orchestrator.Config{
		Executors:          executors,
		Gate:               registry.NewHealthGate(workers),
		PoolSize:           cfg.Orchestrator.PoolSize,
		PerTypeConcurrency: cfg.Orchestrator.WorkerConcurrency,
		PlanTimeout:        cfg.Orchestrator.PlanTimeout,
		TaskTimeout:        cfg.Orchestrator.TaskTimeout,
		Retry: orchestrator.RetryPolicy{
			BaseDelay: cfg.Orchestrator.RetryBaseDelay,
			MaxDelay:  cfg.Orchestrator.RetryMaxDelay,
		},
		Notifiers: notifiers,
		Logger:    logger,
	})

	svc := service.New(service.Config{
		Planner:      planner.New(planner.Config{MaxRetries: cfg.Orchestrator.MaxRetries, Logger: logger}),
		Orchestrator: orch,
		Store:        store,
		Workers:      workers,
		Dedup:        dedup,
		Logger:       logger,
	})

	monitor := registry.NewHealthMonitor(registry.MonitorConfig{
		Probers:          executors.Probers(),
		Updater:          workers,
		Interval:         cfg.Health.Interval,
		Timeout:          cfg.Health.Timeout,
		FailureThreshold: cfg.Health.FailureThreshold,
		Logger:           logger,
	})

	// HTTP mux: API + /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz(orch, pool))
	mux.Handle("/metrics", promhttp.Handler())
	api.NewHandler(api.Config{Service: svc, Logger: logger}).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		workers.Run(gctx)
		return nil
	})

	if err := orch.Start(gctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	defer orch.Stop()

	g.Go(func() error {
		monitor.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Graceful shutdown с таймаутом 10 секунд
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if mqConn != nil {
		consumers := []*mq.Consumer{
			mq.NewConsumer(mqConn, mq.ConsumerConfig{
				Queue:    mq.QueueOperationsRequested,
				Handler:  mq.OperationHandler(svc.HandleOperationMessage),
				Prefetch: 10,
				Logger:   logger,
			}),
			mq.NewConsumer(mqConn, mq.ConsumerConfig{
				Queue:    mq.QueueWorkersHealth,
				Handler:  mq.HealthHandler(svc.HandleHealthMessage),
				Prefetch: 20,
				Logger:   logger,
			}),
		}
		for _, c := range consumers {
			g.Go(func() error { return c.Run(gctx) })
		}
	}

	return g.Wait()
}

// healthObserver обновляет метрику и публикует worker.health_changed
// при смене здоровья. Вызывается только writer-горутиной реестра.
func healthObserver(publisher *mq.Publisher, logger *slog.Logger) registry.HealthObserver {
	last := make(map[domain.WorkerType]domain.Health)

	return func(u registry.HealthUpdate) {
		telemetry.WorkerHealth.WithLabelValues(string(u.Type)).Set(telemetry.HealthValue(string(u.Health)))

		previous, seen := last[u.Type]
		last[u.Type] = u.Health
		if publisher == nil || (seen && previous == u.Health) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := publisher.PublishHealthChanged(ctx, mq.HealthPayload{
			WorkerType: u.Type,
			Health:     u.Health,
			Message:    u.Message,
			At:         u.At,
		})
		if err != nil {
			logger.Warn("failed to publish worker health change", "worker", u.Type, "error", err)
		}
	}
}

// healthz отвечает 200, пока оркестратор работает и БД (если есть) доступна.
func healthz(orch *orchestrator.Orchestrator, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !orch.IsRunning() {
			http.Error(w, "orchestrator stopped", http.StatusServiceUnavailable)
			return
		}
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
