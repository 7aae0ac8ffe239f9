// dbflow-scheduler — отправляет регулярные операции по расписанию.
//
// Scheduler:
//   - Читает расписания из файла конфигурации (DBFLOW_CONFIG)
//   - Становится лидером через pg_try_advisory_lock (один активный экземпляр)
//   - Публикует OperationRequest в очередь operations.requested
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/dbflow/internal/config"
	"github.com/shaiso/dbflow/internal/mq"
	"github.com/shaiso/dbflow/internal/repo"
	"github.com/shaiso/dbflow/internal/scheduler"
	"github.com/shaiso/dbflow/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting dbflow-scheduler")

	if err := run(logger); err != nil {
		logger.Error("dbflow-scheduler failed", "error", err)
		os.Exit(1)
	}
	logger.Info("dbflow-scheduler stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Advisory lock держится на одном соединении, поэтому пул из одного соединения.
	pool, err := repo.NewPool(ctx, repo.PoolConfig{DSN: cfg.DatabaseURL, MaxConns: 1})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	mqConn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer mqConn.Close()

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Schedules: cfg.ScheduleList(),
		Publisher: mq.NewPublisher(mqConn, "dbflow-scheduler", logger),
		Leader:    scheduler.NewAdvisoryLock(pool, scheduler.DefaultLockKey),
		Interval:  cfg.SchedulerTick,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	for _, s := range sched.Schedules() {
		logger.Info("schedule loaded",
			"name", s.Name,
			"cron", s.CronExpr,
			"interval_sec", s.IntervalSec,
			"enabled", s.Enabled,
			"next_due_at", s.NextDueAt,
		)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			http.Error(w, "rabbitmq disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}
	server := &http.Server{Addr: port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(gctx) })

	g.Go(func() error {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
