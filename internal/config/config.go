package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/mq"
	"github.com/shaiso/dbflow/internal/repo"
)

// Config — конфигурация процессов dbflow.
//
// Источники по возрастанию приоритета: значения по умолчанию,
// YAML-файл (DBFLOW_CONFIG), переменные окружения.
type Config struct {
	// DatabaseURL — DSN PostgreSQL (DB_URL).
	DatabaseURL string `yaml:"database_url"`

	// RabbitMQURL — адрес RabbitMQ (RABBITMQ_URL).
	RabbitMQURL string `yaml:"rabbitmq_url"`

	// RedisURL — адрес Redis (REDIS_URL). Пусто — дедупликация запросов выключена.
	RedisURL string `yaml:"redis_url"`

	// APIPort — порт HTTP API (API_PORT).
	APIPort string `yaml:"api_port"`

	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Health       HealthConfig       `yaml:"health"`

	// SchedulerTick — период проверки расписаний (SCHEDULER_TICK).
	SchedulerTick time.Duration `yaml:"scheduler_tick"`

	Workers   []WorkerSpec   `yaml:"workers"`
	Schedules []ScheduleSpec `yaml:"schedules"`
}

// OrchestratorConfig — параметры выполнения планов.
type OrchestratorConfig struct {
	// PoolSize — размер пула (POOL_SIZE). 0 — число воркеров × WorkerConcurrency.
	PoolSize int `yaml:"pool_size"`

	// WorkerConcurrency — слотов пула на тип воркера (WORKER_CONCURRENCY).
	WorkerConcurrency int `yaml:"worker_concurrency"`

	// PlanTimeout — таймаут плана (PLAN_TIMEOUT).
	PlanTimeout time.Duration `yaml:"plan_timeout"`

	// TaskTimeout — таймаут одной попытки (TASK_TIMEOUT). 0 — без таймаута.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// MaxRetries — повторов на task (MAX_RETRIES).
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelay, RetryMaxDelay — backoff (RETRY_BASE_DELAY, RETRY_MAX_DELAY).
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}

// HealthConfig — параметры HealthMonitor.
type HealthConfig struct {
	// Interval — период проверок (HEALTH_INTERVAL).
	Interval time.Duration `yaml:"interval"`

	// Timeout — таймаут одной проверки.
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold — неудач подряд до CRITICAL (HEALTH_FAILURE_THRESHOLD).
	FailureThreshold int `yaml:"failure_threshold"`
}

// ScheduleSpec — расписание в YAML.
type ScheduleSpec struct {
	Name        string                  `yaml:"name"`
	Cron        string                  `yaml:"cron,omitempty"`
	IntervalSec int                     `yaml:"interval_sec,omitempty"`
	Timezone    string                  `yaml:"timezone,omitempty"`
	Enabled     *bool                   `yaml:"enabled,omitempty"`
	Operation   domain.OperationRequest `yaml:"operation"`
}

// Schedule конвертирует спецификацию в domain.Schedule.
// Не указанный enabled означает true.
func (s ScheduleSpec) Schedule() domain.Schedule {
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	return domain.Schedule{
		Name:        s.Name,
		CronExpr:    s.Cron,
		IntervalSec: s.IntervalSec,
		Timezone:    s.Timezone,
		Enabled:     enabled,
		Operation:   s.Operation,
	}
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		DatabaseURL: repo.DefaultDSN,
		RabbitMQURL: mq.DefaultURL(),
		APIPort:     "8080",
		Orchestrator: OrchestratorConfig{
			WorkerConcurrency: 2,
			PlanTimeout:       10 * time.Minute,
			MaxRetries:        domain.DefaultMaxRetries,
			RetryBaseDelay:    time.Second,
			RetryMaxDelay:     30 * time.Second,
		},
		Health: HealthConfig{
			Interval:         15 * time.Second,
			Timeout:          5 * time.Second,
			FailureThreshold: 3,
		},
		SchedulerTick: time.Second,
	}
}

// Load читает конфигурацию из DBFLOW_CONFIG и окружения.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("DBFLOW_CONFIG"))
}

// LoadFile читает конфигурацию из файла (если path не пуст) и окружения.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if len(cfg.Workers) == 0 {
		cfg.Workers = DefaultWorkers()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeYAML декодирует YAML поверх cfg. Неизвестные поля — ошибка.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// lookupFunc — источник переменных окружения (os.LookupEnv в рабочем коде).
type lookupFunc func(key string) (string, bool)

// applyEnv применяет переопределения из окружения.
func (c *Config) applyEnv(lookup lookupFunc) error {
	setString(lookup, "DB_URL", &c.DatabaseURL)
	setString(lookup, "RABBITMQ_URL", &c.RabbitMQURL)
	setString(lookup, "REDIS_URL", &c.RedisURL)
	setString(lookup, "API_PORT", &c.APIPort)

	ints := []struct {
		key string
		dst *int
	}{
		{"POOL_SIZE", &c.Orchestrator.PoolSize},
		{"WORKER_CONCURRENCY", &c.Orchestrator.WorkerConcurrency},
		{"MAX_RETRIES", &c.Orchestrator.MaxRetries},
		{"HEALTH_FAILURE_THRESHOLD", &c.Health.FailureThreshold},
	}
	for _, v := range ints {
		if err := setInt(lookup, v.key, v.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PLAN_TIMEOUT", &c.Orchestrator.PlanTimeout},
		{"TASK_TIMEOUT", &c.Orchestrator.TaskTimeout},
		{"RETRY_BASE_DELAY", &c.Orchestrator.RetryBaseDelay},
		{"RETRY_MAX_DELAY", &c.Orchestrator.RetryMaxDelay},
		{"HEALTH_INTERVAL", &c.Health.Interval},
		{"SCHEDULER_TICK", &c.SchedulerTick},
	}
	for _, v := range durations {
		if err := setDuration(lookup, v.key, v.dst); err != nil {
			return err
		}
	}

	return nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	o := c.Orchestrator
	switch {
	case o.PoolSize < 0:
		return fmt.Errorf("%w: pool_size must be >= 0", ErrInvalidConfig)
	case o.WorkerConcurrency <= 0:
		return fmt.Errorf("%w: worker_concurrency must be > 0", ErrInvalidConfig)
	case o.PlanTimeout <= 0:
		return fmt.Errorf("%w: plan_timeout must be > 0", ErrInvalidConfig)
	case o.TaskTimeout < 0:
		return fmt.Errorf("%w: task_timeout must be >= 0", ErrInvalidConfig)
	case o.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must be >= 0", ErrInvalidConfig)
	case o.RetryBaseDelay <= 0 || o.RetryMaxDelay < o.RetryBaseDelay:
		return fmt.Errorf("%w: retry delays must satisfy 0 < base <= max", ErrInvalidConfig)
	case c.Health.Interval <= 0 || c.Health.FailureThreshold <= 0:
		return fmt.Errorf("%w: health interval and failure_threshold must be > 0", ErrInvalidConfig)
	case c.SchedulerTick <= 0:
		return fmt.Errorf("%w: scheduler_tick must be > 0", ErrInvalidConfig)
	case c.APIPort == "":
		return fmt.Errorf("%w: api_port is empty", ErrInvalidConfig)
	}

	seen := make(map[domain.WorkerType]bool, len(c.Workers))
	for _, w := range c.Workers {
		if err := w.validate(); err != nil {
			return err
		}
		if seen[w.Type] {
			return fmt.Errorf("%w: duplicate worker %s", ErrInvalidConfig, w.Type)
		}
		seen[w.Type] = true
	}

	return nil
}

// ScheduleList возвращает расписания из конфигурации.
func (c *Config) ScheduleList() []domain.Schedule {
	result := make([]domain.Schedule, len(c.Schedules))
	for i, s := range c.Schedules {
		result[i] = s.Schedule()
	}
	return result
}

// APIAddr возвращает адрес HTTP сервера.
func (c *Config) APIAddr() string {
	return ":" + c.APIPort
}

func setString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

func setInt(lookup lookupFunc, key string, dst *int) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
	}
	*dst = n
	return nil
}

// setDuration принимает Go duration ("30s") или целое число секунд.
func setDuration(lookup lookupFunc, key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: expected duration", ErrInvalidConfig, key, v)
	}
	*dst = time.Duration(secs) * time.Second
	return nil
}
