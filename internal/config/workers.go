package config

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/worker"
)

// Драйверы воркеров.
const (
	DriverHTTP  = "http"
	DriverSQL   = "sql"
	DriverRedis = "redis"
	DriverDelay = "delay"
)

// WorkerSpec — описание воркера в YAML.
//
//	workers:
//	  - type: schema
//	    driver: sql
//	    capabilities: [postgres]
//	    statements:
//	      migrate: {sql: "SELECT apply_migrations($1)", args: [target_version]}
//	  - type: backup
//	    driver: http
//	    endpoint: http://backup-worker:9000/tasks
type WorkerSpec struct {
	Type         domain.WorkerType `yaml:"type"`
	Driver       string            `yaml:"driver"`
	Capabilities []string          `yaml:"capabilities,omitempty"`

	// http
	Endpoint  string            `yaml:"endpoint,omitempty"`
	HealthURL string            `yaml:"health_url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   time.Duration     `yaml:"timeout,omitempty"`

	// sql: имя шага → statement
	Statements map[string]worker.Statement `yaml:"statements,omitempty"`

	// redis
	CachePrefix string        `yaml:"cache_prefix,omitempty"`
	CacheTTL    time.Duration `yaml:"cache_ttl,omitempty"`

	// delay
	Delay   time.Duration  `yaml:"delay,omitempty"`
	Outputs map[string]any `yaml:"outputs,omitempty"`
}

// DefaultWorkers — воркеры для локального запуска без файла конфигурации:
// все типы на driver delay.
func DefaultWorkers() []WorkerSpec {
	specs := make([]WorkerSpec, len(domain.WorkerTypes))
	for i, wt := range domain.WorkerTypes {
		specs[i] = WorkerSpec{
			Type:         wt,
			Driver:       DriverDelay,
			Capabilities: []string{"simulated"},
			Delay:        100 * time.Millisecond,
		}
	}
	return specs
}

func (w WorkerSpec) validate() error {
	if w.Type == "" {
		return fmt.Errorf("%w: worker type is empty", ErrInvalidConfig)
	}
	if !slices.Contains(domain.WorkerTypes, w.Type) {
		return fmt.Errorf("%w: unknown worker type %q", ErrInvalidConfig, w.Type)
	}

	switch w.Driver {
	case DriverHTTP:
		if w.Endpoint == "" {
			return fmt.Errorf("%w: worker %s: http driver requires endpoint", ErrInvalidConfig, w.Type)
		}
	case DriverSQL:
		if len(w.Statements) == 0 {
			return fmt.Errorf("%w: worker %s: sql driver requires statements", ErrInvalidConfig, w.Type)
		}
		for name, st := range w.Statements {
			if st.SQL == "" {
				return fmt.Errorf("%w: worker %s: statement %s has empty sql", ErrInvalidConfig, w.Type, name)
			}
		}
	case DriverRedis, DriverDelay:
	default:
		return fmt.Errorf("%w: worker %s: %q", ErrUnknownDriver, w.Type, w.Driver)
	}
	return nil
}

// Backends — внешние ресурсы, которые используют драйверы воркеров.
type Backends struct {
	// DB — пул PostgreSQL для driver sql.
	DB worker.DB

	// Redis — клиент для driver redis.
	Redis redis.UniversalClient

	// HTTPClient — клиент для driver http. nil — http.DefaultClient.
	HTTPClient *http.Client
}

// NeedsDriver сообщает, использует ли хотя бы один воркер driver.
func (c *Config) NeedsDriver(driver string) bool {
	return slices.ContainsFunc(c.Workers, func(w WorkerSpec) bool { return w.Driver == driver })
}

// BuildExecutors создаёт executor'ы воркеров по спецификациям.
func BuildExecutors(specs []WorkerSpec, b Backends) (*worker.Registry, error) {
	executors := worker.NewRegistry()

	for _, spec := range specs {
		if err := spec.validate(); err != nil {
			return nil, err
		}

		var exec worker.Executor
		switch spec.Driver {
		case DriverHTTP:
			exec = &worker.HTTPExecutor{
				Endpoint:  spec.Endpoint,
				HealthURL: spec.HealthURL,
				Headers:   spec.Headers,
				Timeout:   spec.Timeout,
				Client:    b.HTTPClient,
			}
		case DriverSQL:
			if b.DB == nil {
				return nil, fmt.Errorf("%w: worker %s needs PostgreSQL", ErrMissingBackend, spec.Type)
			}
			exec = worker.NewSQLExecutor(b.DB, spec.Statements)
		case DriverRedis:
			if b.Redis == nil {
				return nil, fmt.Errorf("%w: worker %s needs REDIS_URL", ErrMissingBackend, spec.Type)
			}
			exec = worker.NewRedisExecutor(b.Redis, worker.RedisConfig{
				Prefix: spec.CachePrefix,
				TTL:    spec.CacheTTL,
			})
		case DriverDelay:
			exec = &worker.DelayExecutor{Duration: spec.Delay, Outputs: spec.Outputs}
		}

		executors.Register(spec.Type, exec)
	}

	return executors, nil
}
