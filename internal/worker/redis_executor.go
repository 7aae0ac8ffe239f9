package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/dbflow/internal/domain"
)

// Действия cache-воркера.
const (
	CacheActionInvalidate = "invalidate"
	CacheActionRefresh    = "refresh"
	CacheActionExpire     = "expire"
)

const (
	defaultCachePrefix = "dbflow:"
	defaultCacheTTL    = time.Hour
	defaultScanCount   = 500
)

// RedisExecutor — cache-воркер поверх Redis.
//
// Действие берётся из params["action"], иначе выводится из имени шага:
//   - invalidate: удаляет ключи по pattern (cache-invalidate, cache)
//   - refresh:    увеличивает счётчик поколения кэша (cache-refresh)
//   - expire:     ставит TTL ключам без TTL (optimize-cache)
//
// Params:
//   - pattern (string): glob для SCAN. Default: "<prefix>*"
type RedisExecutor struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisConfig — конфигурация RedisExecutor.
type RedisConfig struct {
	// Prefix — префикс ключей кэша приложения. Default: "dbflow:".
	Prefix string

	// TTL — TTL для действия expire. Default: 1h.
	TTL time.Duration
}

// NewRedisExecutor создаёт RedisExecutor.
func NewRedisExecutor(client redis.UniversalClient, cfg RedisConfig) *RedisExecutor {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultCachePrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	return &RedisExecutor{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

// Execute выполняет действие над кэшем.
func (e *RedisExecutor) Execute(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
	action := cacheAction(task)
	pattern := getString(task.Params, "pattern", e.prefix+"*")

	switch action {
	case CacheActionInvalidate:
		deleted, err := e.invalidate(ctx, pattern)
		if err != nil {
			return nil, err
		}
		return map[string]any{"action": action, "pattern": pattern, "deleted": deleted}, nil

	case CacheActionRefresh:
		generation, err := e.client.Incr(ctx, e.prefix+"generation").Result()
		if err != nil {
			return nil, fmt.Errorf("%w: incr generation: %v", ErrCacheOperation, err)
		}
		return map[string]any{"action": action, "generation": generation}, nil

	case CacheActionExpire:
		expired, err := e.expire(ctx, pattern)
		if err != nil {
			return nil, err
		}
		return map[string]any{"action": action, "pattern": pattern, "expired": expired}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCacheAction, action)
	}
}

// invalidate удаляет ключи по pattern пачками SCAN.
func (e *RedisExecutor) invalidate(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	iter := e.client.Scan(ctx, 0, pattern, defaultScanCount).Iterator()

	batch := make([]string, 0, defaultScanCount)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := e.client.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("%w: unlink: %v", ErrCacheOperation, err)
		}
		deleted += n
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == defaultScanCount {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("%w: scan: %v", ErrCacheOperation, err)
	}
	return deleted, flush()
}

// expire ставит TTL ключам, у которых его нет.
func (e *RedisExecutor) expire(ctx context.Context, pattern string) (int64, error) {
	var expired int64
	iter := e.client.Scan(ctx, 0, pattern, defaultScanCount).Iterator()

	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := e.client.TTL(ctx, key).Result()
		if err != nil {
			return expired, fmt.Errorf("%w: ttl %s: %v", ErrCacheOperation, key, err)
		}
		// -1 — ключ без TTL
		if ttl != -1 {
			continue
		}
		ok, err := e.client.Expire(ctx, key, e.ttl).Result()
		if err != nil {
			return expired, fmt.Errorf("%w: expire %s: %v", ErrCacheOperation, key, err)
		}
		if ok {
			expired++
		}
	}
	if err := iter.Err(); err != nil {
		return expired, fmt.Errorf("%w: scan: %v", ErrCacheOperation, err)
	}
	return expired, nil
}

// Probe проверяет соединение с Redis.
func (e *RedisExecutor) Probe(ctx context.Context) error {
	return e.client.Ping(ctx).Err()
}

// cacheAction определяет действие для task.
func cacheAction(task *domain.WorkflowTask) string {
	if action := getString(task.Params, "action", ""); action != "" {
		return action
	}
	switch task.Name {
	case "cache-refresh":
		return CacheActionRefresh
	case "optimize-cache":
		return CacheActionExpire
	default:
		return CacheActionInvalidate
	}
}
