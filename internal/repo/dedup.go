package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultDedupPrefix = "dbflow:request:"
	defaultDedupTTL    = 24 * time.Hour
)

// RequestDedup отсеивает повторные запросы операций по request ID.
//
// RabbitMQ доставляет сообщения at-least-once, а scheduler повторяет
// отправку с тем же ID, если публикация не подтвердилась.
type RequestDedup struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRequestDedup создаёт RequestDedup. ttl <= 0 даёт 24h.
func NewRequestDedup(client redis.UniversalClient, ttl time.Duration) *RequestDedup {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &RequestDedup{client: client, prefix: defaultDedupPrefix, ttl: ttl}
}

// Claim резервирует request ID. Возвращает ErrDuplicateRequest,
// если ID уже был зарезервирован.
func (d *RequestDedup) Claim(ctx context.Context, requestID string) error {
	ok, err := d.client.SetNX(ctx, d.prefix+requestID, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim request %s: %w", requestID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, requestID)
	}
	return nil
}

// Release снимает резервирование (запрос не удалось принять).
func (d *RequestDedup) Release(ctx context.Context, requestID string) error {
	if err := d.client.Del(ctx, d.prefix+requestID).Err(); err != nil {
		return fmt.Errorf("release request %s: %w", requestID, err)
	}
	return nil
}
