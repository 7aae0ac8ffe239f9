package mq

import (
	"context"
	"fmt"
)

// OperationHandler возвращает Handler очереди operations.requested.
//
// Ошибка разбора сообщения окончательная (сообщение уходит в DLQ),
// ошибки submit передаются как есть.
func OperationHandler(submit func(ctx context.Context, requestID string, payload OperationRequestedPayload) error) Handler {
	return func(ctx context.Context, d *Delivery) error {
		if d.Message.Type != MessageTypeOperationRequested {
			return Permanent(fmt.Errorf("%w: %s", ErrUnexpectedMessage, d.Message.Type))
		}
		payload, err := ParsePayload[OperationRequestedPayload](&d.Message)
		if err != nil {
			return Permanent(err)
		}
		return submit(ctx, d.Message.ID, payload)
	}
}

// HealthHandler возвращает Handler очереди workers.health.
func HealthHandler(update func(ctx context.Context, payload HealthPayload) error) Handler {
	return func(ctx context.Context, d *Delivery) error {
		if d.Message.Type != MessageTypeHealthReport {
			return Permanent(fmt.Errorf("%w: %s", ErrUnexpectedMessage, d.Message.Type))
		}
		payload, err := ParsePayload[HealthPayload](&d.Message)
		if err != nil {
			return Permanent(err)
		}
		return update(ctx, payload)
	}
}
