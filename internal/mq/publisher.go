package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/dbflow/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeOperationRequested MessageType = "operation.requested"
	MessageTypeHealthReport       MessageType = "worker.health"
	MessageTypeHealthChanged      MessageType = "worker.health_changed"
	MessageTypePlanFinished       MessageType = "plan.finished"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения (idempotency key для запросов).
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// OperationRequestedPayload — запрос на операцию.
type OperationRequestedPayload struct {
	Request domain.OperationRequest `json:"request"`

	// Source — кто отправил запрос (имя расписания, клиент).
	Source string `json:"source,omitempty"`
}

// HealthPayload — состояние здоровья воркера.
type HealthPayload struct {
	WorkerType domain.WorkerType `json:"worker_type"`
	Health     domain.Health     `json:"health"`
	Message    string            `json:"message,omitempty"`
	At         time.Time         `json:"at"`
}

// Sender отправляет одно AMQP сообщение.
type Sender interface {
	Send(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg amqp.Publishing) error
}

// Send публикует сообщение через текущий канал.
func (c *Connection) Send(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg amqp.Publishing) error {
	return c.WithChannel(ctx, func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false, msg)
	})
}

// Publisher публикует сообщения dbflow в RabbitMQ.
type Publisher struct {
	sender Sender
	source string
	logger *slog.Logger
}

// NewPublisher создаёт Publisher. source попадает в запросы операций.
func NewPublisher(sender Sender, source string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{sender: sender, source: source, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.sender.Send(ctx, exchange, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)
	return nil
}

// PublishOperationRequested отправляет запрос на операцию.
// requestID становится ID сообщения; пустой — генерируется.
// Потребитель: dbflow-server.
func (p *Publisher) PublishOperationRequested(ctx context.Context, req domain.OperationRequest, requestID string) error {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return p.Publish(ctx, ExchangeOperations, RoutingKeyRequested, &Message{
		ID:        requestID,
		Type:      MessageTypeOperationRequested,
		Payload:   OperationRequestedPayload{Request: req, Source: p.source},
		Timestamp: time.Now(),
	})
}

// PublishHealthReport отправляет внешний отчёт о здоровье воркера.
// Потребитель: dbflow-server.
func (p *Publisher) PublishHealthReport(ctx context.Context, payload HealthPayload) error {
	if payload.At.IsZero() {
		payload.At = time.Now()
	}
	return p.Publish(ctx, ExchangeWorkers, RoutingKeyHealth, &Message{
		ID:        uuid.NewString(),
		Type:      MessageTypeHealthReport,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// PublishHealthChanged публикует событие смены здоровья воркера.
func (p *Publisher) PublishHealthChanged(ctx context.Context, payload HealthPayload) error {
	return p.Publish(ctx, ExchangeEvents, RoutingKeyWorkerHealthChange, &Message{
		ID:        uuid.NewString(),
		Type:      MessageTypeHealthChanged,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// PlanFinished публикует итог плана (реализует orchestrator.Notifier).
func (p *Publisher) PlanFinished(ctx context.Context, result *domain.PlanResult) error {
	return p.Publish(ctx, ExchangeEvents, RoutingKeyPlanFinished, &Message{
		ID:        result.PlanID.String(),
		Type:      MessageTypePlanFinished,
		Payload:   result,
		Timestamp: time.Now(),
	})
}
