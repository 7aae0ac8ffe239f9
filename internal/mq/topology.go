package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeOperations Exchange = "dbflow.operations"
	ExchangeWorkers    Exchange = "dbflow.workers"
	ExchangeEvents     Exchange = "dbflow.events"
	ExchangeDLQ        Exchange = "dbflow.dlq"
)

// Queues — имена очередей.
const (
	QueueOperationsRequested Queue = "operations.requested"
	QueueWorkersHealth       Queue = "workers.health"
	QueueEventsPlans         Queue = "events.plans"
	QueueEventsWorkers       Queue = "events.workers"
	QueueDLQOperations       Queue = "dlq.operations"
)

// Routing keys.
const (
	RoutingKeyRequested          RoutingKey = "requested"
	RoutingKeyHealth             RoutingKey = "health"
	RoutingKeyPlanFinished       RoutingKey = "plan.finished"
	RoutingKeyWorkerHealthChange RoutingKey = "worker.health_changed"
	RoutingKeyDLQOperations      RoutingKey = "operations"

	routingKeyPlanEvents   RoutingKey = "plan.*"
	routingKeyWorkerEvents RoutingKey = "worker.*"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology — полное описание exchanges, queues и bindings.
var topology = struct {
	exchanges []exchangeDecl
	queues    []queueDecl
	bindings  []bindingDecl
}{
	exchanges: []exchangeDecl{
		{ExchangeOperations, amqp.ExchangeDirect},
		{ExchangeWorkers, amqp.ExchangeDirect},
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	},
	queues: []queueDecl{
		// operations.requested — с DLQ: запрос, который не удалось спланировать, не теряется
		{QueueOperationsRequested, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQOperations),
		}},
		{QueueWorkersHealth, nil},
		{QueueEventsPlans, nil},
		{QueueEventsWorkers, nil},
		{QueueDLQOperations, nil},
	},
	bindings: []bindingDecl{
		{QueueOperationsRequested, RoutingKeyRequested, ExchangeOperations},
		{QueueWorkersHealth, RoutingKeyHealth, ExchangeWorkers},
		{QueueEventsPlans, routingKeyPlanEvents, ExchangeEvents},
		{QueueEventsWorkers, routingKeyWorkerEvents, ExchangeEvents},
		{QueueDLQOperations, RoutingKeyDLQOperations, ExchangeDLQ},
	},
}

// SetupTopology объявляет exchanges, queues и bindings. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range topology.exchanges {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range topology.queues {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range topology.bindings {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  dbflow RabbitMQ topology:

    dbflow.operations (direct)
    └── operations.requested [routing: requested]
            Producer: dbflow-scheduler, external clients
            Consumer: dbflow-server
            DLQ: dlq.operations

    dbflow.workers (direct)
    └── workers.health [routing: health]
            Producer: worker agents
            Consumer: dbflow-server

    dbflow.events (topic)
    ├── events.plans [routing: plan.*]
    └── events.workers [routing: worker.*]
            Producer: dbflow-server

    dbflow.dlq (direct)
    └── dlq.operations [routing: operations]
            Manual processing
`
}
