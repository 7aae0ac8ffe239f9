// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений из очередей
//   - handlers.go   — обработчики очередей dbflow
//
// Типы сообщений:
//   - operation.requested   — запрос на операцию (scheduler, внешние клиенты)
//   - worker.health         — внешний отчёт о здоровье воркера
//   - worker.health_changed — событие смены здоровья
//   - plan.finished         — итог выполнения плана
//
// Exchanges:
//   - dbflow.operations — запросы операций
//   - dbflow.workers    — отчёты о здоровье
//   - dbflow.events     — события (topic)
//   - dbflow.dlq        — dead letter queue
package mq
