// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (service, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (recovery, metrics, logging)
//   - response.go          — унифицированные JSON-ответы и маппинг ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - operation_handler.go — приём операций, preview, шаблоны, stats
//   - plan_handler.go      — обработчики для /plans
//   - worker_handler.go    — обработчики для /workers
//
// API принимает операции над базами данных, отдаёт результаты планов
// и принимает внешние отчёты о здоровье воркеров.
package api
