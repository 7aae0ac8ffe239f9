// Package cli реализует инструмент командной строки dbflow.
//
// # Обзор
//
// CLI — клиентская утилита для dbflow API. Основная работа идёт через
// HTTP. Исключения: plan preview --offline строит план встроенным
// планировщиком, worker health --amqp-url публикует отчёт в RabbitMQ.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для dbflow API. Инкапсулирует запросы, разбор ответов
// (dataResponse, listResponse, errorResponse) и ошибки API (*APIError).
//
//	client := cli.NewClient("http://localhost:8080")
//	resp, err := client.SubmitOperation(cli.SubmitOperationRequest{Kind: "BACKUP"}, cli.SubmitOpts{Wait: time.Minute})
//
// ## Output
//
// Форматирование вывода. Таблицы (text/tabwriter) по умолчанию,
// JSON с флагом --json. Данные выводятся в stdout, сообщения в stderr:
//
//	dbflow plan list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - operation: submit, templates
//   - plan: list, show, cancel, preview
//   - worker: list, show, health
//   - stats
//
// Каждая группа создаётся фабричной функцией (NewOperationCmd и т.д.),
// принимающей clientFn и outputFn: Client и Output создаются лениво,
// после разбора PersistentFlags.
package cli
