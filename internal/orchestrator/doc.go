// Package orchestrator выполняет WorkflowPlan'ы.
//
// Orchestrator отвечает за:
//   - Приём планов (Submit) и ожидание результата (Await)
//   - Постановку готовых tasks в общую очередь с приоритетом и FIFO
//   - Проверку health gate перед постановкой task в очередь
//   - Выполнение tasks ограниченным пулом исполнителей
//   - Повторы упавших tasks с экспоненциальной задержкой
//   - Каскадное падение зависимых tasks
//   - Выявление зависших планов и таймаут плана
//   - Сборку PlanResult и отправку уведомлений
//
// Всё состояние планов принадлежит одной горутине (циклу),
// поэтому внутри цикла нет блокировок.
package orchestrator
