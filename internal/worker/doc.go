// Package worker описывает контракт вызова воркеров и его реализации.
//
// # Executor
//
// Все воркеры вызываются одинаково:
//
//	type Executor interface {
//	    Execute(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error)
//	}
//
// Возвращённые outputs становятся результатом task и доступны зависимым
// шагам через {{ .Steps.<name>.Outputs.<key> }}. Любая ошибка считается
// транзиентной: решение о повторе принимает оркестратор.
//
// Реализации:
//   - HTTPExecutor  — удалённый воркер по HTTP (POST task, JSON outputs)
//   - SQLExecutor   — SQL statements в PostgreSQL через pgx
//   - RedisExecutor — cache-воркер (invalidate, refresh, expire)
//   - DelayExecutor — имитация воркера для локального запуска
//   - ExecutorFunc  — адаптер функции
//
// # Prober
//
// Executor может реализовать Prober. HealthMonitor периодически вызывает
// Probe и публикует здоровье в реестр воркеров. В горячем пути Probe
// не вызывается никогда.
//
// # Registry
//
// Typed-реестр WorkerType → Executor, заполняется при старте сервиса.
package worker
