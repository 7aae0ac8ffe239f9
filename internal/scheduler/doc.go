// Package scheduler запускает регулярные операции по расписанию.
//
// Расписания читаются из файла конфигурации. Scheduler периодически
// проверяет, у каких расписаний подошло next_due_at, и отправляет
// OperationRequest серверу через RabbitMQ.
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Tick, processSchedule)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//   - leader.go    — выбор лидера через pg_try_advisory_lock
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedules: cfg.Schedules,
//	    Publisher: publisher,
//	    Leader:    scheduler.NewAdvisoryLock(pool, 0), // опционально
//	    Logger:    logger,
//	})
//	go sched.Run(ctx)
//
// Несколько экземпляров scheduler'а могут работать одновременно:
// тики выполняет только держатель advisory lock.
package scheduler
