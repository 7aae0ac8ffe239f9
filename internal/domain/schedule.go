package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание регулярной операции (ночной backup, еженедельный optimize).
//
// Schedule позволяет запускать операцию:
// - По cron-выражению: "0 3 * * *" (каждый день в 3:00)
// - По интервалу: каждые N секунд
//
// Scheduler проверяет NextDueAt и отправляет OperationRequest, когда время подошло.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id" yaml:"-"`

	// Name — имя расписания.
	Name string `json:"name" yaml:"name"`

	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Если задан CronExpr, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty" yaml:"cron,omitempty"`

	// IntervalSec — интервал в секундах между запусками.
	// Используется если CronExpr не задан.
	IntervalSec int `json:"interval_sec,omitempty" yaml:"interval_sec,omitempty"`

	// Timezone — часовой пояс для вычисления времени. По умолчанию: "UTC".
	Timezone string `json:"timezone" yaml:"timezone,omitempty"`

	// Enabled — флаг активности расписания.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Operation — запрос, который отправляется при срабатывании.
	Operation OperationRequest `json:"operation" yaml:"operation"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty" yaml:"-"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty" yaml:"-"`

	// LastRequestID — ID последнего отправленного запроса.
	LastRequestID string `json:"last_request_id,omitempty" yaml:"-"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextDueAt == nil {
		return false
	}
	return now.After(*s.NextDueAt) || now.Equal(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(requestID string, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	s.LastRequestID = requestID
	s.NextDueAt = &nextDue
}
