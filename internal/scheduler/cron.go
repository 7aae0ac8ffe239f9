package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/dbflow/internal/domain"
)

// cronParser — парсер cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время выполнения для schedule.
// Для интервалов просто добавляет IntervalSec к from.
//
// Учитывает timezone schedule.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	// Пустой timezone даёт UTC
	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		// Fallback на UTC если timezone невалидный
		loc = time.UTC
	}

	fromInTz := from.In(loc)

	if sched.IsCron() {
		return calculateNextCron(sched.CronExpr, fromInTz)
	}

	if sched.IsInterval() {
		return calculateNextInterval(sched.IntervalSec, fromInTz), nil
	}

	return time.Time{}, fmt.Errorf("%w: schedule %q has neither cron nor interval_sec", ErrInvalidSchedule, sched.Name)
}

// calculateNextCron вычисляет следующее время по cron-выражению.
func calculateNextCron(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parse cron expression %q: %w", ErrInvalidSchedule, cronExpr, err)
	}

	return schedule.Next(from).UTC(), nil
}

// calculateNextInterval вычисляет следующее время по интервалу.
func calculateNextInterval(intervalSec int, from time.Time) time.Time {
	return from.Add(time.Duration(intervalSec) * time.Second).UTC()
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("%w: invalid cron expression %q: %w", ErrInvalidSchedule, cronExpr, err)
	}
	return nil
}

// ValidateSchedule проверяет расписание перед загрузкой.
func ValidateSchedule(sched *domain.Schedule) error {
	if sched.Name == "" {
		return fmt.Errorf("%w: schedule has no name", ErrInvalidSchedule)
	}
	if sched.IsCron() {
		if err := ValidateCronExpr(sched.CronExpr); err != nil {
			return fmt.Errorf("schedule %q: %w", sched.Name, err)
		}
	} else if !sched.IsInterval() {
		return fmt.Errorf("%w: schedule %q has neither cron nor interval_sec", ErrInvalidSchedule, sched.Name)
	}
	if sched.Timezone != "" {
		if _, err := time.LoadLocation(sched.Timezone); err != nil {
			return fmt.Errorf("%w: schedule %q: unknown timezone %q", ErrInvalidSchedule, sched.Name, sched.Timezone)
		}
	}
	if _, err := domain.ParseOperationKind(string(sched.Operation.Kind)); err != nil {
		return fmt.Errorf("schedule %q: %w", sched.Name, err)
	}
	return nil
}
