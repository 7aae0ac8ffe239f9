package scheduler

import "errors"

var (
	// ErrInvalidSchedule — расписание нельзя загрузить.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrDuplicateSchedule — два расписания с одним именем.
	ErrDuplicateSchedule = errors.New("duplicate schedule name")

	// ErrNotLeader — экземпляр не держит advisory lock.
	ErrNotLeader = errors.New("not a leader")
)
