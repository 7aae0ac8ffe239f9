package service

import "errors"

// Ошибки сервиса операций.
var (
	// ErrPlanNotFound — план не активен и не найден в хранилище.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrPlanFinished — план уже завершён, действие над ним невозможно.
	ErrPlanFinished = errors.New("plan already finished")
)
