package registry

import "errors"

// Ошибки реестра воркеров.
var (
	// ErrWorkerNotFound — воркер с таким типом не зарегистрирован.
	ErrWorkerNotFound = errors.New("worker not registered")

	// ErrInvalidHealth — неизвестное значение health.
	ErrInvalidHealth = errors.New("invalid health status")

	// ErrRegistryStopped — writer-горутина реестра остановлена.
	ErrRegistryStopped = errors.New("registry stopped")
)
