package config

import "errors"

// Ошибки конфигурации.
var (
	// ErrInvalidConfig — значение конфигурации не проходит проверку.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnknownDriver — неизвестный driver воркера.
	ErrUnknownDriver = errors.New("unknown worker driver")

	// ErrMissingBackend — driver воркера требует недоступный backend (PostgreSQL, Redis).
	ErrMissingBackend = errors.New("worker backend not configured")
)
