package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateRequest — запрос с таким ID уже обработан.
	ErrDuplicateRequest = errors.New("duplicate request")
)
