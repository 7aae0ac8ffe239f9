package worker

import "errors"

// Ошибки воркеров.
var (
	// ErrUnknownWorkerType — нет executor'а для типа воркера.
	ErrUnknownWorkerType = errors.New("unknown worker type")

	// ErrHTTPRequest — HTTP-запрос к воркеру завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")

	// ErrNoStatement — для шага не настроен SQL statement.
	ErrNoStatement = errors.New("no statement configured for step")

	// ErrSQLExecution — SQL statement завершился ошибкой.
	ErrSQLExecution = errors.New("sql execution failed")

	// ErrCacheOperation — операция с Redis завершилась ошибкой.
	ErrCacheOperation = errors.New("cache operation failed")

	// ErrUnknownCacheAction — неизвестное действие cache-воркера.
	ErrUnknownCacheAction = errors.New("unknown cache action")
)
