package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownJobType — нет обработчика для типа job.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrInvalidPayload — payload job не разбирается.
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrPoolStopped — пул остановлен.
	ErrPoolStopped = errors.New("worker pool stopped")
)
