package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/retry"
)

// Handler — обработчик одного типа job.
type Handler interface {
	// IdempotencyKey возвращает ключ логической операции job.
	// Пустой ключ отключает проверку идемпотентности.
	IdempotencyKey(job *domain.Job) (string, error)

	// Execute выполняет job. Класс возвращённой ошибки (retry.KindOf)
	// определяет, будет ли job повторён.
	Execute(ctx context.Context, job *domain.Job, jc *JobContext) (json.RawMessage, error)
}

// Registry — реестр обработчиков по типу job.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register добавляет обработчик для типа job.
func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// Get возвращает обработчик. Неизвестный тип — неповторяемая ошибка.
func (r *Registry) Get(jobType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[jobType]
	if !ok {
		return nil, retry.AsPermanent(fmt.Errorf("%w: %s", ErrUnknownJobType, jobType))
	}
	return h, nil
}

// Types возвращает зарегистрированные типы.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// DecodePayload разбирает payload job. Ошибка разбора неповторяема.
func DecodePayload[T any](job *domain.Job) (T, error) {
	var v T
	if err := json.Unmarshal(job.Payload, &v); err != nil {
		return v, retry.AsPermanent(fmt.Errorf("%w: %s: %v", ErrInvalidPayload, job.Type, err))
	}
	return v, nil
}
