package queue

import (
	"context"

	"github.com/shaiso/Swarm/internal/domain"
)

// WithMaxAttempts возвращает Broker, подставляющий maxAttempts в jobs
// без явного лимита попыток.
func WithMaxAttempts(b Broker, maxAttempts int) Broker {
	if maxAttempts <= 0 {
		return b
	}
	return &defaultsBroker{Broker: b, maxAttempts: maxAttempts}
}

type defaultsBroker struct {
	Broker
	maxAttempts int
}

func (b *defaultsBroker) Enqueue(ctx context.Context, queue, jobType string, payload any, opts EnqueueOptions) (*domain.Job, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = b.maxAttempts
	}
	return b.Broker.Enqueue(ctx, queue, jobType, payload, opts)
}
