package webhook

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/queue"
)

// ErrWebhookNotFound — webhook удалён или не существует.
var ErrWebhookNotFound = errors.New("webhook not found")

// WebhookStore — чтение подписок (repo.WebhookRepo).
type WebhookStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.Webhook, error)
}

// DeliveryStore — записи доставок (repo.DeliveryRepo).
type DeliveryStore interface {
	Create(ctx context.Context, d *domain.WebhookDelivery) error
	Get(ctx context.Context, id uuid.UUID) (*domain.WebhookDelivery, error)
	Update(ctx context.Context, d *domain.WebhookDelivery) error
}

// Enqueuer ставит jobs доставки (queue.Broker или worker.JobContext).
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, jobType string, payload any, opts queue.EnqueueOptions) (*domain.Job, error)
}
