package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/queue"
)

// Notifier рассылает событие всем подписанным webhooks пользователя.
type Notifier struct {
	webhooks WebhookStore
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewNotifier создаёт Notifier.
func NewNotifier(webhooks WebhookStore, enqueuer Enqueuer, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{webhooks: webhooks, enqueuer: enqueuer, logger: logger}
}

// Notify ставит job доставки для каждого активного webhook, подписанного на event.
// eventID делает постановку идемпотентной: повтор с тем же eventID не создаёт дублей.
// Возвращает количество поставленных jobs.
func (n *Notifier) Notify(ctx context.Context, userID uuid.UUID, eventID, event string, payload any) (int, error) {
	hooks, err := n.webhooks.ListActiveByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list webhooks: %w", err)
	}

	var raw json.RawMessage
	queued := 0
	for i := range hooks {
		hook := &hooks[i]
		if !hook.Subscribed(event) {
			continue
		}

		if raw == nil {
			if raw, err = json.Marshal(payload); err != nil {
				return 0, fmt.Errorf("marshal payload: %w", err)
			}
		}

		_, err := n.enqueuer.Enqueue(ctx, domain.QueueWebhooks, domain.JobTypeWebhookDelivery,
			DeliverPayload{WebhookID: hook.ID, Event: event, Payload: raw},
			queue.EnqueueOptions{JobID: fmt.Sprintf("webhook:%s:%s", hook.ID, eventID)},
		)
		if err != nil {
			return queued, fmt.Errorf("enqueue delivery for webhook %s: %w", hook.ID, err)
		}
		queued++
	}

	if queued > 0 {
		n.logger.Debug("webhook deliveries queued", "user_id", userID, "event", event, "count", queued)
	}
	return queued, nil
}
