package jobs

import (
	"context"
	"encoding/json"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/webhook"
	"github.com/shaiso/Swarm/internal/worker"
)

// WebhookHandler выполняет одну попытку доставки webhook.
//
// Повторы доставки планирует сам Deliverer отдельными jobs с тем же
// delivery id. Ошибка Execute означает сбой хранилища, а не ответ endpoint.
type WebhookHandler struct {
	deliverer Deliverer
}

// IdempotencyKey — ID job уникален для пары (доставка, попытка).
func (h *WebhookHandler) IdempotencyKey(job *domain.Job) (string, error) {
	return job.ID, nil
}

// Execute выполняет доставку.
func (h *WebhookHandler) Execute(ctx context.Context, job *domain.Job, jc *worker.JobContext) (json.RawMessage, error) {
	p, err := worker.DecodePayload[webhook.DeliverPayload](job)
	if err != nil {
		return nil, err
	}

	delivery, err := h.deliverer.Deliver(ctx, p)
	if err != nil {
		return nil, err
	}

	return marshal(map[string]any{
		"delivery_id":    delivery.ID,
		"status":         delivery.Status,
		"attempt_number": delivery.AttemptNumber,
		"response_code":  delivery.ResponseCode,
	})
}
