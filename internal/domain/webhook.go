package domain

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// События, на которые можно подписать webhook.
const (
	EventTradeSucceeded        = "trade.succeeded"
	EventTradeFailed           = "trade.failed"
	EventDistributionCompleted = "distribution.completed"
	EventCampaignStatusChanged = "campaign.status_changed"
)

// Webhook — подписка пользователя на события.
type Webhook struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscribed проверяет, подписан ли webhook на событие.
func (w *Webhook) Subscribed(event string) bool {
	return w.Active && slices.Contains(w.Events, event)
}

// WebhookDelivery — одна логическая доставка события на webhook.
//
// Запись создаётся до первого HTTP-запроса и обновляется
// после каждой попытки.
type WebhookDelivery struct {
	ID            uuid.UUID       `json:"id"`
	WebhookID     uuid.UUID       `json:"webhook_id"`
	Event         string          `json:"event"`
	Payload       json.RawMessage `json:"payload"`
	URL           string          `json:"url"`
	Status        DeliveryStatus  `json:"status"`
	AttemptNumber int             `json:"attempt_number"`
	MaxAttempts   int             `json:"max_attempts"`
	Signature     string          `json:"signature,omitempty"`
	ResponseCode  int             `json:"response_code,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
