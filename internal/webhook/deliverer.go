package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/circuitbreaker"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/metrics"
	"github.com/shaiso/Swarm/internal/queue"
	"github.com/shaiso/Swarm/internal/retry"
)

// DefaultMaxAttempts — попыток доставки на одно событие.
const DefaultMaxAttempts = 5

// DeliverPayload — payload job webhook.deliver.
//
// Первая попытка несёт WebhookID, Event и Payload; повторные — DeliveryID,
// чтобы нумерация попыток продолжалась, а не начиналась заново.
type DeliverPayload struct {
	DeliveryID uuid.UUID       `json:"delivery_id,omitempty"`
	WebhookID  uuid.UUID       `json:"webhook_id,omitempty"`
	Event      string          `json:"event,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// DelivererConfig — зависимости Deliverer.
type DelivererConfig struct {
	Webhooks   WebhookStore
	Deliveries DeliveryStore
	Enqueuer   Enqueuer
	Sender     *Sender

	// Breaker — circuit breaker по URL (опционально).
	Breaker *circuitbreaker.Breaker

	// MaxAttempts — лимит попыток доставки (default: 5).
	MaxAttempts int

	// Policy — задержка повтора (default: retry.WebhookPolicy).
	Policy retry.Policy

	Metrics metrics.Sink
	Logger  *slog.Logger
	Now     func() time.Time
}

// Deliverer выполняет одну попытку доставки и планирует следующую.
type Deliverer struct {
	webhooks   WebhookStore
	deliveries DeliveryStore
	enqueuer   Enqueuer
	sender     *Sender
	breaker    *circuitbreaker.Breaker

	maxAttempts int
	policy      retry.Policy

	metrics metrics.Sink
	logger  *slog.Logger
	now     func() time.Time
}

// NewDeliverer создаёт Deliverer.
func NewDeliverer(cfg DelivererConfig) *Deliverer {
	d := &Deliverer{
		webhooks:    cfg.Webhooks,
		deliveries:  cfg.Deliveries,
		enqueuer:    cfg.Enqueuer,
		sender:      cfg.Sender,
		breaker:     cfg.Breaker,
		maxAttempts: cfg.MaxAttempts,
		policy:      cfg.Policy,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if d.sender == nil {
		d.sender = NewSender(DefaultTimeout)
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = DefaultMaxAttempts
	}
	if d.policy == (retry.Policy{}) {
		d.policy = retry.WebhookPolicy
	}
	if d.metrics == nil {
		d.metrics = metrics.Noop{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Deliver выполняет очередную попытку доставки.
//
// Исход доставки (success, retrying, failed) отражается в записи и не
// является ошибкой. Ошибка возвращается только при сбое хранилища или
// постановки повтора: тогда job повторяется воркером.
func (d *Deliverer) Deliver(ctx context.Context, p DeliverPayload) (*domain.WebhookDelivery, error) {
	delivery, secret, err := d.load(ctx, p)
	if err != nil {
		return nil, err
	}
	if delivery.Status.IsTerminal() {
		return delivery, nil
	}

	attempt := delivery.AttemptNumber + 1
	logger := d.logger.With(
		"delivery_id", delivery.ID,
		"webhook_id", delivery.WebhookID,
		"event", delivery.Event,
		"attempt", attempt,
	)

	resp, sendErr := d.send(ctx, delivery, secret)
	d.metrics.WebhookAttempt(metrics.ClassifyStatus(resp.StatusCode, sendErr), resp.Duration)

	now := d.now()
	delivery.AttemptNumber = attempt
	delivery.Signature = resp.Signature
	delivery.ResponseCode = resp.StatusCode
	delivery.UpdatedAt = now
	delivery.NextRetryAt = nil
	delivery.LastError = ""

	var delay time.Duration
	switch {
	case sendErr == nil && resp.StatusCode >= 200 && resp.StatusCode < 300:
		delivery.Status = domain.DeliveryStatusSuccess

	case retryable(resp.StatusCode, sendErr) && attempt < delivery.MaxAttempts:
		delay = d.policy.Delay(attempt)
		next := now.Add(delay)
		delivery.Status = domain.DeliveryStatusRetrying
		delivery.NextRetryAt = &next
		delivery.LastError = describe(resp.StatusCode, sendErr)

	default:
		delivery.Status = domain.DeliveryStatusFailed
		delivery.LastError = describe(resp.StatusCode, sendErr)
	}

	if err := d.deliveries.Update(ctx, delivery); err != nil {
		return nil, fmt.Errorf("update delivery: %w", err)
	}

	if delivery.Status == domain.DeliveryStatusRetrying {
		_, err := d.enqueuer.Enqueue(ctx, domain.QueueWebhooks, domain.JobTypeWebhookDelivery,
			DeliverPayload{DeliveryID: delivery.ID},
			queue.EnqueueOptions{
				JobID: fmt.Sprintf("webhook:%s:%d", delivery.ID, attempt+1),
				Delay: delay,
			})
		if err != nil {
			return nil, fmt.Errorf("schedule retry: %w", err)
		}
	}

	d.metrics.WebhookOutcome(outcomeLabel(delivery.Status))
	logger.Info("webhook attempt finished",
		"status", delivery.Status,
		"response_code", resp.StatusCode,
		"duration_ms", resp.Duration.Milliseconds(),
		"next_retry_in", delay,
		"error", delivery.LastError,
	)
	return delivery, nil
}

// load возвращает существующую доставку или создаёт новую до первой попытки.
func (d *Deliverer) load(ctx context.Context, p DeliverPayload) (*domain.WebhookDelivery, string, error) {
	if p.DeliveryID != uuid.Nil {
		delivery, err := d.deliveries.Get(ctx, p.DeliveryID)
		if err != nil {
			return nil, "", fmt.Errorf("get delivery %s: %w", p.DeliveryID, err)
		}
		hook, err := d.webhooks.Get(ctx, delivery.WebhookID)
		if err != nil {
			return nil, "", d.missingWebhook(ctx, delivery, err)
		}
		return delivery, hook.Secret, nil
	}

	if p.WebhookID == uuid.Nil || p.Event == "" {
		return nil, "", retry.AsPermanent(errors.New("webhook delivery payload requires webhook_id and event"))
	}

	hook, err := d.webhooks.Get(ctx, p.WebhookID)
	if err != nil {
		if errors.Is(err, ErrWebhookNotFound) {
			return nil, "", retry.AsPermanent(err)
		}
		return nil, "", fmt.Errorf("get webhook %s: %w", p.WebhookID, err)
	}

	now := d.now()
	delivery := &domain.WebhookDelivery{
		ID:          uuid.New(),
		WebhookID:   hook.ID,
		Event:       p.Event,
		Payload:     p.Payload,
		URL:         hook.URL,
		Status:      domain.DeliveryStatusPending,
		MaxAttempts: d.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.deliveries.Create(ctx, delivery); err != nil {
		return nil, "", fmt.Errorf("create delivery: %w", err)
	}
	return delivery, hook.Secret, nil
}

// missingWebhook завершает доставку, если webhook удалён между попытками.
func (d *Deliverer) missingWebhook(ctx context.Context, delivery *domain.WebhookDelivery, cause error) error {
	if !errors.Is(cause, ErrWebhookNotFound) {
		return fmt.Errorf("get webhook %s: %w", delivery.WebhookID, cause)
	}
	delivery.Status = domain.DeliveryStatusFailed
	delivery.LastError = cause.Error()
	delivery.NextRetryAt = nil
	delivery.UpdatedAt = d.now()
	if err := d.deliveries.Update(ctx, delivery); err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	return retry.AsPermanent(cause)
}

// send выполняет запрос через circuit breaker адреса.
func (d *Deliverer) send(ctx context.Context, delivery *domain.WebhookDelivery, secret string) (Response, error) {
	req := Request{
		URL:       delivery.URL,
		Secret:    secret,
		Event:     delivery.Event,
		Payload:   delivery.Payload,
		Timestamp: d.now(),
	}

	if d.breaker == nil {
		return d.sender.Send(ctx, req)
	}

	if err := d.breaker.Allow(delivery.URL); err != nil {
		return Response{}, err
	}
	resp, err := d.sender.Send(ctx, req)
	if err != nil || resp.StatusCode >= 500 {
		d.breaker.RecordFailure(delivery.URL)
	} else {
		d.breaker.RecordSuccess(delivery.URL)
	}
	return resp, err
}

// retryable: 5xx, 429 и сетевые ошибки повторяются, остальные 4xx — нет.
func retryable(code int, err error) bool {
	if err != nil {
		return true
	}
	return code >= 500 || code == 429
}

func describe(code int, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("unexpected status %d", code)
}

func outcomeLabel(s domain.DeliveryStatus) string {
	switch s {
	case domain.DeliveryStatusSuccess:
		return metrics.WebhookSuccess
	case domain.DeliveryStatusRetrying:
		return metrics.WebhookRetrying
	default:
		return metrics.WebhookFailed
	}
}
