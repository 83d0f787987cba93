package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/webhook"
)

// WebhookRepo — репозиторий подписок на события.
type WebhookRepo struct {
	pool *pgxpool.Pool
}

// NewWebhookRepo создаёт новый WebhookRepo.
func NewWebhookRepo(pool *pgxpool.Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

const webhookColumns = `id, user_id, url, secret, events, active, created_at`

// Create создаёт подписку.
func (r *WebhookRepo) Create(ctx context.Context, w *domain.Webhook) error {
	query := `
		INSERT INTO webhooks (` + webhookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query, w.ID, w.UserID, w.URL, w.Secret, w.Events, w.Active, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

// Get возвращает подписку. Отсутствие — ErrNotFound и webhook.ErrWebhookNotFound.
func (r *WebhookRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1`

	var w domain.Webhook
	err := r.pool.QueryRow(ctx, query, id).Scan(&w.ID, &w.UserID, &w.URL, &w.Secret, &w.Events, &w.Active, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, webhook.ErrWebhookNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return &w, nil
}

// ListActiveByUser возвращает активные подписки пользователя.
func (r *WebhookRepo) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhooks
		WHERE user_id = $1 AND active
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var out []domain.Webhook
	for rows.Next() {
		var w domain.Webhook
		if err := rows.Scan(&w.ID, &w.UserID, &w.URL, &w.Secret, &w.Events, &w.Active, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeliveryRepo — репозиторий webhook_deliveries.
type DeliveryRepo struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepo создаёт новый DeliveryRepo.
func NewDeliveryRepo(pool *pgxpool.Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

const deliveryColumns = `id, webhook_id, event, payload, url, status, attempt_number, max_attempts,
	signature, response_code, last_error, next_retry_at, created_at, updated_at`

// Create сохраняет доставку до первой попытки.
func (r *DeliveryRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (` + deliveryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.pool.Exec(ctx, query,
		d.ID,
		d.WebhookID,
		d.Event,
		rawJSON(d.Payload),
		d.URL,
		d.Status,
		d.AttemptNumber,
		d.MaxAttempts,
		nullString(d.Signature),
		d.ResponseCode,
		nullString(d.LastError),
		d.NextRetryAt,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// Get возвращает доставку по ID.
func (r *DeliveryRepo) Get(ctx context.Context, id uuid.UUID) (*domain.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`
	return scanDelivery(r.pool.QueryRow(ctx, query, id))
}

// Update сохраняет результат попытки.
//
// Финальная доставка (SUCCESS, FAILED) не изменяется: возвращается ErrInvalidState.
func (r *DeliveryRepo) Update(ctx context.Context, d *domain.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $2, attempt_number = $3, signature = $4, response_code = $5,
		    last_error = $6, next_retry_at = $7, updated_at = $8
		WHERE id = $1 AND status NOT IN ('SUCCESS', 'FAILED')
	`
	result, err := r.pool.Exec(ctx, query,
		d.ID,
		d.Status,
		d.AttemptNumber,
		nullString(d.Signature),
		d.ResponseCode,
		nullString(d.LastError),
		d.NextRetryAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ListByWebhook возвращает последние доставки подписки.
func (r *DeliveryRepo) ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int) ([]domain.WebhookDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDelivery(row pgx.Row) (*domain.WebhookDelivery, error) {
	var d domain.WebhookDelivery
	var signature, lastError *string

	err := row.Scan(
		&d.ID,
		&d.WebhookID,
		&d.Event,
		&d.Payload,
		&d.URL,
		&d.Status,
		&d.AttemptNumber,
		&d.MaxAttempts,
		&signature,
		&d.ResponseCode,
		&lastError,
		&d.NextRetryAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	d.Signature = fromNullString(signature)
	d.LastError = fromNullString(lastError)
	return &d, nil
}
