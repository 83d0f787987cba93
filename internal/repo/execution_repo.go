package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Swarm/internal/domain"
)

// ExecutionRepo — append-only журнал попыток расчёта.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// Insert добавляет запись.
//
// Для одного idempotency_key допускается одна запись с tx_signature
// (частичный уникальный индекс). Дубликат не вставляется: inserted == false.
func (r *ExecutionRepo) Insert(ctx context.Context, e *domain.Execution) (inserted bool, err error) {
	query := `
		INSERT INTO executions (id, job_id, run_id, idempotency_key, tx_signature, latency_ms, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) WHERE tx_signature IS NOT NULL DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		e.ID,
		e.JobID,
		nullUUID(e.RunID),
		e.IdempotencyKey,
		e.TxSignature,
		e.LatencyMs,
		rawJSON(e.Result),
		e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert execution: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ListByJob возвращает записи job в порядке создания.
func (r *ExecutionRepo) ListByJob(ctx context.Context, jobID string) ([]domain.Execution, error) {
	query := `
		SELECT id, job_id, run_id, idempotency_key, tx_signature, latency_ms, result, created_at
		FROM executions
		WHERE job_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.Execution
	for rows.Next() {
		var e domain.Execution
		var runID *uuid.UUID
		if err := rows.Scan(&e.ID, &e.JobID, &runID, &e.IdempotencyKey, &e.TxSignature, &e.LatencyMs, &e.Result, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.RunID = fromNullUUID(runID)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MeanLatency возвращает среднюю задержку расчёта по run.
func (r *ExecutionRepo) MeanLatency(ctx context.Context, runID uuid.UUID) (float64, error) {
	var mean float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(latency_ms), 0)::float8 FROM executions WHERE run_id = $1`,
		runID,
	).Scan(&mean)
	if err != nil {
		return 0, fmt.Errorf("mean latency: %w", err)
	}
	return mean, nil
}
