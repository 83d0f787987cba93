package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Swarm/internal/domain"
)

// JobRepo — репозиторий таблицы jobs.
//
// Реализует worker.JobRecorder: пул воркеров пишет сюда каждый переход
// статуса job, агрегатор читает счётчики.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// Upsert создаёт или обновляет запись о job.
func (r *JobRepo) Upsert(ctx context.Context, rec *domain.JobRecord) error {
	query := `
		INSERT INTO jobs (id, queue, type, campaign_id, run_id, status, attempts, progress, error, result, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    attempts = EXCLUDED.attempts,
		    progress = GREATEST(jobs.progress, EXCLUDED.progress),
		    error = EXCLUDED.error,
		    result = COALESCE(EXCLUDED.result, jobs.result),
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Queue,
		rec.Type,
		nullUUID(rec.CampaignID),
		nullUUID(rec.RunID),
		rec.Status,
		rec.Attempts,
		rec.Progress,
		nullString(rec.Error),
		rawJSON(rec.Result),
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// Progress сохраняет прогресс выполнения.
func (r *JobRepo) Progress(ctx context.Context, jobID string, percent int, message string) error {
	query := `
		UPDATE jobs
		SET progress = $2, progress_message = $3, updated_at = $4
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, jobID, percent, nullString(message), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// GetByID возвращает запись о job.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	query := `
		SELECT id, queue, type, campaign_id, run_id, status, attempts, progress, error, result, updated_at
		FROM jobs
		WHERE id = $1
	`
	var rec domain.JobRecord
	var campaignID, runID *uuid.UUID
	var errMsg *string

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.Queue,
		&rec.Type,
		&campaignID,
		&runID,
		&rec.Status,
		&rec.Attempts,
		&rec.Progress,
		&errMsg,
		&rec.Result,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	rec.CampaignID = fromNullUUID(campaignID)
	rec.RunID = fromNullUUID(runID)
	rec.Error = fromNullString(errMsg)
	return &rec, nil
}

// CountByRun возвращает количество jobs run по очередям и статусам.
func (r *JobRepo) CountByRun(ctx context.Context, runID uuid.UUID) ([]domain.JobCount, error) {
	query := `
		SELECT queue, status, COUNT(*)
		FROM jobs
		WHERE run_id = $1
		GROUP BY queue, status
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.JobCount
	for rows.Next() {
		var c domain.JobCount
		if err := rows.Scan(&c.Queue, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
