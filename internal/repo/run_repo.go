package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Swarm/internal/domain"
)

// RunRepo — репозиторий campaign_runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `id, campaign_id, status, started_at, ended_at, summary`

// Create создаёт run.
//
// У кампании может быть только один нефинальный run (частичный уникальный
// индекс); повторная попытка возвращает ErrAlreadyExists.
func (r *RunRepo) Create(ctx context.Context, run *domain.CampaignRun) error {
	summary, err := jsonb(run.Summary)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO campaign_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.CampaignID,
		run.Status,
		run.StartedAt,
		run.EndedAt,
		summary,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.CampaignRun, error) {
	query := `SELECT ` + runColumns + ` FROM campaign_runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// GetActive возвращает нефинальный run кампании.
func (r *RunRepo) GetActive(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM campaign_runs
		WHERE campaign_id = $1 AND status IN ('RUNNING', 'PAUSED')
		ORDER BY started_at DESC
		LIMIT 1
	`
	return scanRun(r.pool.QueryRow(ctx, query, campaignID))
}

// ListActive возвращает все нефинальные runs.
func (r *RunRepo) ListActive(ctx context.Context) ([]domain.CampaignRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM campaign_runs
		WHERE status IN ('RUNNING', 'PAUSED')
		ORDER BY started_at ASC
	`
	return r.list(ctx, query)
}

// ListByCampaign возвращает историю runs кампании.
func (r *RunRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.CampaignRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM campaign_runs
		WHERE campaign_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, campaignID, limit)
}

// UpdateActiveStatus переводит нефинальный run кампании в status.
//
// Исторические (финальные) runs не затрагиваются. Для финального status
// проставляется ended_at. Возвращает ID обновлённого run или ErrNotFound.
func (r *RunRepo) UpdateActiveStatus(ctx context.Context, campaignID uuid.UUID, status domain.RunStatus) (uuid.UUID, error) {
	var endedAt *time.Time
	if status.IsTerminal() {
		now := time.Now().UTC()
		endedAt = &now
	}

	query := `
		UPDATE campaign_runs
		SET status = $2, ended_at = COALESCE($3, ended_at)
		WHERE campaign_id = $1 AND status IN ('RUNNING', 'PAUSED')
		RETURNING id
	`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query, campaignID, status, endedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("update run status: %w", err)
	}
	return id, nil
}

// UpdateSummary сохраняет агрегированную статистику run.
func (r *RunRepo) UpdateSummary(ctx context.Context, runID uuid.UUID, summary domain.RunSummary) error {
	b, err := jsonb(summary)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, `UPDATE campaign_runs SET summary = $2 WHERE id = $1`, runID, b)
	if err != nil {
		return fmt.Errorf("update run summary: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RunRepo) list(ctx context.Context, query string, args ...any) ([]domain.CampaignRun, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.CampaignRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*domain.CampaignRun, error) {
	var run domain.CampaignRun
	var summary []byte

	err := row.Scan(
		&run.ID,
		&run.CampaignID,
		&run.Status,
		&run.StartedAt,
		&run.EndedAt,
		&summary,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &run.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
	}
	return &run, nil
}
