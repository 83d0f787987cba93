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

// CampaignRepo — репозиторий кампаний.
type CampaignRepo struct {
	pool *pgxpool.Pool
}

// NewCampaignRepo создаёт новый CampaignRepo.
func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

const campaignColumns = `id, user_id, name, token_mint, status, params, created_at, updated_at`

// Create создаёт кампанию.
func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	params, err := jsonb(c.Params)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		c.ID,
		c.UserID,
		c.Name,
		c.TokenMint,
		c.Status,
		params,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetByID возвращает кампанию по ID.
func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	return scanCampaign(r.pool.QueryRow(ctx, query, id))
}

// List возвращает кампании пользователя (uuid.Nil — все).
func (r *CampaignRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE ($1::uuid IS NULL OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, nullUUID(userID), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// TransitionStatus меняет статус кампании с from на to.
//
// Обновление условное: если текущий статус уже не from, возвращается
// ErrInvalidState и запись не меняется.
func (r *CampaignRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.CampaignStatus) error {
	query := `
		UPDATE campaigns
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`
	result, err := r.pool.Exec(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidState
	}
	return nil
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	var params []byte

	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Name,
		&c.TokenMint,
		&c.Status,
		&params,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan campaign: %w", err)
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &c.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	return &c, nil
}
