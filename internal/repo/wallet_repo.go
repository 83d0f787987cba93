package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Swarm/internal/domain"
)

// WalletRepo — репозиторий кошельков.
type WalletRepo struct {
	pool *pgxpool.Pool
}

// NewWalletRepo создаёт новый WalletRepo.
func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, user_id, campaign_id, address, sealed_key, active, label, created_at`

// Create сохраняет кошелёк. Повтор адреса — ErrAlreadyExists.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		w.ID,
		w.UserID,
		w.CampaignID,
		w.Address,
		w.SealedKey,
		w.Active,
		nullString(w.Label),
		w.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// CreateBatch сохраняет кошельки в одной транзакции.
func (r *WalletRepo) CreateBatch(ctx context.Context, wallets []domain.Wallet) error {
	if len(wallets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, w := range wallets {
		batch.Queue(`
			INSERT INTO wallets (`+walletColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (address) DO NOTHING
		`, w.ID, w.UserID, w.CampaignID, w.Address, w.SealedKey, w.Active, nullString(w.Label), w.CreatedAt)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert wallets: %w", err)
	}
	return tx.Commit(ctx)
}

// GetByID возвращает кошелёк по ID.
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, id))
}

// ListActiveByCampaign возвращает активные кошельки кампании.
func (r *WalletRepo) ListActiveByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Wallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE campaign_id = $1 AND active
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var out []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	var label *string

	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.CampaignID,
		&w.Address,
		&w.SealedKey,
		&w.Active,
		&label,
		&w.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	w.Label = fromNullString(label)
	return &w, nil
}
