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

// SettingsRepo — пользовательские настройки исполнения.
type SettingsRepo struct {
	pool *pgxpool.Pool
}

// NewSettingsRepo создаёт новый SettingsRepo.
func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

// Get возвращает настройки пользователя или nil, если они не заданы.
func (r *SettingsRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error) {
	query := `
		SELECT user_id, use_relay, relay_key, relay_endpoint, tip_lamports, bundle_timeout_ms
		FROM user_settings
		WHERE user_id = $1
	`
	var s domain.UserSettings
	var relayKey, relayEndpoint *string
	var tip, timeout *int64

	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.UseRelay,
		&relayKey,
		&relayEndpoint,
		&tip,
		&timeout,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user settings: %w", err)
	}

	s.RelayKey = fromNullString(relayKey)
	s.RelayEndpoint = fromNullString(relayEndpoint)
	if tip != nil && *tip > 0 {
		s.TipLamports = uint64(*tip)
	}
	if timeout != nil {
		s.BundleTimeoutMs = *timeout
	}
	return &s, nil
}
