package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/fieldsync/internal/models"
)

type PostgresDeviceRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresDeviceRepository(pool *pgxpool.Pool) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{pool: pool}
}

func (r *PostgresDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	query := `INSERT INTO devices (user_id, tenant_id, name, platform)
              VALUES ($1, $2, $3, $4)
              RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query, device.UserID, device.TenantID, device.Name, device.Platform).
		Scan(&device.ID, &device.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func (r *PostgresDeviceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	query := `SELECT id, user_id, tenant_id, name, platform, last_seen_at, revoked_at, created_at, updated_at
	          FROM devices WHERE id = $1`

	var device models.Device
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&device.ID, &device.UserID, &device.TenantID, &device.Name, &device.Platform,
			&device.LastSeenAt, &device.RevokedAt, &device.CreatedAt, &device.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}

// TouchLastSeen records sync activity for the device. Called on every pull and
// push so stale installations can be spotted and revoked.
func (r *PostgresDeviceRepository) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE devices SET last_seen_at = NOW(), updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresDeviceRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE devices SET revoked_at = NOW(), updated_at = NOW() WHERE id = $1 AND revoked_at IS NULL`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke device: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
