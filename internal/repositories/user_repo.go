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

type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (tenant_id, email, password_hash, name)
              VALUES ($1, $2, $3, $4)
              RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, user.TenantID, user.Email, user.PasswordHash, user.Name).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT id, tenant_id, email, password_hash, name, created_at, updated_at, deleted_at
	          FROM users WHERE id = $1 AND deleted_at IS NULL`

	var user models.User
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&user.ID, &user.TenantID, &user.Email, &user.PasswordHash, &user.Name, &user.CreatedAt, &user.UpdatedAt, &user.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, tenantID, email string) (*models.User, error) {
	query := `SELECT id, tenant_id, email, password_hash, name, created_at, updated_at, deleted_at
	          FROM users WHERE tenant_id = $1 AND email = $2 AND deleted_at IS NULL`

	var user models.User
	err := r.pool.QueryRow(ctx, query, tenantID, email).
		Scan(&user.ID, &user.TenantID, &user.Email, &user.PasswordHash, &user.Name, &user.CreatedAt, &user.UpdatedAt, &user.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}
