package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresAuditLogWriter struct {
	pool *pgxpool.Pool
}

func NewPostgresAuditLogWriter(pool *pgxpool.Pool) *PostgresAuditLogWriter {
	return &PostgresAuditLogWriter{pool: pool}
}

func (w *PostgresAuditLogWriter) Write(ctx context.Context, entry *AuditEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	query := `INSERT INTO audit_logs (tenant_id, user_id, entity_type, entity_id, operation, payload)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = w.pool.Exec(ctx, query,
		entry.TenantID,
		entry.UserID,
		entry.EntityType,
		entry.EntityID,
		entry.Operation,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}
