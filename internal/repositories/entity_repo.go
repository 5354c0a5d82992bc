package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/fieldsync/internal/models"
)

var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when optimistic locking fails: the record was
// modified by another sync session between read and write.
var ErrVersionConflict = errors.New("version conflict: record was modified by another client")

// ErrDuplicateID is returned when a create collides with an existing id.
// The processor propagates it unhandled (documented gap, see DESIGN.md).
var ErrDuplicateID = errors.New("duplicate id")

const uniqueViolationCode = "23505"

// PostgresEntityStore stores one entity type as a JSONB document table with
// identity, version and timestamp columns. One instance per table; the set of
// instances forms the StoreRegistry.
type PostgresEntityStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresEntityStore(pool *pgxpool.Pool, table string) *PostgresEntityStore {
	return &PostgresEntityStore{pool: pool, table: table}
}

// NewPostgresRegistry wires the three tracked entity types to their tables.
func NewPostgresRegistry(pool *pgxpool.Pool) StoreRegistry {
	return StoreRegistry{
		models.EntityWorkOrders: NewPostgresEntityStore(pool, "work_orders"),
		models.EntityAssets:     NewPostgresEntityStore(pool, "assets"),
		models.EntityPMs:        NewPostgresEntityStore(pool, "preventive_maintenances"),
	}
}

func (s *PostgresEntityStore) FindOne(ctx context.Context, tenantID, id string) (*models.EntityRecord, error) {
	query := fmt.Sprintf(`SELECT id, tenant_id, doc, version, created_at, updated_at, deleted_at
	          FROM %s
	          WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, s.table)

	rec, err := s.scanOne(s.pool.QueryRow(ctx, query, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record: %w", s.table, err)
	}
	return rec, nil
}

func (s *PostgresEntityStore) Create(ctx context.Context, rec *models.EntityRecord) error {
	doc, err := json.Marshal(rec.Doc)
	if err != nil {
		return fmt.Errorf("failed to marshal doc: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, tenant_id, doc, version)
	          VALUES ($1, $2, $3, 1)
	          RETURNING version, created_at, updated_at`, s.table)

	err = s.pool.QueryRow(ctx, query, rec.ID, rec.TenantID, doc).
		Scan(&rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("%w: %s %q", ErrDuplicateID, s.table, rec.ID)
		}
		return fmt.Errorf("failed to create %s record: %w", s.table, err)
	}
	return nil
}

func (s *PostgresEntityStore) UpdateFields(ctx context.Context, tenantID, id string, fields map[string]interface{}, expectedVersion int64) (*models.EntityRecord, error) {
	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}

	// doc || patch merges top-level keys only: fields untouched by either side
	// keep their stored values. The version check in the WHERE clause is the
	// compare-and-swap guarding against concurrent push sessions.
	query := fmt.Sprintf(`UPDATE %s
	          SET doc = doc || $3::jsonb,
	              version = version + 1,
	              updated_at = NOW()
	          WHERE id = $1 AND tenant_id = $2 AND version = $4 AND deleted_at IS NULL
	          RETURNING id, tenant_id, doc, version, created_at, updated_at, deleted_at`, s.table)

	rec, err := s.scanOne(s.pool.QueryRow(ctx, query, id, tenantID, patch, expectedVersion))
	if errors.Is(err, pgx.ErrNoRows) {
		// No rows updated: either the version moved or the record vanished.
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s record: %w", s.table, err)
	}
	return rec, nil
}

func (s *PostgresEntityStore) Delete(ctx context.Context, tenantID, id string) error {
	// Tombstone rather than hard delete: updated_at is bumped so the deletion
	// reaches other devices through the delta pull.
	query := fmt.Sprintf(`UPDATE %s
	          SET deleted_at = NOW(),
	              version = version + 1,
	              updated_at = NOW()
	          WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, s.table)

	result, err := s.pool.Exec(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete %s record: %w", s.table, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresEntityStore) FindUpdatedSince(ctx context.Context, tenantID string, since *time.Time) ([]*models.EntityRecord, error) {
	// The secondary id sort keeps ordering stable when several records share
	// an updated_at, so a cursor landing on a shared timestamp cannot skip or
	// re-deliver records.
	query := fmt.Sprintf(`SELECT id, tenant_id, doc, version, created_at, updated_at, deleted_at
	          FROM %s
	          WHERE tenant_id = $1 AND ($2::timestamptz IS NULL OR updated_at > $2)
	          ORDER BY updated_at ASC, id ASC`, s.table)

	rows, err := s.pool.Query(ctx, query, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s deltas: %w", s.table, err)
	}
	defer rows.Close()

	var records []*models.EntityRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", s.table, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s deltas: %w", s.table, err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresEntityStore) scanOne(row pgx.Row) (*models.EntityRecord, error) {
	return s.scanRecord(row)
}

func (s *PostgresEntityStore) scanRecord(row rowScanner) (*models.EntityRecord, error) {
	var rec models.EntityRecord
	var doc []byte
	err := row.Scan(&rec.ID, &rec.TenantID, &doc, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt, &rec.DeletedAt)
	if err != nil {
		return nil, err
	}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &rec.Doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal doc: %w", err)
		}
	}
	return &rec, nil
}
