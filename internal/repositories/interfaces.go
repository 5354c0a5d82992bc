package repositories

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/fieldsync/internal/models"
)

// EntityStore is the per-entity-type document store consumed by the sync
// engine. Implementations must be tenant-scoped on every operation and must
// guarantee atomic single-document writes; the engine does not wrap
// resolve+write sequences in a transaction.
type EntityStore interface {
	FindOne(ctx context.Context, tenantID, id string) (*models.EntityRecord, error)
	Create(ctx context.Context, rec *models.EntityRecord) error
	// UpdateFields applies a partial document update ($set semantics: only the
	// given fields are replaced) and stamps updated_at. The write lands only if
	// expectedVersion still matches the row; otherwise ErrVersionConflict.
	UpdateFields(ctx context.Context, tenantID, id string, fields map[string]interface{}, expectedVersion int64) (*models.EntityRecord, error)
	// Delete tombstones the record so the deletion propagates through pull.
	Delete(ctx context.Context, tenantID, id string) error
	// FindUpdatedSince returns records with updated_at strictly after since
	// (nil since = everything), ordered by (updated_at, id) ascending.
	// Tombstones are included.
	FindUpdatedSince(ctx context.Context, tenantID string, since *time.Time) ([]*models.EntityRecord, error)
}

// StoreRegistry maps entity-type names to their stores. Lookups for unknown
// names return nil; the processor treats that as a skippable action.
type StoreRegistry map[models.Entity]EntityStore

// Store returns the store registered for an entity type, or nil.
func (r StoreRegistry) Store(entityType models.Entity) EntityStore {
	return r[entityType]
}

// Entities returns the registered entity-type names in sorted order so
// iteration over the registry is deterministic.
func (r StoreRegistry) Entities() []models.Entity {
	names := make([]models.Entity, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AuditEntry is one structured record handed to the audit sink.
type AuditEntry struct {
	TenantID   string
	UserID     string
	EntityType models.Entity
	EntityID   string
	Operation  models.Operation
	Payload    map[string]interface{}
}

// AuditLogWriter is the audit sink consumed by the offline action processor.
type AuditLogWriter interface {
	Write(ctx context.Context, entry *AuditEntry) error
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*models.User, error)
}

type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error)
	TouchLastSeen(ctx context.Context, id uuid.UUID) error
	Revoke(ctx context.Context, id uuid.UUID) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) error
}

// CursorRepository checkpoints the cursors served to each device on pull so a
// reinstalled client can resume without a full initial sync.
type CursorRepository interface {
	SaveCursors(ctx context.Context, tenantID, deviceID string, cursors map[models.Entity]time.Time) error
	GetCursors(ctx context.Context, tenantID, deviceID string) (map[models.Entity]time.Time, error)
}
