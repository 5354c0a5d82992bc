package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
)

// casRetries bounds how often one action is re-resolved after losing the
// version check to a concurrent push session.
const casRetries = 3

// PushResult is the outcome of one push batch.
type PushResult struct {
	Processed []string                    `json:"processed"`
	Conflicts []models.ResolutionMetadata `json:"conflicts"`
}

// OfflineActionProcessor replays a batch of client-queued mutations against
// the current server state, resolving conflicts as it goes. Actions are
// applied strictly in array order so multiple actions touching the same
// entity within one batch produce deterministic outcomes.
type OfflineActionProcessor struct {
	registry repositories.StoreRegistry
	audit    repositories.AuditLogWriter
	logger   *slog.Logger
}

func NewOfflineActionProcessor(registry repositories.StoreRegistry, audit repositories.AuditLogWriter, logger *slog.Logger) *OfflineActionProcessor {
	return &OfflineActionProcessor{
		registry: registry,
		audit:    audit,
		logger:   logger,
	}
}

// Apply processes the batch. Malformed actions (unknown entity type, missing
// target id, invalid payload) are skipped; store-level errors abort the
// remaining batch and bubble to the caller. There is no replay dedup: pushing
// the same create twice fails on the store's uniqueness constraint (known
// gap, see DESIGN.md).
func (p *OfflineActionProcessor) Apply(ctx context.Context, actions []models.OfflineAction) (*PushResult, error) {
	// Each session owns its log; nothing here is shared across requests.
	log := NewConflictLog()
	processed := []string{}

	for i := range actions {
		action := &actions[i]

		store := p.registry.Store(action.EntityType)
		if store == nil {
			// Forward compatibility: newer clients may queue types this server
			// does not track yet.
			p.logger.Warn("skipping action for unknown entity type",
				"entity_type", action.EntityType, "operation", action.Operation)
			continue
		}

		if action.Operation != models.OpDelete {
			if err := models.ValidatePayload(action.EntityType, action.Payload); err != nil {
				p.logger.Warn("skipping action with invalid payload",
					"entity_type", action.EntityType, "entity_id", action.EntityID, "error", err)
				continue
			}
		}

		switch action.Operation {
		case models.OpCreate:
			id, err := p.create(ctx, store, action)
			if err != nil {
				return nil, err
			}
			processed = append(processed, id)

		case models.OpUpdate, models.OpDelete:
			if action.EntityID == "" {
				p.logger.Warn("skipping action without entity id",
					"entity_type", action.EntityType, "operation", action.Operation)
				continue
			}
			id, touched, err := p.applyToExisting(ctx, store, action, log)
			if err != nil {
				return nil, err
			}
			if touched {
				processed = append(processed, id)
			}

		default:
			p.logger.Warn("skipping action with unknown operation",
				"entity_type", action.EntityType, "operation", action.Operation)
		}
	}

	return &PushResult{Processed: processed, Conflicts: log.All()}, nil
}

// create inserts unconditionally with the client-supplied id when present.
// Duplicate ids fail on the store's uniqueness constraint and propagate.
func (p *OfflineActionProcessor) create(ctx context.Context, store repositories.EntityStore, action *models.OfflineAction) (string, error) {
	id := action.EntityID
	if id == "" {
		id = uuid.NewString()
	}

	rec := &models.EntityRecord{
		ID:       id,
		TenantID: action.TenantID,
		Doc:      buildDoc(action),
	}
	if err := store.Create(ctx, rec); err != nil {
		return "", err
	}

	p.writeAudit(ctx, action, id)
	return id, nil
}

// applyToExisting handles update and delete actions. Returns the touched id
// and whether a write (or client-winning delete) actually happened.
func (p *OfflineActionProcessor) applyToExisting(ctx context.Context, store repositories.EntityStore, action *models.OfflineAction, log *ConflictLog) (string, bool, error) {
	for attempt := 0; ; attempt++ {
		existing, err := store.FindOne(ctx, action.TenantID, action.EntityID)
		if errors.Is(err, repositories.ErrNotFound) {
			if action.Operation == models.OpDelete {
				// Nothing to delete.
				return "", false, nil
			}
			// Recovery create: the record the client updated no longer exists
			// server-side, so the client's update becomes the canonical record.
			// Availability over strict consistency.
			id, err := p.create(ctx, store, action)
			if err != nil {
				return "", false, err
			}
			return id, true, nil
		}
		if err != nil {
			return "", false, err
		}

		res := ResolveConflict(ResolveInput{
			Existing:        existing,
			Incoming:        action.Payload,
			EntityType:      action.EntityType,
			EntityID:        action.EntityID,
			ClientTimestamp: action.ClientTimestamp,
			ClientVector:    action.ClientVector,
			ClientID:        action.ClientID,
			FieldTimestamps: action.FieldTimestamps,
		})

		if action.Operation == models.OpDelete {
			if res.RecordWinner != models.WinnerClient {
				log.Add(res.Metadata)
				return "", false, nil
			}
			err := store.Delete(ctx, action.TenantID, action.EntityID)
			if err != nil && !errors.Is(err, repositories.ErrNotFound) {
				return "", false, err
			}
			meta := res.Metadata
			meta.ResolvedWith = models.WinnerClient
			meta.AppliedFields = append(meta.AppliedFields, "delete")
			log.Add(meta)
			return action.EntityID, true, nil
		}

		if !res.ApplyChange {
			log.Add(res.Metadata)
			return "", false, nil
		}

		_, err = store.UpdateFields(ctx, action.TenantID, action.EntityID, res.Patch, existing.Version)
		if errors.Is(err, repositories.ErrVersionConflict) {
			// A concurrent session won the compare-and-swap. Re-fetch and
			// re-resolve against the state it left behind.
			if attempt < casRetries {
				p.logger.Debug("version conflict, retrying resolution",
					"entity_type", action.EntityType, "entity_id", action.EntityID, "attempt", attempt+1)
				continue
			}
			return "", false, fmt.Errorf("giving up after %d version conflicts on %s/%s: %w",
				casRetries, action.EntityType, action.EntityID, err)
		}
		if err != nil {
			return "", false, err
		}

		log.Add(res.Metadata)
		return action.EntityID, true, nil
	}
}

func buildDoc(action *models.OfflineAction) map[string]interface{} {
	doc := make(map[string]interface{}, len(action.Payload)+1)
	for k, v := range action.Payload {
		doc[k] = v
	}
	if len(action.ClientVector) > 0 {
		doc[models.DocFieldSyncVector] = action.ClientVector
	}
	return doc
}

// writeAudit records the raw action alongside the create. Audit failure does
// not fail the batch.
func (p *OfflineActionProcessor) writeAudit(ctx context.Context, action *models.OfflineAction, entityID string) {
	err := p.audit.Write(ctx, &repositories.AuditEntry{
		TenantID:   action.TenantID,
		UserID:     action.UserID,
		EntityType: action.EntityType,
		EntityID:   entityID,
		Operation:  action.Operation,
		Payload:    action.Payload,
	})
	if err != nil {
		p.logger.Warn("failed to write audit entry",
			"entity_type", action.EntityType, "entity_id", entityID, "error", err)
	}
}
