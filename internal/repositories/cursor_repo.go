package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	cursorKeyPrefix = "cursors:"
	// Checkpoints are a convenience cache, not the source of truth (the client
	// owns its cursors), so they may expire.
	cursorTTL = 30 * 24 * time.Hour
)

// RedisCursorRepository keeps the last cursors served to each device as a
// Redis hash keyed by (tenant, device), one field per entity type.
type RedisCursorRepository struct {
	client *redis.Client
}

func NewRedisCursorRepository(client *redis.Client) *RedisCursorRepository {
	return &RedisCursorRepository{client: client}
}

func (r *RedisCursorRepository) SaveCursors(ctx context.Context, tenantID, deviceID string, cursors map[models.Entity]time.Time) error {
	if len(cursors) == 0 {
		return nil
	}

	key := cursorKey(tenantID, deviceID)
	fields := make(map[string]interface{}, len(cursors))
	for entity, cursor := range cursors {
		fields[entity] = cursor.UTC().Format(time.RFC3339Nano)
	}

	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to save cursors: %w", err)
	}
	if err := r.client.Expire(ctx, key, cursorTTL).Err(); err != nil {
		return fmt.Errorf("failed to set cursor TTL: %w", err)
	}
	return nil
}

func (r *RedisCursorRepository) GetCursors(ctx context.Context, tenantID, deviceID string) (map[models.Entity]time.Time, error) {
	values, err := r.client.HGetAll(ctx, cursorKey(tenantID, deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cursors: %w", err)
	}

	cursors := make(map[models.Entity]time.Time, len(values))
	for entity, raw := range values {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			// A corrupt field just means the device does a full sync for that type.
			continue
		}
		cursors[entity] = ts
	}
	return cursors, nil
}

func cursorKey(tenantID, deviceID string) string {
	return cursorKeyPrefix + tenantID + ":" + deviceID
}
