package services

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
)

// DeltaResult carries, per entity type, the records changed since the
// client's cursor plus the advanced cursors. Every tracked entity type has a
// cursor entry even when its record set is empty (the prior cursor is echoed,
// nil meaning the client has never synced that type).
type DeltaResult struct {
	Records map[models.Entity][]map[string]interface{}
	Cursors map[models.Entity]*time.Time
}

// DeltaFetcher produces pull responses. Read-only and idempotent: pulling
// twice with the cursors from the first pull yields an empty second result.
type DeltaFetcher struct {
	registry repositories.StoreRegistry
	logger   *slog.Logger
}

func NewDeltaFetcher(registry repositories.StoreRegistry, logger *slog.Logger) *DeltaFetcher {
	return &DeltaFetcher{registry: registry, logger: logger}
}

// FetchDeltas queries every tracked entity type for records with updated_at
// strictly after the supplied cursor (absent cursor = full initial sync). The
// types are independent, so they are fetched concurrently; each goroutine
// writes only its own slot.
func (f *DeltaFetcher) FetchDeltas(ctx context.Context, tenantID string, lastSync map[models.Entity]*time.Time) (*DeltaResult, error) {
	entities := f.registry.Entities()

	type slot struct {
		records []map[string]interface{}
		cursor  *time.Time
	}
	slots := make([]slot, len(entities))

	g, ctx := errgroup.WithContext(ctx)
	for i, entity := range entities {
		g.Go(func() error {
			since := lastSync[entity]
			records, err := f.registry.Store(entity).FindUpdatedSince(ctx, tenantID, since)
			if err != nil {
				return err
			}

			flattened := make([]map[string]interface{}, 0, len(records))
			for _, rec := range records {
				flattened = append(flattened, rec.Flatten())
			}

			// New cursor = updated_at of the last record; the cursor never
			// regresses, so an empty result echoes the prior cursor.
			cursor := since
			if len(records) > 0 {
				last := records[len(records)-1].UpdatedAt
				if cursor == nil || last.After(*cursor) {
					cursor = &last
				}
			}

			slots[i] = slot{records: flattened, cursor: cursor}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &DeltaResult{
		Records: make(map[models.Entity][]map[string]interface{}, len(entities)),
		Cursors: make(map[models.Entity]*time.Time, len(entities)),
	}
	for i, entity := range entities {
		result.Records[entity] = slots[i].records
		result.Cursors[entity] = slots[i].cursor
	}

	f.logger.Debug("fetched deltas", "tenant_id", tenantID, "entities", len(entities))
	return result, nil
}
