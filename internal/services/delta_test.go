package services

import (
	"context"
	"testing"
	"time"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(stores map[models.Entity]*memStore) *DeltaFetcher {
	registry := repositories.StoreRegistry{}
	for entity, store := range stores {
		registry[entity] = store
	}
	return NewDeltaFetcher(registry, testLogger())
}

func TestDeltaFetcher_InitialSyncReturnsEverything(t *testing.T) {
	workOrders := newMemStore()
	workOrders.seed(&models.EntityRecord{ID: "wo-1", TenantID: "t1", Doc: map[string]interface{}{"title": "a"}, UpdatedAt: ts(10)})
	workOrders.seed(&models.EntityRecord{ID: "wo-2", TenantID: "t1", Doc: map[string]interface{}{"title": "b"}, UpdatedAt: ts(20)})
	assets := newMemStore()
	assets.seed(&models.EntityRecord{ID: "as-1", TenantID: "t1", Doc: map[string]interface{}{"name": "pump"}, UpdatedAt: ts(15)})

	fetcher := newTestFetcher(map[models.Entity]*memStore{
		models.EntityWorkOrders: workOrders,
		models.EntityAssets:     assets,
	})

	result, err := fetcher.FetchDeltas(context.Background(), "t1", nil)

	require.NoError(t, err)
	require.Len(t, result.Records[models.EntityWorkOrders], 2)
	require.Len(t, result.Records[models.EntityAssets], 1)
	assert.Equal(t, "wo-1", result.Records[models.EntityWorkOrders][0]["id"])
	assert.Equal(t, ts(20), *result.Cursors[models.EntityWorkOrders])
	assert.Equal(t, ts(15), *result.Cursors[models.EntityAssets])
}

func TestDeltaFetcher_SecondPullWithReturnedCursorsIsEmpty(t *testing.T) {
	store := newMemStore()
	store.seed(&models.EntityRecord{ID: "wo-1", TenantID: "t1", Doc: map[string]interface{}{"title": "a"}, UpdatedAt: ts(10)})
	fetcher := newTestFetcher(map[models.Entity]*memStore{models.EntityWorkOrders: store})

	first, err := fetcher.FetchDeltas(context.Background(), "t1", nil)
	require.NoError(t, err)
	require.Len(t, first.Records[models.EntityWorkOrders], 1)

	second, err := fetcher.FetchDeltas(context.Background(), "t1", first.Cursors)
	require.NoError(t, err)
	assert.Empty(t, second.Records[models.EntityWorkOrders])
	assert.Equal(t, first.Cursors[models.EntityWorkOrders], second.Cursors[models.EntityWorkOrders],
		"an empty pull echoes the cursor instead of regressing it")
}

func TestDeltaFetcher_CursorIsStrictLowerBound(t *testing.T) {
	store := newMemStore()
	store.seed(&models.EntityRecord{ID: "wo-old", TenantID: "t1", Doc: map[string]interface{}{"title": "old"}, UpdatedAt: ts(10)})
	store.seed(&models.EntityRecord{ID: "wo-edge", TenantID: "t1", Doc: map[string]interface{}{"title": "edge"}, UpdatedAt: ts(20)})
	store.seed(&models.EntityRecord{ID: "wo-new", TenantID: "t1", Doc: map[string]interface{}{"title": "new"}, UpdatedAt: ts(30)})
	fetcher := newTestFetcher(map[models.Entity]*memStore{models.EntityWorkOrders: store})

	result, err := fetcher.FetchDeltas(context.Background(), "t1", map[models.Entity]*time.Time{
		models.EntityWorkOrders: tsp(20),
	})

	require.NoError(t, err)
	records := result.Records[models.EntityWorkOrders]
	require.Len(t, records, 1, "records at exactly the cursor were delivered by the previous pull")
	assert.Equal(t, "wo-new", records[0]["id"])
}

func TestDeltaFetcher_EqualTimestampsOrderedByID(t *testing.T) {
	store := newMemStore()
	store.seed(&models.EntityRecord{ID: "wo-b", TenantID: "t1", Doc: map[string]interface{}{}, UpdatedAt: ts(10)})
	store.seed(&models.EntityRecord{ID: "wo-a", TenantID: "t1", Doc: map[string]interface{}{}, UpdatedAt: ts(10)})
	fetcher := newTestFetcher(map[models.Entity]*memStore{models.EntityWorkOrders: store})

	result, err := fetcher.FetchDeltas(context.Background(), "t1", nil)

	require.NoError(t, err)
	records := result.Records[models.EntityWorkOrders]
	require.Len(t, records, 2)
	assert.Equal(t, "wo-a", records[0]["id"])
	assert.Equal(t, "wo-b", records[1]["id"])
}

func TestDeltaFetcher_TombstonesIncluded(t *testing.T) {
	store := newMemStore()
	deleted := ts(50)
	store.seed(&models.EntityRecord{
		ID: "wo-1", TenantID: "t1",
		Doc:       map[string]interface{}{"title": "gone"},
		UpdatedAt: deleted,
		DeletedAt: &deleted,
	})
	fetcher := newTestFetcher(map[models.Entity]*memStore{models.EntityWorkOrders: store})

	result, err := fetcher.FetchDeltas(context.Background(), "t1", map[models.Entity]*time.Time{
		models.EntityWorkOrders: tsp(10),
	})

	require.NoError(t, err)
	records := result.Records[models.EntityWorkOrders]
	require.Len(t, records, 1, "disconnected clients learn about deletions through the pull")
	assert.Equal(t, true, records[0]["deleted"])
}

func TestDeltaFetcher_TenantIsolation(t *testing.T) {
	store := newMemStore()
	store.seed(&models.EntityRecord{ID: "wo-1", TenantID: "t1", Doc: map[string]interface{}{}, UpdatedAt: ts(10)})
	store.seed(&models.EntityRecord{ID: "wo-2", TenantID: "t2", Doc: map[string]interface{}{}, UpdatedAt: ts(10)})
	fetcher := newTestFetcher(map[models.Entity]*memStore{models.EntityWorkOrders: store})

	result, err := fetcher.FetchDeltas(context.Background(), "t1", nil)

	require.NoError(t, err)
	records := result.Records[models.EntityWorkOrders]
	require.Len(t, records, 1)
	assert.Equal(t, "wo-1", records[0]["id"])
}
