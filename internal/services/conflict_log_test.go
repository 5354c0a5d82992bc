package services

import (
	"testing"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictLog_AppendOrderAndIndex(t *testing.T) {
	log := NewConflictLog()

	log.Add(models.ResolutionMetadata{EntityType: models.EntityWorkOrders, EntityID: "wo-1", ResolvedWith: models.WinnerServer})
	log.Add(models.ResolutionMetadata{EntityType: models.EntityAssets, EntityID: "as-1", ResolvedWith: models.WinnerClient})
	log.Add(models.ResolutionMetadata{EntityType: models.EntityWorkOrders, EntityID: "wo-1", ResolvedWith: models.WinnerMixed})

	all := log.All()
	require.Len(t, all, 3)
	assert.Equal(t, 3, log.Len())
	assert.Equal(t, "wo-1", all[0].EntityID)
	assert.Equal(t, "as-1", all[1].EntityID)

	byEntity := log.ByEntity(models.EntityWorkOrders, "wo-1")
	require.Len(t, byEntity, 2)
	assert.Equal(t, models.WinnerServer, byEntity[0].ResolvedWith)
	assert.Equal(t, models.WinnerMixed, byEntity[1].ResolvedWith)

	assert.Empty(t, log.ByEntity(models.EntityPMs, "pm-1"))
}

func TestConflictLog_AllReturnsCopy(t *testing.T) {
	log := NewConflictLog()
	log.Add(models.ResolutionMetadata{EntityType: models.EntityWorkOrders, EntityID: "wo-1"})

	all := log.All()
	all[0].EntityID = "mutated"

	assert.Equal(t, "wo-1", log.All()[0].EntityID, "callers must not be able to mutate the log")
}
