package models

import "time"

// EntityRecord is a tenant-scoped document of one entity type (work order,
// asset, preventive maintenance). Domain fields live in Doc; identity,
// versioning and sync bookkeeping are columns. Version is the optimistic
// concurrency token: a partial update only lands if the caller's version
// still matches the row.
type EntityRecord struct {
	ID        string                 `json:"id"`
	TenantID  string                 `json:"tenantId"`
	Doc       map[string]interface{} `json:"doc"`
	Version   int64                  `json:"version"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	DeletedAt *time.Time             `json:"deletedAt,omitempty"`
}

// Deleted reports whether the record is a tombstone. Tombstones stay visible
// to the delta pull so disconnected clients learn about deletions.
func (r *EntityRecord) Deleted() bool {
	return r.DeletedAt != nil
}

// SyncVector returns the record's stored vector clock, or nil if the record
// has never been written through the sync path.
func (r *EntityRecord) SyncVector() VectorClock {
	if r.Doc == nil {
		return nil
	}
	return ClockFromValue(r.Doc[DocFieldSyncVector])
}

// DocFieldSyncVector is the document key holding the record's vector clock.
const DocFieldSyncVector = "syncVector"

// Flatten renders the record the way the mobile client consumes it: domain
// fields plus identity and sync metadata in one object.
func (r *EntityRecord) Flatten() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Doc)+5)
	for k, v := range r.Doc {
		out[k] = v
	}
	out["id"] = r.ID
	out["version"] = r.Version
	out["createdAt"] = r.CreatedAt
	out["updatedAt"] = r.UpdatedAt
	if r.DeletedAt != nil {
		out["deleted"] = true
	}
	return out
}
