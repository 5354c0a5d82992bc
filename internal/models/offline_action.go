package models

import "time"

// Operation is the mutation kind carried by an offline action.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Entity type names understood by the sync engine. Unknown names in a push
// batch are skipped, so newer clients can ship new types without breaking
// older servers.
const (
	EntityWorkOrders Entity = "workOrders"
	EntityAssets     Entity = "assets"
	EntityPMs        Entity = "pms"
)

// Entity is an entity-type name used to key the store registry.
type Entity = string

// OfflineAction is one client-queued mutation, created while the device was
// disconnected and replayed on push. Immutable once queued. TenantID and
// UserID are overwritten server-side from the authenticated context; the
// client-sent values are never trusted.
type OfflineAction struct {
	EntityType      Entity                 `json:"entityType"`
	EntityID        string                 `json:"entityId,omitempty"`
	Operation       Operation              `json:"operation"`
	Payload         map[string]interface{} `json:"payload"`
	ClientTimestamp *time.Time             `json:"clientTimestamp,omitempty"`
	ClientVector    VectorClock            `json:"clientVector,omitempty"`
	FieldTimestamps map[string]time.Time   `json:"fieldTimestamps,omitempty"`
	ClientID        string                 `json:"clientId"`
	TenantID        string                 `json:"tenantId"`
	UserID          string                 `json:"userId"`
}
