package models

import "time"

// Winner identifies which side of a conflict survived.
type Winner string

const (
	WinnerServer Winner = "server"
	WinnerClient Winner = "client"
	WinnerMixed  Winner = "mixed"
)

// ChecklistChange describes what happened to a single checklist item during a
// merge.
type ChecklistChange string

const (
	ChecklistAdded     ChecklistChange = "added"
	ChecklistUpdated   ChecklistChange = "updated"
	ChecklistDeleted   ChecklistChange = "deleted"
	ChecklistUnchanged ChecklistChange = "unchanged"
)

// ChecklistResolution records the per-item outcome of a checklist merge.
type ChecklistResolution struct {
	ItemID       string          `json:"itemId"`
	ResolvedWith Winner          `json:"resolvedWith"`
	Change       ChecklistChange `json:"change"`
}

// ResolutionMetadata is the immutable record of one conflict resolution,
// produced once per resolved record and appended to the session's conflict
// log. It captures enough of both sides' inputs to audit the decision later.
type ResolutionMetadata struct {
	EntityType           Entity                `json:"entityType"`
	EntityID             string                `json:"entityId"`
	ResolvedWith         Winner                `json:"resolvedWith"`
	ServerTimestamp      *time.Time            `json:"serverTimestamp,omitempty"`
	ClientTimestamp      *time.Time            `json:"clientTimestamp,omitempty"`
	ServerVector         VectorClock           `json:"serverVector,omitempty"`
	ClientVector         VectorClock           `json:"clientVector,omitempty"`
	ClientID             string                `json:"clientId,omitempty"`
	AppliedFields        []string              `json:"appliedFields"`
	DiscardedFields      []string              `json:"discardedFields"`
	FieldResolutions     map[string]Winner     `json:"fieldResolutions,omitempty"`
	ChecklistResolutions []ChecklistResolution `json:"checklistResolutions,omitempty"`
}
