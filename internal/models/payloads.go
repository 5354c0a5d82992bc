package models

import (
	"fmt"
	"time"
)

// FieldKind constrains the JSON type a payload field may carry.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindBool
	KindTimestamp
	KindChecklist
	KindVector
)

// PayloadSchema lists the fields an entity type accepts from a mobile client,
// keyed by document field name. Fields outside the schema mark the whole
// action malformed; the processor skips it instead of failing the batch.
type PayloadSchema map[string]FieldKind

var payloadSchemas = map[Entity]PayloadSchema{
	EntityWorkOrders: {
		"title":       KindString,
		"description": KindString,
		"notes":       KindString,
		"feedback":    KindString,
		"status":      KindString,
		"priority":    KindString,
		"assetId":     KindString,
		"assignedTo":  KindString,
		"dueDate":     KindTimestamp,
		"completedAt": KindTimestamp,
		"estimatedHours": KindNumber,
		"checklist":      KindChecklist,
		DocFieldSyncVector: KindVector,
	},
	EntityAssets: {
		"name":         KindString,
		"description":  KindString,
		"notes":        KindString,
		"location":     KindString,
		"model":        KindString,
		"serialNumber": KindString,
		"status":       KindString,
		"downtime":     KindBool,
		DocFieldSyncVector: KindVector,
	},
	EntityPMs: {
		"title":       KindString,
		"description": KindString,
		"notes":       KindString,
		"assetId":     KindString,
		"frequencyDays": KindNumber,
		"nextDueDate":   KindTimestamp,
		"active":        KindBool,
		"checklist":     KindChecklist,
		DocFieldSyncVector: KindVector,
	},
}

// MergeableFields is the allow-list of fields eligible for independent
// field-level conflict resolution, per entity type. Free-text fields only:
// these are the ones technicians edit offline where a per-field timestamp
// beats an all-or-nothing record decision.
var MergeableFields = map[Entity][]string{
	EntityWorkOrders: {"notes", "description", "feedback"},
	EntityAssets:     {"notes", "description"},
	EntityPMs:        {"notes", "description"},
}

// SchemaFor returns the payload schema for an entity type, or nil if the type
// is unknown to this server.
func SchemaFor(entityType Entity) PayloadSchema {
	return payloadSchemas[entityType]
}

// ValidatePayload checks a client payload against the entity's schema. A nil
// payload is valid (a delete carries none).
func ValidatePayload(entityType Entity, payload map[string]interface{}) error {
	schema := payloadSchemas[entityType]
	if schema == nil {
		return fmt.Errorf("unknown entity type %q", entityType)
	}
	for field, value := range payload {
		kind, ok := schema[field]
		if !ok {
			return fmt.Errorf("field %q not allowed for %s", field, entityType)
		}
		if value == nil {
			continue
		}
		if err := checkKind(kind, value); err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
	}
	return nil
}

func checkKind(kind FieldKind, value interface{}) error {
	switch kind {
	case KindString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case KindNumber:
		switch value.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case KindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
	case KindTimestamp:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339, v); err != nil {
				return fmt.Errorf("expected RFC3339 timestamp: %w", err)
			}
		default:
			return fmt.Errorf("expected timestamp, got %T", value)
		}
	case KindChecklist:
		items, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("expected checklist array, got %T", value)
		}
		for i, item := range items {
			if _, ok := item.(map[string]interface{}); !ok {
				return fmt.Errorf("checklist item %d: expected object, got %T", i, item)
			}
		}
	case KindVector:
		if ClockFromValue(value) == nil {
			return fmt.Errorf("expected vector clock, got %T", value)
		}
	}
	return nil
}
