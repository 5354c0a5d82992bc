package services

import "github.com/prudhvinik1/fieldsync/internal/models"

// ConflictLog collects resolution outcomes for one sync session. Each push
// request owns its own instance; the log is never shared across sessions and
// is not persisted here. Callers needing historical conflict auditing must
// write the entries to the audit sink themselves.
type ConflictLog struct {
	entries []models.ResolutionMetadata
	index   map[logKey][]int
}

type logKey struct {
	entityType models.Entity
	entityID   string
}

func NewConflictLog() *ConflictLog {
	return &ConflictLog{index: make(map[logKey][]int)}
}

// Add appends an entry. Entries are immutable once added.
func (l *ConflictLog) Add(entry models.ResolutionMetadata) {
	key := logKey{entry.EntityType, entry.EntityID}
	l.index[key] = append(l.index[key], len(l.entries))
	l.entries = append(l.entries, entry)
}

// All returns the entries in append order.
func (l *ConflictLog) All() []models.ResolutionMetadata {
	out := make([]models.ResolutionMetadata, len(l.entries))
	copy(out, l.entries)
	return out
}

// ByEntity returns the entries recorded for one record, in append order.
func (l *ConflictLog) ByEntity(entityType models.Entity, entityID string) []models.ResolutionMetadata {
	positions := l.index[logKey{entityType, entityID}]
	out := make([]models.ResolutionMetadata, 0, len(positions))
	for _, pos := range positions {
		out = append(out, l.entries[pos])
	}
	return out
}

// Len returns the number of entries.
func (l *ConflictLog) Len() int {
	return len(l.entries)
}
