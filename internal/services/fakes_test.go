package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
)

// memStore is an in-memory EntityStore for tests. Timestamps come from a
// logical clock that advances one second per write, so ordering is exact and
// deterministic.
type memStore struct {
	mu      sync.Mutex
	records map[string]*models.EntityRecord
	now     time.Time
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]*models.EntityRecord),
		now:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

// seed inserts a record directly, bypassing Create, with full control over
// timestamps and version.
func (s *memStore) seed(rec *models.EntityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Version == 0 {
		rec.Version = 1
	}
	s.records[rec.TenantID+"/"+rec.ID] = rec
}

func (s *memStore) get(tenantID, id string) *models.EntityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[tenantID+"/"+id]
}

func (s *memStore) FindOne(ctx context.Context, tenantID, id string) (*models.EntityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tenantID+"/"+id]
	if !ok || rec.DeletedAt != nil {
		return nil, repositories.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *memStore) Create(ctx context.Context, rec *models.EntityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.TenantID + "/" + rec.ID
	if _, exists := s.records[key]; exists {
		return fmt.Errorf("%w: %q", repositories.ErrDuplicateID, rec.ID)
	}
	now := s.tick()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.records[key] = copyRecord(rec)
	return nil
}

func (s *memStore) UpdateFields(ctx context.Context, tenantID, id string, fields map[string]interface{}, expectedVersion int64) (*models.EntityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tenantID+"/"+id]
	if !ok || rec.DeletedAt != nil || rec.Version != expectedVersion {
		return nil, repositories.ErrVersionConflict
	}
	if rec.Doc == nil {
		rec.Doc = make(map[string]interface{})
	}
	for k, v := range fields {
		rec.Doc[k] = v
	}
	rec.Version++
	rec.UpdatedAt = s.tick()
	return copyRecord(rec), nil
}

func (s *memStore) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tenantID+"/"+id]
	if !ok || rec.DeletedAt != nil {
		return repositories.ErrNotFound
	}
	now := s.tick()
	rec.DeletedAt = &now
	rec.UpdatedAt = now
	rec.Version++
	return nil
}

func (s *memStore) FindUpdatedSince(ctx context.Context, tenantID string, since *time.Time) ([]*models.EntityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.EntityRecord
	for _, rec := range s.records {
		if rec.TenantID != tenantID {
			continue
		}
		if since != nil && !rec.UpdatedAt.After(*since) {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func copyRecord(rec *models.EntityRecord) *models.EntityRecord {
	clone := *rec
	clone.Doc = make(map[string]interface{}, len(rec.Doc))
	for k, v := range rec.Doc {
		clone.Doc[k] = v
	}
	return &clone
}

// memAudit collects audit entries for assertions.
type memAudit struct {
	mu      sync.Mutex
	entries []repositories.AuditEntry
}

func (a *memAudit) Write(ctx context.Context, entry *repositories.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *entry)
	return nil
}

func (a *memAudit) all() []repositories.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]repositories.AuditEntry(nil), a.entries...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ts(sec int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, sec, 0, time.UTC)
}

func tsp(sec int) *time.Time {
	t := ts(sec)
	return &t
}
