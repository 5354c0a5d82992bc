package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
)

// fakeStore is a minimal in-memory EntityStore backing handler tests.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*models.EntityRecord
	now     time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string]*models.EntityRecord),
		now:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *fakeStore) seed(rec *models.EntityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Version == 0 {
		rec.Version = 1
	}
	s.records[rec.TenantID+"/"+rec.ID] = rec
}

func (s *fakeStore) get(tenantID, id string) *models.EntityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[tenantID+"/"+id]
}

func (s *fakeStore) FindOne(ctx context.Context, tenantID, id string) (*models.EntityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tenantID+"/"+id]
	if !ok || rec.DeletedAt != nil {
		return nil, repositories.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *fakeStore) Create(ctx context.Context, rec *models.EntityRecord) error {
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
	clone := *rec
	s.records[key] = &clone
	return nil
}

func (s *fakeStore) UpdateFields(ctx context.Context, tenantID, id string, fields map[string]interface{}, expectedVersion int64) (*models.EntityRecord, error) {
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
	clone := *rec
	return &clone, nil
}

func (s *fakeStore) Delete(ctx context.Context, tenantID, id string) error {
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

func (s *fakeStore) FindUpdatedSince(ctx context.Context, tenantID string, since *time.Time) ([]*models.EntityRecord, error) {
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
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// fakeCursors records the last checkpoint per tenant/device.
type fakeCursors struct {
	mu    sync.Mutex
	saved map[string]map[models.Entity]time.Time
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{saved: make(map[string]map[models.Entity]time.Time)}
}

func (c *fakeCursors) SaveCursors(ctx context.Context, tenantID, deviceID string, cursors map[models.Entity]time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved[tenantID+"/"+deviceID] = cursors
	return nil
}

func (c *fakeCursors) GetCursors(ctx context.Context, tenantID, deviceID string) (map[models.Entity]time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cursors, ok := c.saved[tenantID+"/"+deviceID]
	if !ok {
		return map[models.Entity]time.Time{}, nil
	}
	return cursors, nil
}

// fakeDevices only tracks TouchLastSeen calls.
type fakeDevices struct {
	mu      sync.Mutex
	touched []uuid.UUID
}

func (d *fakeDevices) Create(ctx context.Context, device *models.Device) error { return nil }

func (d *fakeDevices) GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	return nil, repositories.ErrNotFound
}

func (d *fakeDevices) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touched = append(d.touched, id)
	return nil
}

func (d *fakeDevices) Revoke(ctx context.Context, id uuid.UUID) error { return nil }

type fakeAudit struct{}

func (fakeAudit) Write(ctx context.Context, entry *repositories.AuditEntry) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
