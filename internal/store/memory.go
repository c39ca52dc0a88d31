package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
)

// MemoryStore is an in-process RecordStore used by tests and local runs
// without a MongoDB instance.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*media.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*media.Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec *media.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	id := uuid.New().String()

	stored := *rec
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.records[id] = &stored

	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return id, nil
}

func (s *MemoryStore) FindOne(_ context.Context, ownerID, id string) (*media.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, media.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) UpdateFields(_ context.Context, id string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return media.ErrNotFound
	}

	for k, v := range fields {
		switch k {
		case FieldFileName:
			rec.FileName = v.(string)
		case FieldFileSize:
			rec.FileSize = v.(int64)
		case FieldFileURL:
			rec.FileURL = v.(string)
		case FieldThumbnailURL:
			rec.ThumbnailURL = v.(string)
		case FieldOptimizedURL:
			rec.OptimizedURL = v.(string)
		case FieldIsOptimized:
			rec.IsOptimized = v.(bool)
		case FieldLocation:
			rec.Location = v.(media.ArtifactLocation)
		default:
			return fmt.Errorf("unknown field %q", k)
		}
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return media.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string, limit, offset int) ([]*media.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*media.Record
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			cp := *rec
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
