package store

import (
	"context"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
)

// Field names accepted by UpdateFields. They match the persisted document
// keys so a partial update is a single atomic $set.
const (
	FieldFileName     = "fileName"
	FieldFileSize     = "fileSize"
	FieldFileURL      = "fileUrl"
	FieldThumbnailURL = "thumbnailUrl"
	FieldOptimizedURL = "optimizedUrl"
	FieldIsOptimized  = "isOptimized"
	FieldLocation     = "location"
)

// Fields is a partial update covering all fields changed by one event.
type Fields map[string]any

// RecordStore persists media records. Lookups are always scoped by owner;
// updates and deletes are keyed by the store-assigned id.
type RecordStore interface {
	Create(ctx context.Context, rec *media.Record) (string, error)
	FindOne(ctx context.Context, ownerID, id string) (*media.Record, error)
	UpdateFields(ctx context.Context, id string, fields Fields) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, ownerID string, limit, offset int) ([]*media.Record, error)
}
