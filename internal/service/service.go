package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/derive"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/observability"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/storage"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/store"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/worker"
)

// Synchronous image encodes block the handling request, not the process;
// this bounds how many run at once.
const maxConcurrentImageEncodes = 4

// ImageDeriver generates image derivatives synchronously. Implemented by
// derive.ImageOptimizer.
type ImageDeriver interface {
	Optimize(ownerID string, category media.Category, srcPath, baseName string) (*derive.ImageResult, error)
}

// VideoJobs launches detached video derivative work. Implemented by
// worker.Queue.
type VideoJobs interface {
	SubmitTranscode(job worker.TranscodeJob) (done <-chan struct{}, ok bool)
	SubmitPoster(job worker.PosterJob) (done <-chan struct{})
}

// Upload is an inbound file as handed over by the transport layer.
type Upload struct {
	FileName    string
	ContentType string
	Content     io.Reader
}

// MediaService drives ingestion, re-optimization and deletion of media.
type MediaService struct {
	store    store.RecordStore
	layout   *storage.Layout
	images   ImageDeriver
	videos   VideoJobs
	metrics  *observability.PipelineMetrics
	log      *zap.Logger
	tracer   oteltrace.Tracer
	imageSem *semaphore.Weighted
}

func NewMediaService(st store.RecordStore, layout *storage.Layout, images ImageDeriver, videos VideoJobs, metrics *observability.PipelineMetrics, log *zap.Logger) *MediaService {
	return &MediaService{
		store:    st,
		layout:   layout,
		images:   images,
		videos:   videos,
		metrics:  metrics,
		log:      log,
		tracer:   otel.Tracer("mediavault/service"),
		imageSem: semaphore.NewWeighted(maxConcurrentImageEncodes),
	}
}

// Ingest classifies an upload, produces derivatives and creates exactly one
// record. Image derivatives are generated synchronously; video derivatives
// are launched in the background, after the record exists, carrying the real
// record id.
func (s *MediaService) Ingest(ctx context.Context, ownerID string, upload *Upload) (*media.View, error) {
	ctx, span := s.tracer.Start(ctx, "media.Ingest")
	defer span.End()

	if ownerID == "" {
		return nil, fmt.Errorf("%w: missing owner", media.ErrUnauthorized)
	}
	if upload == nil || upload.Content == nil || upload.FileName == "" {
		return nil, fmt.Errorf("%w: no file provided", media.ErrInvalidInput)
	}

	contentType, content, err := sniffContentType(upload.Content, upload.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable upload: %v", media.ErrInvalidInput, err)
	}
	category := media.Classify(contentType)

	if err := s.layout.EnsureOwnerTree(ownerID, category); err != nil {
		return nil, err
	}

	storedName := storedFileName(upload.FileName)
	baseName := trimExt(storedName)
	destPath := s.layout.FilePath(ownerID, category, storedName)

	written, err := writeFile(destPath, content)
	if err != nil {
		s.metrics.IngestFailures.WithLabelValues(string(category)).Inc()
		return nil, err
	}

	rec := &media.Record{
		OwnerID:          ownerID,
		OriginalFileName: upload.FileName,
		MimeType:         contentType,
		Category:         category,
	}

	switch category {
	case media.CategoryImage:
		if err := s.imageSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		start := time.Now()
		res, err := s.images.Optimize(ownerID, category, destPath, baseName)
		s.imageSem.Release(1)
		if err != nil {
			// No record is persisted. The generator already removed its
			// partial outputs; the original stays put for inspection.
			s.metrics.IngestFailures.WithLabelValues(string(category)).Inc()
			return nil, err
		}
		s.metrics.ImageOptimizeDuration.Observe(time.Since(start).Seconds())

		optimizedURL := s.layout.PublicURL(s.layout.OptimizedPath(ownerID, category, res.OptimizedName))
		rec.FileName = res.OptimizedName
		rec.FileSize = res.OptimizedSize
		rec.FileURL = optimizedURL
		rec.OptimizedURL = optimizedURL
		rec.ThumbnailURL = s.layout.PublicURL(s.layout.ThumbnailPath(ownerID, res.ThumbnailName))
		rec.IsOptimized = true
		rec.Location = media.LocationOptimizedCanonical

	case media.CategoryVideo, media.CategoryDocument:
		rec.FileName = storedName
		rec.FileSize = written
		rec.FileURL = s.layout.PublicURL(destPath)
		rec.IsOptimized = false
		rec.Location = media.LocationOriginal
	}

	if _, err := s.store.Create(ctx, rec); err != nil {
		s.cleanupUnrecorded(rec, destPath)
		s.metrics.IngestFailures.WithLabelValues(string(category)).Inc()
		return nil, err
	}

	// Background jobs launch only now, so they close over the id the store
	// actually assigned.
	if category == media.CategoryVideo {
		s.videos.SubmitPoster(worker.PosterJob{
			RecordID:   rec.ID,
			OwnerID:    ownerID,
			SourcePath: destPath,
			BaseName:   baseName,
		})
		s.videos.SubmitTranscode(worker.TranscodeJob{
			RecordID:   rec.ID,
			OwnerID:    ownerID,
			Category:   category,
			SourcePath: destPath,
			BaseName:   baseName,
		})
	}

	s.metrics.IngestsTotal.WithLabelValues(string(category)).Inc()
	s.log.Info("media ingested",
		zap.String("record_id", rec.ID),
		zap.String("owner_id", ownerID),
		zap.String("category", string(category)),
		zap.Int64("size", rec.FileSize),
	)

	v := rec.View()
	return &v, nil
}

// Get returns a single record view scoped to the owner.
func (s *MediaService) Get(ctx context.Context, ownerID, id string) (*media.View, error) {
	rec, err := s.store.FindOne(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	v := rec.View()
	return &v, nil
}

// List returns record views for the owner, newest first.
func (s *MediaService) List(ctx context.Context, ownerID string, limit, offset int) ([]media.View, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	records, err := s.store.List(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]media.View, 0, len(records))
	for _, rec := range records {
		views = append(views, rec.View())
	}
	return views, nil
}

// Reoptimize re-drives derivative generation idempotently. The returned
// async flag is true when a background transcode was started and the record
// will change later.
func (s *MediaService) Reoptimize(ctx context.Context, ownerID, id string) (*media.View, bool, error) {
	ctx, span := s.tracer.Start(ctx, "media.Reoptimize")
	defer span.End()

	rec, err := s.store.FindOne(ctx, ownerID, id)
	if err != nil {
		return nil, false, err
	}

	if rec.Category == media.CategoryDocument {
		return nil, false, fmt.Errorf("%w: documents have no derivatives", media.ErrUnsupportedMediaType)
	}

	if rec.IsOptimized {
		v := rec.View()
		return &v, false, nil
	}

	switch rec.Category {
	case media.CategoryImage:
		return s.reoptimizeImage(ctx, rec)
	default:
		return s.reoptimizeVideo(rec)
	}
}

func (s *MediaService) reoptimizeImage(ctx context.Context, rec *media.Record) (*media.View, bool, error) {
	// Canonical artifact already in the target format: flip the flag, do
	// not re-encode.
	if strings.EqualFold(filepath.Ext(rec.FileName), derive.OptimizedExt) {
		err := s.store.UpdateFields(ctx, rec.ID, store.Fields{
			store.FieldIsOptimized:  true,
			store.FieldOptimizedURL: rec.FileURL,
		})
		if err != nil {
			return nil, false, err
		}
		rec.IsOptimized = true
		rec.OptimizedURL = rec.FileURL
		v := rec.View()
		return &v, false, nil
	}

	if err := s.imageSem.Acquire(ctx, 1); err != nil {
		return nil, false, err
	}
	start := time.Now()
	res, err := s.images.Optimize(rec.OwnerID, rec.Category, s.canonicalPath(rec), trimExt(rec.FileName))
	s.imageSem.Release(1)
	if err != nil {
		return nil, false, err
	}
	s.metrics.ImageOptimizeDuration.Observe(time.Since(start).Seconds())

	optimizedURL := s.layout.PublicURL(s.layout.OptimizedPath(rec.OwnerID, rec.Category, res.OptimizedName))
	thumbURL := s.layout.PublicURL(s.layout.ThumbnailPath(rec.OwnerID, res.ThumbnailName))

	err = s.store.UpdateFields(ctx, rec.ID, store.Fields{
		store.FieldFileName:     res.OptimizedName,
		store.FieldFileSize:     res.OptimizedSize,
		store.FieldFileURL:      optimizedURL,
		store.FieldOptimizedURL: optimizedURL,
		store.FieldThumbnailURL: thumbURL,
		store.FieldIsOptimized:  true,
		store.FieldLocation:     media.LocationOptimizedCanonical,
	})
	if err != nil {
		return nil, false, err
	}

	updated, err := s.store.FindOne(ctx, rec.OwnerID, rec.ID)
	if err != nil {
		return nil, false, err
	}
	v := updated.View()
	return &v, false, nil
}

func (s *MediaService) reoptimizeVideo(rec *media.Record) (*media.View, bool, error) {
	src := s.canonicalPath(rec)
	baseName := trimExt(rec.FileName)

	if rec.ThumbnailURL == "" {
		s.videos.SubmitPoster(worker.PosterJob{
			RecordID:   rec.ID,
			OwnerID:    rec.OwnerID,
			SourcePath: src,
			BaseName:   baseName,
		})
	}

	// A rejected submit means a transcode for this record is already
	// running; either way optimization is in progress, not complete.
	if _, ok := s.videos.SubmitTranscode(worker.TranscodeJob{
		RecordID:   rec.ID,
		OwnerID:    rec.OwnerID,
		Category:   rec.Category,
		SourcePath: src,
		BaseName:   baseName,
	}); !ok {
		s.log.Info("transcode already in flight", zap.String("record_id", rec.ID))
	}

	v := rec.View()
	return &v, true, nil
}

// Delete removes every artifact the record references, then the record.
// Filesystem cleanup runs first so a crash leaves an orphaned record, never
// orphaned files.
func (s *MediaService) Delete(ctx context.Context, ownerID, id string) error {
	ctx, span := s.tracer.Start(ctx, "media.Delete")
	defer span.End()

	rec, err := s.store.FindOne(ctx, ownerID, id)
	if err != nil {
		return err
	}

	var cleanupErrs []error

	// Canonical artifact, unless it lives in the optimized subtree and the
	// next step would remove it anyway. A separate-artifact record still
	// has its canonical original in the category directory.
	if rec.Location != media.LocationOptimizedCanonical {
		cleanupErrs = append(cleanupErrs,
			s.layout.RemoveIfExists(s.layout.FilePath(ownerID, rec.Category, rec.FileName)))
	}

	if rec.ThumbnailURL != "" {
		cleanupErrs = append(cleanupErrs,
			s.layout.RemoveIfExists(s.layout.ThumbnailPath(ownerID, path.Base(rec.ThumbnailURL))))
	}

	if rec.OptimizedURL != "" || rec.Location != media.LocationOriginal {
		name := rec.FileName
		if rec.OptimizedURL != "" {
			name = path.Base(rec.OptimizedURL)
		}
		cleanupErrs = append(cleanupErrs,
			s.layout.RemoveIfExists(s.layout.OptimizedPath(ownerID, rec.Category, name)))
	}

	if err := errors.Join(cleanupErrs...); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.metrics.DeletionsTotal.Inc()
	s.log.Info("media deleted",
		zap.String("record_id", id),
		zap.String("owner_id", ownerID),
	)
	return nil
}

// canonicalPath resolves where the record's fileUrl artifact lives on disk,
// from the explicit location field rather than URL parsing.
func (s *MediaService) canonicalPath(rec *media.Record) string {
	if rec.Location == media.LocationOptimizedCanonical {
		return s.layout.OptimizedPath(rec.OwnerID, rec.Category, rec.FileName)
	}
	return s.layout.FilePath(rec.OwnerID, rec.Category, rec.FileName)
}

// cleanupUnrecorded removes artifacts written for an upload whose record was
// never created.
func (s *MediaService) cleanupUnrecorded(rec *media.Record, destPath string) {
	if rec.Category == media.CategoryImage {
		_ = s.layout.RemoveIfExists(s.layout.OptimizedPath(rec.OwnerID, rec.Category, rec.FileName))
		if rec.ThumbnailURL != "" {
			_ = s.layout.RemoveIfExists(s.layout.ThumbnailPath(rec.OwnerID, path.Base(rec.ThumbnailURL)))
		}
		return
	}
	_ = s.layout.RemoveIfExists(destPath)
}

// storedFileName uniquifies the client-supplied name so two uploads of the
// same file by one owner never collide.
func storedFileName(original string) string {
	name := filepath.Base(original)
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	return uuid.New().String() + "_" + safe
}

func trimExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func writeFile(path string, content io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, &media.StorageError{Op: "create " + path, Err: err}
	}
	written, err := io.Copy(f, content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, &media.StorageError{Op: "write " + path, Err: err}
	}
	return written, nil
}
