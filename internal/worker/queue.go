package worker

import (
	"context"
	"sync"
	"time"

	"github.com/Jeffail/tunny"
	"go.uber.org/zap"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/derive"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/media"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/observability"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/storage"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/store"
)

// VideoDeriver produces video derivatives. Implemented by
// derive.VideoTranscoder.
type VideoDeriver interface {
	Transcode(ctx context.Context, ownerID string, category media.Category, srcPath, baseName string) (*derive.TranscodeResult, error)
	ExtractPoster(ctx context.Context, ownerID, srcPath, baseName string) (string, error)
}

// TranscodeJob carries everything a background transcode needs, captured at
// submission time. RecordID is the id returned by record creation; jobs are
// never submitted with an invented id.
type TranscodeJob struct {
	RecordID   string
	OwnerID    string
	Category   media.Category
	SourcePath string
	BaseName   string
}

// PosterJob extracts a poster-frame thumbnail for an existing record.
type PosterJob struct {
	RecordID   string
	OwnerID    string
	SourcePath string
	BaseName   string
}

// Queue runs video derivative work detached from request handlers. Transcodes
// go through a fixed-size pool so concurrent encodes stay bounded; each
// record has at most one transcode in flight at a time.
type Queue struct {
	pool    *tunny.Pool
	deriver VideoDeriver
	store   store.RecordStore
	layout  *storage.Layout
	metrics *observability.PipelineMetrics
	log     *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewQueue(workers int, deriver VideoDeriver, st store.RecordStore, layout *storage.Layout, metrics *observability.PipelineMetrics, log *zap.Logger, timeout time.Duration) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	q := &Queue{
		deriver:  deriver,
		store:    st,
		layout:   layout,
		metrics:  metrics,
		log:      log,
		timeout:  timeout,
		inflight: make(map[string]struct{}),
	}
	q.pool = tunny.NewFunc(workers, func(payload interface{}) interface{} {
		q.runTranscode(payload.(TranscodeJob))
		return nil
	})
	return q
}

// Close rejects further submissions, waits for accepted work to drain and
// stops the pool.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()
	q.pool.Close()
}

// SubmitTranscode queues a transcode and returns immediately. The returned
// channel closes when the job (and its record update) has finished. ok is
// false when a transcode for this record is already in flight, or when the
// queue has been closed; no second job is started.
func (q *Queue) SubmitTranscode(job TranscodeJob) (done <-chan struct{}, ok bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, false
	}
	if _, busy := q.inflight[job.RecordID]; busy {
		q.mu.Unlock()
		return nil, false
	}
	q.inflight[job.RecordID] = struct{}{}
	q.wg.Add(1)
	q.mu.Unlock()

	ch := make(chan struct{})
	go func() {
		defer close(ch)
		defer q.wg.Done()
		defer func() {
			q.mu.Lock()
			delete(q.inflight, job.RecordID)
			q.mu.Unlock()
		}()
		q.pool.Process(job)
	}()
	return ch, true
}

// SubmitPoster extracts a poster frame in the background. Failure only logs;
// it never blocks or fails the request that triggered it.
func (q *Queue) SubmitPoster(job PosterJob) (done <-chan struct{}) {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		defer cancel()

		thumbName, err := q.deriver.ExtractPoster(ctx, job.OwnerID, job.SourcePath, job.BaseName)
		if err != nil {
			q.log.Warn("poster extraction failed, thumbnail left unset",
				zap.String("record_id", job.RecordID),
				zap.Error(err),
			)
			return
		}

		thumbURL := q.layout.PublicURL(q.layout.ThumbnailPath(job.OwnerID, thumbName))
		err = q.store.UpdateFields(ctx, job.RecordID, store.Fields{
			store.FieldThumbnailURL: thumbURL,
		})
		if err != nil {
			q.log.Error("failed to record poster thumbnail",
				zap.String("record_id", job.RecordID),
				zap.Error(err),
			)
		}
	}()
	return ch
}

func (q *Queue) runTranscode(job TranscodeJob) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	res, err := q.deriver.Transcode(ctx, job.OwnerID, job.Category, job.SourcePath, job.BaseName)
	if err != nil {
		// Terminal for this job: record stays un-optimized, original
		// bytes stay on disk, no retry is scheduled.
		q.metrics.TranscodeFailures.Inc()
		q.log.Error("transcode failed",
			zap.String("record_id", job.RecordID),
			zap.String("owner_id", job.OwnerID),
			zap.Error(err),
		)
		return
	}

	optimizedURL := q.layout.PublicURL(q.layout.OptimizedPath(job.OwnerID, job.Category, res.OptimizedName))

	// One update call covers every field changed by this completion event.
	err = q.store.UpdateFields(ctx, job.RecordID, store.Fields{
		store.FieldFileName:     res.OptimizedName,
		store.FieldFileSize:     res.OptimizedSize,
		store.FieldFileURL:      optimizedURL,
		store.FieldOptimizedURL: optimizedURL,
		store.FieldIsOptimized:  true,
		store.FieldLocation:     media.LocationOptimizedCanonical,
	})
	if err != nil {
		q.log.Error("failed to persist transcode result, keeping original bytes",
			zap.String("record_id", job.RecordID),
			zap.Error(err),
		)
		return
	}

	if err := q.layout.RemoveIfExists(job.SourcePath); err != nil {
		q.log.Warn("failed to remove original after transcode",
			zap.String("path", job.SourcePath),
			zap.Error(err),
		)
	}

	q.metrics.TranscodesTotal.Inc()
	q.metrics.TranscodeDuration.Observe(time.Since(start).Seconds())
	q.log.Info("transcode completed",
		zap.String("record_id", job.RecordID),
		zap.String("optimized", res.OptimizedName),
		zap.Int64("size", res.OptimizedSize),
		zap.Duration("duration", time.Since(start)),
	)
}
