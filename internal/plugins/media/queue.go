package media

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueClosed is returned by Backfill once Close has been called.
var ErrQueueClosed = errors.New("thumbnail queue closed")

// ThumbnailJob asks for a thumbnail of one stored video.
type ThumbnailJob struct {
	// VideoName is the stored filename inside the uploads directory.
	VideoName string
}

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Derived int64
	Failed  int64
	Dropped int64
}

// ThumbnailQueue runs thumbnail derivation off the request path. A fixed
// pool of workers bounds the number of concurrent decoder processes. Jobs
// that do not fit in the buffer are dropped from the request path and
// picked up again by the next Backfill.
type ThumbnailQueue struct {
	deriver ThumbnailDeriver
	store   Store
	jobs    chan ThumbnailJob

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	derived atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewThumbnailQueue starts workers goroutines reading from a buffer of
// size queueSize.
func NewThumbnailQueue(deriver ThumbnailDeriver, store Store, workers, queueSize int) *ThumbnailQueue {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	q := &ThumbnailQueue{
		deriver: deriver,
		store:   store,
		jobs:    make(chan ThumbnailJob, queueSize),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Enqueue hands a job to the workers without blocking. It returns false if
// the queue is closed or full.
func (q *ThumbnailQueue) Enqueue(job ThumbnailJob) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		slog.Warn("thumbnail queue closed, dropping job", slog.String("video", job.VideoName))
		return false
	}

	select {
	case q.jobs <- job:
		return true
	default:
		q.dropped.Add(1)
		slog.Warn("thumbnail queue full, dropping job", slog.String("video", job.VideoName))
		return false
	}
}

// Backfill queues every stored video that has no thumbnail yet. Unlike
// Enqueue it waits for room in the buffer, so it recovers jobs that were
// dropped by a full queue or lost to a restart. It returns the number of
// jobs queued.
func (q *ThumbnailQueue) Backfill(ctx context.Context) (int, error) {
	uploads, err := q.store.List(ctx, q.store.UploadsDir())
	if err != nil {
		return 0, err
	}
	thumbs, err := q.store.List(ctx, q.store.ThumbnailsDir())
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(thumbs))
	for _, name := range thumbs {
		have[name] = true
	}

	queued := 0
	for _, name := range uploads {
		if Classify(name) != KindVideo || have[ThumbnailName(name)] {
			continue
		}
		if err := q.enqueueWait(ctx, ThumbnailJob{VideoName: name}); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

// enqueueWait blocks until job is buffered, ctx ends or the queue closes.
func (q *ThumbnailQueue) enqueueWait(ctx context.Context, job ThumbnailJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, lets the workers drain what is queued, and
// waits for them. Safe to call more than once.
func (q *ThumbnailQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	q.wg.Wait()
}

// Shutdown is Close bounded by ctx. It returns ctx.Err() if workers are
// still running when ctx ends; they keep draining in the background.
func (q *ThumbnailQueue) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (q *ThumbnailQueue) Stats() QueueStats {
	return QueueStats{
		Derived: q.derived.Load(),
		Failed:  q.failed.Load(),
		Dropped: q.dropped.Load(),
	}
}

func (q *ThumbnailQueue) work() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(job)
	}
}

// run derives one thumbnail. Failures are logged, never returned.
func (q *ThumbnailQueue) run(job ThumbnailJob) {
	start := time.Now()
	videoPath := filepath.Join(q.store.UploadsDir(), job.VideoName)
	thumbName := ThumbnailName(job.VideoName)

	err := q.deriver.Derive(context.Background(), videoPath, q.store.ThumbnailsDir(), thumbName)
	if err != nil {
		q.failed.Add(1)
		slog.Warn("thumbnail generation failed",
			slog.String("video", job.VideoName),
			slog.Any("error", err),
		)
		return
	}

	q.derived.Add(1)
	slog.Debug("thumbnail generated",
		slog.String("video", job.VideoName),
		slog.String("thumbnail", thumbName),
		slog.Duration("took", time.Since(start)),
	)
}
