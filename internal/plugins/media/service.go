package media

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keyxmakerx/mediashare/internal/apperror"
	"github.com/keyxmakerx/mediashare/internal/sanitize"
)

// User-facing outcome messages of the upload endpoint.
const (
	MsgUploadOK     = "Files uploaded successfully."
	MsgNoFiles      = "No files were uploaded."
	MsgUploadFailed = "Error uploading files."
)

// maxExtLen bounds the preserved extension; longer ones are dropped.
const maxExtLen = 16

// MediaService handles business logic for ingesting uploads.
type MediaService interface {
	// Ingest stores every file of the batch. It fails as a whole if any
	// write fails, but files already written stay on disk. The returned
	// result is non-nil whenever at least one write was attempted.
	Ingest(ctx context.Context, batch UploadBatch) (*BatchResult, error)
}

// ThumbnailEnqueuer accepts fire-and-forget thumbnail jobs.
type ThumbnailEnqueuer interface {
	Enqueue(job ThumbnailJob) bool
}

// ServiceOptions tunes the ingestor.
type ServiceOptions struct {
	// MaxFiles caps files per batch; 0 means unlimited.
	MaxFiles int

	// Now overrides the clock used for the batch timestamp.
	Now func() time.Time
}

// mediaService implements MediaService.
type mediaService struct {
	store    Store
	thumbs   ThumbnailEnqueuer
	maxFiles int
	now      func() time.Time
}

// NewMediaService creates a new ingestor. thumbs may be nil, which disables
// thumbnail derivation.
func NewMediaService(store Store, thumbs ThumbnailEnqueuer, opts ServiceOptions) MediaService {
	s := &mediaService{
		store:    store,
		thumbs:   thumbs,
		maxFiles: opts.MaxFiles,
		now:      opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Ingest validates the batch, writes all files concurrently, and queues a
// thumbnail for every stored video.
func (s *mediaService) Ingest(ctx context.Context, batch UploadBatch) (*BatchResult, error) {
	if len(batch.Files) == 0 {
		return nil, apperror.NewBadRequest(MsgNoFiles)
	}
	if s.maxFiles > 0 && len(batch.Files) > s.maxFiles {
		return nil, apperror.NewBadRequest(
			fmt.Sprintf("Too many files; the maximum is %d per upload.", s.maxFiles))
	}

	label := sanitize.Label(batch.Photographer)
	base := NewBaseName(label, s.now())

	// Writes are attempt-once: a client disconnect must not abort them half way.
	writeCtx := context.WithoutCancel(ctx)

	result := &BatchResult{
		Photographer: label,
		Stored:       make([]string, 0, len(batch.Files)),
	}
	var (
		mu     sync.Mutex
		videos []string
		g      errgroup.Group
	)

	for _, file := range batch.Files {
		file := file // per-iteration copy; go.mod targets go1.21 (pre-1.22 loopvar semantics)
		g.Go(func() error {
			name, err := s.save(writeCtx, base, file)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, FailedFile{
					OriginalName: file.Name,
					Error:        apperror.SafeMessage(err),
				})
				return err
			}
			result.Stored = append(result.Stored, name)
			if Classify(name) == KindVideo {
				videos = append(videos, name)
			}
			return nil
		})
	}
	err := g.Wait()

	if s.thumbs != nil {
		for _, name := range videos {
			if s.thumbs.Enqueue(ThumbnailJob{VideoName: name}) {
				result.ThumbnailsQueued++
			}
		}
	}

	if err != nil {
		slog.Error("media batch failed",
			slog.String("photographer", label),
			slog.Int("files", len(batch.Files)),
			slog.Int("stored", len(result.Stored)),
			slog.Int("failed", len(result.Failed)),
			slog.Any("error", err),
		)
		return result, apperror.NewStorageFault(MsgUploadFailed, err)
	}

	slog.Info("media batch uploaded",
		slog.String("photographer", label),
		slog.Int("files", len(result.Stored)),
		slog.Int("thumbnails_queued", result.ThumbnailsQueued),
	)
	return result, nil
}

// save persists one file under a freshly generated name.
func (s *mediaService) save(ctx context.Context, base string, file UploadFile) (string, error) {
	ext := filepath.Ext(filepath.Base(file.Name))
	if len(ext) > maxExtLen {
		ext = ""
	}
	name := EncodeFilename(base, NewToken(), ext)

	if file.Open == nil {
		return "", fmt.Errorf("opening %s: no payload", file.Name)
	}
	body, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", file.Name, err)
	}
	defer body.Close()

	if _, err := s.store.Write(ctx, s.store.UploadsDir(), name, body); err != nil {
		return "", err
	}
	return name, nil
}
