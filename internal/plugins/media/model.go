// Package media implements the upload and media indexing pipeline.
// Uploaded files are stored flat in an uploads directory under generated
// names that encode the photographer and upload time; video uploads get a
// best-effort JPEG thumbnail in a separate thumbnails directory. The
// directory listing itself is the media index: there is no database.
package media

import (
	"io"
	"path/filepath"
	"strings"
	"time"
)

// MediaKind classifies a stored file by its extension.
type MediaKind string

// Media kinds.
const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindOther MediaKind = "other"
)

// --- Extension allow-lists ---

// ImageExtensions are listed by the image index. Matching is case-insensitive.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// VideoExtensions are listed by the video index and get thumbnails.
var VideoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mkv": true,
	".mov": true,
}

// Classify returns the kind of a filename based on its extension.
func Classify(name string) MediaKind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ImageExtensions[ext]:
		return KindImage
	case VideoExtensions[ext]:
		return KindVideo
	default:
		return KindOther
	}
}

// ThumbnailName returns the thumbnail filename derived from a stored video.
func ThumbnailName(videoName string) string {
	return strings.TrimSuffix(videoName, filepath.Ext(videoName)) + ".jpg"
}

// UploadFile is one uploaded payload. Open is called exactly once, from the
// goroutine that persists the file.
type UploadFile struct {
	// Name is the client-side filename; only its extension is kept.
	Name string

	// Open returns the payload stream.
	Open func() (io.ReadCloser, error)
}

// UploadBatch is a single upload submission.
type UploadBatch struct {
	// Photographer is the raw, unsanitized label (may be blank).
	Photographer string

	Files []UploadFile
}

// FailedFile records a file of a batch that could not be persisted.
type FailedFile struct {
	OriginalName string `json:"original_name"`
	Error        string `json:"error"`
}

// BatchResult reports what an ingest call did. It is returned even when the
// batch failed, so callers can log which files already landed on disk.
type BatchResult struct {
	// Photographer is the sanitized label actually used in filenames.
	Photographer string `json:"photographer"`

	// Stored lists generated filenames that were written successfully.
	Stored []string `json:"stored"`

	// Failed lists files whose write failed.
	Failed []FailedFile `json:"failed,omitempty"`

	// ThumbnailsQueued counts video files handed to the thumbnail queue.
	ThumbnailsQueued int `json:"thumbnails_queued"`
}

// MediaDetail is the decoded view of one indexed file, served by the
// details endpoint so clients need not parse filenames themselves.
type MediaDetail struct {
	Filename     string     `json:"filename"`
	Kind         MediaKind  `json:"kind"`
	Photographer string     `json:"photographer"`
	UploadedAt   *time.Time `json:"uploaded_at,omitempty"`
	URL          string     `json:"url"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
}

// Public URL prefixes for the two static directories.
const (
	UploadsURLPrefix    = "/uploads"
	ThumbnailsURLPrefix = "/thumbnails"
)
