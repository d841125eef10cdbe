package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/keyxmakerx/mediashare/internal/apperror"
)

// tempPrefix and tempSuffix mark in-progress writes. Temp files are hidden
// and carry no allow-listed extension, so the index never surfaces them.
const (
	tempPrefix = "."
	tempSuffix = ".part"
)

// ErrNameTaken is returned when a write would replace an existing file.
var ErrNameTaken = errors.New("file already exists")

// Store is the storage contract used by the ingestor and the index. The
// directories are flat; names never contain path separators.
type Store interface {
	UploadsDir() string
	ThumbnailsDir() string

	// Write streams body to dir/name and returns the final path. A partially
	// written file is never visible under its final name.
	Write(ctx context.Context, dir, name string, body io.Reader) (string, error)

	// List returns the regular files in dir in filesystem order.
	List(ctx context.Context, dir string) ([]string, error)
}

// DirStore is the local-filesystem Store. It is safe for concurrent use:
// every write goes to its own temp file and uniqueness of final names is
// delegated to the filename token, so no locking is needed.
type DirStore struct {
	uploadsDir    string
	thumbnailsDir string
}

// NewDirStore creates the store and ensures both directories exist.
func NewDirStore(uploadsDir, thumbnailsDir string) (*DirStore, error) {
	for _, dir := range []string{uploadsDir, thumbnailsDir} {
		if err := EnsureDirectory(dir); err != nil {
			return nil, err
		}
	}
	return &DirStore{uploadsDir: uploadsDir, thumbnailsDir: thumbnailsDir}, nil
}

// EnsureDirectory creates path if missing. Calling it on an existing
// directory is a no-op; an existing non-directory is a storage fault.
func EnsureDirectory(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return apperror.NewStorageFault("could not prepare storage directory",
			fmt.Errorf("creating directory %s: %w", path, err))
	}
	return nil
}

// UploadsDir returns the directory holding original media.
func (s *DirStore) UploadsDir() string { return s.uploadsDir }

// ThumbnailsDir returns the directory holding derived thumbnails.
func (s *DirStore) ThumbnailsDir() string { return s.thumbnailsDir }

// Write streams body into a hidden temp file in dir, syncs it, and links it
// to name. The link is atomic and fails if name exists, so a concurrent
// writer can never replace a stored file.
func (s *DirStore) Write(ctx context.Context, dir, name string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, tempPrefix) {
		return "", fmt.Errorf("invalid file name %q", name)
	}

	// Fast path: skip streaming the body when the name is already taken.
	finalPath := filepath.Join(dir, name)
	if _, err := os.Lstat(finalPath); err == nil {
		return "", fmt.Errorf("writing %s: %w", name, ErrNameTaken)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+name+".*"+tempSuffix)
	if err != nil {
		return "", apperror.NewStorageFault("could not save file",
			fmt.Errorf("creating temp file for %s: %w", name, err))
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", apperror.NewStorageFault("could not save file",
			fmt.Errorf("writing %s: %w", name, err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", apperror.NewStorageFault("could not save file",
			fmt.Errorf("syncing %s: %w", name, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", apperror.NewStorageFault("could not save file",
			fmt.Errorf("closing %s: %w", name, err))
	}
	// CreateTemp uses 0600; stored media is served publicly.
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return "", apperror.NewStorageFault("could not save file",
			fmt.Errorf("setting mode on %s: %w", name, err))
	}
	err = os.Link(tmpPath, finalPath)
	os.Remove(tmpPath)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("writing %s: %w", name, ErrNameTaken)
	}
	if err != nil {
		return "", apperror.NewStorageFault("could not save file",
			fmt.Errorf("linking %s into place: %w", name, err))
	}

	return finalPath, nil
}

// List returns the names of the regular, non-temporary files in dir in the
// order the filesystem reports them. No sorting is applied.
func (s *DirStore) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// os.ReadDir would sort; reading the handle keeps directory order.
	d, err := os.Open(dir)
	if err != nil {
		return nil, apperror.NewStorageFault("Unable to scan files.",
			fmt.Errorf("opening directory %s: %w", dir, err))
	}
	defer d.Close()

	entries, err := d.ReadDir(-1)
	if err != nil {
		return nil, apperror.NewStorageFault("Unable to scan files.",
			fmt.Errorf("reading directory %s: %w", dir, err))
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, tempSuffix) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
