package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/keyxmakerx/mediashare/internal/apperror"
)

func newTestStore(t *testing.T) *DirStore {
	t.Helper()
	root := t.TempDir()
	store, err := NewDirStore(filepath.Join(root, "uploads"), filepath.Join(root, "thumbnails"))
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	return store
}

func TestDirStore_WriteAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	path, err := store.Write(ctx, store.UploadsDir(), "a.jpg", strings.NewReader("jpeg bytes"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if path != filepath.Join(store.UploadsDir(), "a.jpg") {
		t.Errorf("unexpected path %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("unexpected content %q", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("expected mode 0644, got %v", info.Mode().Perm())
	}

	names, err := store.List(ctx, store.UploadsDir())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 1 || names[0] != "a.jpg" {
		t.Errorf("expected [a.jpg], got %v", names)
	}
}

func TestDirStore_ListSkipsTempAndDirs(t *testing.T) {
	store := newTestStore(t)
	dir := store.UploadsDir()

	if err := os.WriteFile(filepath.Join(dir, ".a.jpg.123.part"), []byte("partial"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.jpg"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.png"), []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}

	names, err := store.List(context.Background(), dir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 1 || names[0] != "b.png" {
		t.Errorf("expected only b.png, got %v", names)
	}
}

func TestDirStore_WriteRefusesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Write(ctx, store.UploadsDir(), "a.jpg", strings.NewReader("first")); err != nil {
		t.Fatal(err)
	}
	_, err := store.Write(ctx, store.UploadsDir(), "a.jpg", strings.NewReader("second"))
	if !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(store.UploadsDir(), "a.jpg"))
	if string(data) != "first" {
		t.Errorf("existing file was overwritten: %q", data)
	}
}

// gateReader signals ready on its first Read and then waits for gate, so
// every writer is past the existence check before any of them publishes.
type gateReader struct {
	r     io.Reader
	ready *sync.WaitGroup
	gate  <-chan struct{}
	once  sync.Once
}

func (g *gateReader) Read(p []byte) (int, error) {
	g.once.Do(func() {
		g.ready.Done()
		<-g.gate
	})
	return g.r.Read(p)
}

func TestDirStore_ConcurrentWritersNeverReplace(t *testing.T) {
	store := newTestStore(t)
	const writers = 16

	var ready, wg sync.WaitGroup
	gate := make(chan struct{})
	ready.Add(writers)

	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := &gateReader{r: strings.NewReader(fmt.Sprintf("writer %d", i)), ready: &ready, gate: gate}
			_, errs[i] = store.Write(context.Background(), store.UploadsDir(), "same.mp4", body)
		}(i)
	}
	ready.Wait()
	close(gate)
	wg.Wait()

	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			if winner >= 0 {
				t.Fatalf("writers %d and %d both succeeded", winner, i)
			}
			winner = i
		case !errors.Is(err, ErrNameTaken):
			t.Errorf("writer %d: expected ErrNameTaken, got %v", i, err)
		}
	}
	if winner < 0 {
		t.Fatal("expected exactly one writer to succeed")
	}

	data, err := os.ReadFile(filepath.Join(store.UploadsDir(), "same.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if want := fmt.Sprintf("writer %d", winner); string(data) != want {
		t.Errorf("stored content %q, want %q", data, want)
	}

	// Losers leave no temp files behind.
	entries, err := os.ReadDir(store.UploadsDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the stored file, got %v", names)
	}
}

func TestDirStore_WriteRejectsBadNames(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"", "../escape.jpg", "sub/a.jpg", ".hidden.jpg"} {
		if _, err := store.Write(context.Background(), store.UploadsDir(), name, strings.NewReader("x")); err == nil {
			t.Errorf("expected error for name %q", name)
		}
	}
}

func TestDirStore_WriteMissingDirIsStorageFault(t *testing.T) {
	store := newTestStore(t)
	missing := filepath.Join(t.TempDir(), "gone")

	_, err := store.Write(context.Background(), missing, "a.jpg", strings.NewReader("x"))
	if !apperror.IsStorageFault(err) {
		t.Fatalf("expected storage fault, got %v", err)
	}
}

func TestDirStore_ListMissingDirIsStorageFault(t *testing.T) {
	store := newTestStore(t)
	if err := os.RemoveAll(store.UploadsDir()); err != nil {
		t.Fatal(err)
	}

	_, err := store.List(context.Background(), store.UploadsDir())
	if !apperror.IsStorageFault(err) {
		t.Fatalf("expected storage fault, got %v", err)
	}
	if msg := apperror.SafeMessage(err); msg != "Unable to scan files." {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestDirStore_CanceledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Write(ctx, store.UploadsDir(), "a.jpg", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled from Write, got %v", err)
	}
	if _, err := store.List(ctx, store.UploadsDir()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled from List, got %v", err)
	}
}

func TestEnsureDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "a", "b")

	if err := EnsureDirectory(dir); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if err := EnsureDirectory(dir); err != nil {
		t.Fatalf("second call should be a no-op, got %v", err)
	}

	file := filepath.Join(root, "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDirectory(file); !apperror.IsStorageFault(err) {
		t.Errorf("expected storage fault for a regular file, got %v", err)
	}
}
