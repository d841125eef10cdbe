package media

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/mediashare/internal/apperror"
)

// multipartBody builds an upload form with one part per filename under field.
func multipartBody(t *testing.T, photographer string, field string, filenames ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if photographer != "" {
		if err := w.WriteField(FieldPhotographer, photographer); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range filenames {
		part, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte("payload of " + name))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

// newTestServer wires the media plugin onto a bare Echo instance.
func newTestServer(t *testing.T, maxUploadSize int64) (*echo.Echo, *DirStore, *mockEnqueuer) {
	t.Helper()
	store := newTestStore(t)
	thumbs := &mockEnqueuer{}
	svc := NewMediaService(store, thumbs, ServiceOptions{})
	h := NewHandler(svc, NewMediaIndex(store))

	e := echo.New()
	RegisterRoutes(e, h, store, maxUploadSize)
	return e, store, thumbs
}

func TestUpload_StoresFiles(t *testing.T) {
	e, store, thumbs := newTestServer(t, 0)

	body, ctype := multipartBody(t, "ana", FieldFiles, "beach.jpg", "clip.mp4")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != MsgUploadOK {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	names, err := store.List(req.Context(), store.UploadsDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 stored files, got %v", names)
	}
	for _, name := range names {
		if !strings.HasPrefix(name, "ana_") {
			t.Errorf("unexpected stored name %q", name)
		}
	}
	if len(thumbs.jobs) != 1 {
		t.Errorf("expected 1 thumbnail job, got %v", thumbs.jobs)
	}
}

func TestUpload_LegacyField(t *testing.T) {
	e, store, _ := newTestServer(t, 0)

	body, ctype := multipartBody(t, "", FieldLegacyImages, "old.png")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	names, _ := store.List(req.Context(), store.UploadsDir())
	if len(names) != 1 || !strings.HasPrefix(names[0], "undefined_") {
		t.Errorf("unexpected stored files %v", names)
	}
}

func TestUpload_NoFiles(t *testing.T) {
	store := newTestStore(t)
	h := NewHandler(NewMediaService(store, nil, ServiceOptions{}), NewMediaIndex(store))
	e := echo.New()

	tests := []struct {
		name  string
		build func() *http.Request
	}{
		{"empty multipart form", func() *http.Request {
			body, ctype := multipartBody(t, "ana", FieldFiles)
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set(echo.HeaderContentType, ctype)
			return req
		}},
		{"not multipart", func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("photographerName=ana"))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
			return req
		}},
		{"files under an unknown field", func() *http.Request {
			body, ctype := multipartBody(t, "ana", "attachments", "a.jpg")
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set(echo.HeaderContentType, ctype)
			return req
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(tt.build(), httptest.NewRecorder())
			err := h.Upload(c)

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || appErr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 AppError, got %v", err)
			}
			if appErr.Message != MsgNoFiles {
				t.Errorf("unexpected message %q", appErr.Message)
			}
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	e, store, _ := newTestServer(t, 16)

	body, ctype := multipartBody(t, "ana", FieldFiles, "big.jpg")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	names, _ := store.List(req.Context(), store.UploadsDir())
	if len(names) != 0 {
		t.Errorf("nothing should be stored, got %v", names)
	}
}

func TestListEndpoints(t *testing.T) {
	e, store, _ := newTestServer(t, 0)

	// Empty directory lists encode as [] rather than null.
	for _, path := range []string{"/api/images", "/api/videos", "/api/media", "/api/media/details"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
			t.Errorf("%s: expected [], got %s", path, got)
		}
	}

	seedUploads(t, store, "ana_2024-07-14_09-05-03_a.jpg", "ana_2024-07-14_09-05-03_b.mp4", "notes.txt")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/media", nil))
	var media []string
	if err := json.Unmarshal(rec.Body.Bytes(), &media); err != nil {
		t.Fatalf("decoding media list: %v", err)
	}
	want := []string{"ana_2024-07-14_09-05-03_a.jpg", "ana_2024-07-14_09-05-03_b.mp4"}
	if len(media) != 2 || media[0] != want[0] || media[1] != want[1] {
		t.Errorf("expected images then videos %v, got %v", want, media)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/media/details", nil))
	var details []MediaDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &details); err != nil {
		t.Fatalf("decoding details: %v", err)
	}
	if len(details) != 2 || details[1].ThumbnailURL == "" {
		t.Errorf("unexpected details %+v", details)
	}
}

func TestListEndpoints_StorageFault(t *testing.T) {
	store := newTestStore(t)
	h := NewHandler(NewMediaService(store, nil, ServiceOptions{}), NewMediaIndex(store))
	if err := os.RemoveAll(store.UploadsDir()); err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/images", nil), httptest.NewRecorder())
	if err := h.Images(c); !apperror.IsStorageFault(err) {
		t.Errorf("expected storage fault, got %v", err)
	}
}

func TestStaticRoutes(t *testing.T) {
	e, store, _ := newTestServer(t, 0)

	if err := os.WriteFile(filepath.Join(store.UploadsDir(), "a.jpg"), []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/a.jpg", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "0123456789" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Error("expected cache headers on stored media")
	}

	// Byte ranges are honored for video seeking.
	req := httptest.NewRequest(http.MethodGet, "/uploads/a.jpg", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusPartialContent || rec.Body.String() != "234" {
		t.Errorf("unexpected range response %d %q", rec.Code, rec.Body.String())
	}

	// A missing thumbnail is a plain 404 and must not be cached.
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/thumbnails/missing.jpg", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "" {
		t.Error("misses must not carry cache headers")
	}
}
