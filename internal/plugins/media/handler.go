package media

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/mediashare/internal/apperror"
)

// Multipart field names of the upload form. Files are read from "files";
// "images" is the field older clients used and is still accepted.
const (
	FieldFiles        = "files"
	FieldLegacyImages = "images"
	FieldPhotographer = "photographerName"
)

// Handler handles HTTP requests for media operations.
type Handler struct {
	service MediaService
	index   MediaIndex
}

// NewHandler creates a new media handler.
func NewHandler(service MediaService, index MediaIndex) *Handler {
	return &Handler{service: service, index: index}
}

// Upload handles multipart uploads (POST /upload). Responds with a short
// plain-text message; errors go through the central error handler.
func (h *Handler) Upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.NewTooLarge("The upload is too large.")
		}
		return apperror.NewBadRequest(MsgNoFiles)
	}

	headers := form.File[FieldFiles]
	if len(headers) == 0 {
		headers = form.File[FieldLegacyImages]
	}

	batch := UploadBatch{
		Photographer: firstValue(form, FieldPhotographer),
		Files:        make([]UploadFile, 0, len(headers)),
	}
	for _, fh := range headers {
		batch.Files = append(batch.Files, UploadFile{
			Name: fh.Filename,
			Open: openHeader(fh),
		})
	}

	if _, err := h.service.Ingest(c.Request().Context(), batch); err != nil {
		return err
	}
	return c.String(http.StatusOK, MsgUploadOK)
}

// Images lists stored images (GET /api/images).
func (h *Handler) Images(c echo.Context) error {
	names, err := h.index.Images(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, names)
}

// Videos lists stored videos (GET /api/videos).
func (h *Handler) Videos(c echo.Context) error {
	names, err := h.index.Videos(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, names)
}

// Media lists images followed by videos (GET /api/media).
func (h *Handler) Media(c echo.Context) error {
	names, err := h.index.Media(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, names)
}

// Details lists decoded metadata for every indexed file (GET /api/media/details).
func (h *Handler) Details(c echo.Context) error {
	details, err := h.index.Details(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, details)
}

// openHeader adapts a multipart header to UploadFile.Open.
func openHeader(fh *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return fh.Open()
	}
}

// firstValue returns the first value of a text field, or "".
func firstValue(form *multipart.Form, field string) string {
	if vals := form.Value[field]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}
