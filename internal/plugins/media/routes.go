package media

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all media-related routes on the given Echo instance.
// maxUploadSize limits the upload request body (0 disables the limit) so
// oversized payloads are rejected before they are spooled to disk. Extra
// middleware (rate limiting) is applied to the upload route only.
func RegisterRoutes(e *echo.Echo, h *Handler, store Store, maxUploadSize int64, uploadMw ...echo.MiddlewareFunc) {
	// Public static files. Generated names never change, so cache forever.
	e.Group(UploadsURLPrefix, immutableCache()).Static("/", store.UploadsDir())
	e.Group(ThumbnailsURLPrefix, immutableCache()).Static("/", store.ThumbnailsDir())

	if maxUploadSize > 0 {
		// 10% margin for multipart encoding overhead.
		uploadMw = append(uploadMw, bodyLimitMiddleware(maxUploadSize+maxUploadSize/10))
	}
	e.POST("/upload", h.Upload, uploadMw...)

	api := e.Group("/api")
	api.GET("/images", h.Images)
	api.GET("/videos", h.Videos)
	api.GET("/media", h.Media)
	api.GET("/media/details", h.Details)
}

// immutableCache marks static responses as cacheable for a year. Misses
// are not cached: a thumbnail may appear after its video was listed.
func immutableCache() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			err := next(c)
			if err != nil {
				c.Response().Header().Del("Cache-Control")
			}
			return err
		}
	}
}

// bodyLimitMiddleware returns middleware that rejects request bodies exceeding
// the given size in bytes. Applied before the handler parses the form.
func bodyLimitMiddleware(maxBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().ContentLength > maxBytes {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
					fmt.Sprintf("The upload is too large; the maximum is %d MB.", maxBytes/(1024*1024)))
			}
			c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxBytes)
			return next(c)
		}
	}
}
