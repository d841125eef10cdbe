package app

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/mediashare/internal/apperror"
	"github.com/keyxmakerx/mediashare/internal/middleware"
	"github.com/keyxmakerx/mediashare/internal/plugins/media"
)

// RegisterRoutes sets up all application routes. It registers public routes
// directly and delegates to the media plugin's route registration.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Health check endpoint for container health monitoring. Both storage
	// directories must be readable for the server to be useful.
	e.GET("/healthz", func(c echo.Context) error {
		ctx := c.Request().Context()
		for _, dir := range []string{a.Store.UploadsDir(), a.Store.ThumbnailsDir()} {
			_, err := a.Store.List(ctx, dir)
			if apperror.IsStorageFault(err) {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "storage unavailable"})
			}
			if err != nil {
				return err
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// --- Media plugin ---
	service := media.NewMediaService(a.Store, a.Thumbnails, media.ServiceOptions{
		MaxFiles: a.Config.Storage.MaxFilesPerUpload,
	})
	index := media.NewMediaIndex(a.Store)
	handler := media.NewHandler(service, index)

	media.RegisterRoutes(e, handler, a.Store, a.Config.Storage.MaxUploadSize, a.uploadRateLimit())
}

// uploadRateLimit limits uploads per client IP per minute. Counters are
// shared through Redis when it is configured, otherwise kept in memory.
func (a *App) uploadRateLimit() echo.MiddlewareFunc {
	perMinute := a.Config.Redis.UploadRateLimit
	if perMinute <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if a.Redis != nil {
		return middleware.RateLimitBy(middleware.NewRedisLimiter(a.Redis, "ratelimit:upload", perMinute, time.Minute))
	}
	return middleware.RateLimit(perMinute, time.Minute)
}
