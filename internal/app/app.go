// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (storage directories,
// thumbnail queue, optional Redis client, Echo instance) and wires the
// media plugin into the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/mediashare/internal/apperror"
	"github.com/keyxmakerx/mediashare/internal/config"
	"github.com/keyxmakerx/mediashare/internal/middleware"
	"github.com/keyxmakerx/mediashare/internal/plugins/media"
	"github.com/keyxmakerx/mediashare/internal/templates/pages"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// Redis is the optional client for shared rate-limit counters (nil when
	// REDIS_URL is unset).
	Redis *redis.Client

	// Store owns the uploads and thumbnails directories.
	Store *media.DirStore

	// Thumbnails runs video thumbnail derivation in the background.
	Thumbnails *media.ThumbnailQueue

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	backfillCtx    context.Context
	cancelBackfill context.CancelFunc
}

// New creates a new App: it ensures the storage directories exist, starts
// the thumbnail workers and configures the Echo server with global
// middleware and error handling.
func New(cfg *config.Config, rdb *redis.Client) (*App, error) {
	store, err := media.NewDirStore(cfg.Storage.UploadsDir, cfg.Storage.ThumbnailsDir)
	if err != nil {
		return nil, fmt.Errorf("preparing storage: %w", err)
	}

	deriver := media.NewFFmpegDeriver(store, media.FFmpegOptions{
		FFmpegPath:  cfg.Thumbnail.FFmpegPath,
		FFprobePath: cfg.Thumbnail.FFprobePath,
		Width:       cfg.Thumbnail.Width,
		Height:      cfg.Thumbnail.Height,
		Timeout:     cfg.Thumbnail.Timeout,
	})
	queue := media.NewThumbnailQueue(deriver, store, cfg.Thumbnail.Workers, cfg.Thumbnail.QueueSize)

	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Trust forwarding headers only from private networks so c.RealIP()
	// returns the actual client behind a reverse proxy.
	middleware.TrustedProxies(e, []string{
		"127.0.0.0/8",    // Localhost
		"10.0.0.0/8",     // Docker default bridge
		"172.16.0.0/12",  // Docker bridge (alternate range)
		"192.168.0.0/16", // Common LAN
		"fd00::/8",       // IPv6 private
	})

	backfillCtx, cancelBackfill := context.WithCancel(context.Background())
	app := &App{
		Config:         cfg,
		Redis:          rdb,
		Store:          store,
		Thumbnails:     queue,
		Echo:           e,
		backfillCtx:    backfillCtx,
		cancelBackfill: cancelBackfill,
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app, nil
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- log every request with method, path, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	// Security headers -- CSP, nosniff, frame and resource policies.
	a.Echo.Use(middleware.SecurityHeaders())

	// CORS -- the gallery client is typically served from another origin.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: a.Config.CORSOrigins,
	}))
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to HTTP responses: JSON for /api requests, an HTML page for
// browser navigations, and a short plain-text message for everything else
// (which is what upload clients expect).
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "An unexpected error occurred."

	// Check if it's our domain error type.
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = apperror.SafeCode(err)
		message = apperror.SafeMessage(err)

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else {
		// Check for Echo's built-in HTTP errors (e.g., 404 from router).
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			} else {
				message = defaultErrorMessage(code)
			}
		} else {
			// Truly unexpected error -- log it.
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
			)
		}
	}

	var writeErr error
	switch {
	case c.Request().Method == http.MethodHead:
		writeErr = c.NoContent(code)
	case isAPIRequest(c):
		writeErr = c.JSON(code, map[string]string{
			"error":   http.StatusText(code),
			"message": message,
		})
	case middleware.WantsHTML(c):
		writeErr = middleware.Render(c, code, pages.ErrorPage(code, message))
	default:
		writeErr = c.String(code, message)
	}
	if writeErr != nil {
		slog.Warn("writing error response failed", slog.Any("error", writeErr))
	}
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusNotFound:
		return "The file you're looking for doesn't exist."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusRequestEntityTooLarge:
		return "The upload is too large."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusInternalServerError:
		return "Something went wrong on our end. Please try again."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}

// isAPIRequest returns true if the request is targeting the API (JSON response expected).
func isAPIRequest(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/")
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting media server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("uploads_dir", a.Store.UploadsDir()),
		slog.String("thumbnails_dir", a.Store.ThumbnailsDir()),
	)
	go a.BackfillThumbnails()
	return a.Echo.Start(addr)
}

// BackfillThumbnails queues thumbnails for stored videos that lack one. It
// runs once per start and stops when Shutdown begins.
func (a *App) BackfillThumbnails() {
	n, err := a.Thumbnails.Backfill(a.backfillCtx)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, media.ErrQueueClosed):
		slog.Debug("thumbnail backfill interrupted", slog.Int("queued", n))
	case err != nil:
		slog.Warn("thumbnail backfill failed", slog.Int("queued", n), slog.Any("error", err))
	case n > 0:
		slog.Info("queued missing thumbnails", slog.Int("count", n))
	}
}

// Shutdown drains in-flight requests, then lets queued thumbnail jobs
// finish, both bounded by ctx.
func (a *App) Shutdown(ctx context.Context) error {
	a.cancelBackfill()
	httpErr := a.Echo.Shutdown(ctx)
	queueErr := a.Thumbnails.Shutdown(ctx)

	stats := a.Thumbnails.Stats()
	slog.Info("thumbnail queue stopped",
		slog.Int64("derived", stats.Derived),
		slog.Int64("failed", stats.Failed),
		slog.Int64("dropped", stats.Dropped),
	)
	return errors.Join(httpErr, queueErr)
}
