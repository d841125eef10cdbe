// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 5000).
	Port int

	// BaseURL is the public-facing URL of the server.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// ShutdownTimeout bounds how long in-flight requests and queued
	// thumbnail jobs get to finish on SIGTERM.
	ShutdownTimeout time.Duration

	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string

	// Redis holds optional Redis connection settings.
	Redis RedisConfig

	// Storage holds the on-disk layout and upload limits.
	Storage StorageConfig

	// Thumbnail holds video thumbnail derivation settings.
	Thumbnail ThumbnailConfig
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	// Empty disables Redis; rate limiting then falls back to process memory.
	URL string

	// UploadRateLimit is the number of uploads allowed per client IP per minute.
	UploadRateLimit int
}

// Enabled reports whether a Redis URL was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// StorageConfig holds the two flat storage directories and upload limits.
type StorageConfig struct {
	// UploadsDir holds original uploaded media.
	UploadsDir string

	// ThumbnailsDir holds derived video thumbnails.
	ThumbnailsDir string

	// MaxUploadSize is the maximum request body size in bytes (0 = unlimited).
	MaxUploadSize int64

	// MaxFilesPerUpload caps the number of files in one batch (0 = unlimited).
	MaxFilesPerUpload int
}

// ThumbnailConfig holds settings for the ffmpeg-driven thumbnail deriver.
type ThumbnailConfig struct {
	FFmpegPath  string
	FFprobePath string

	// Width and Height are the exact raster size of every thumbnail.
	Width  int
	Height int

	// Timeout bounds a single derivation (probe + frame extraction).
	Timeout time.Duration

	// Workers is the number of concurrent decoder processes.
	Workers int

	// QueueSize is how many pending jobs may wait before new ones are dropped.
	QueueSize int
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if a value is present but unusable.
func Load() (*Config, error) {
	cfg := &Config{
		Env:             getEnv("ENV", "development"),
		Port:            getEnvInt("PORT", 5000),
		BaseURL:         getEnv("BASE_URL", "http://localhost:5000"),
		LogLevel:        getEnv("LOG_LEVEL", "debug"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSOrigins:     getEnvList("CORS_ORIGINS", []string{"*"}),

		Redis: RedisConfig{
			URL:             getEnv("REDIS_URL", ""),
			UploadRateLimit: getEnvInt("UPLOAD_RATE_LIMIT", 30),
		},

		Storage: StorageConfig{
			UploadsDir:        getEnv("UPLOADS_DIR", "./uploads"),
			ThumbnailsDir:     getEnv("THUMBNAILS_DIR", "./thumbnails"),
			MaxUploadSize:     getEnvInt64("MAX_UPLOAD_SIZE", 0),
			MaxFilesPerUpload: getEnvInt("MAX_FILES_PER_UPLOAD", 0),
		},

		Thumbnail: ThumbnailConfig{
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
			Width:       getEnvInt("THUMBNAIL_WIDTH", 320),
			Height:      getEnvInt("THUMBNAIL_HEIGHT", 240),
			Timeout:     getEnvDuration("THUMBNAIL_TIMEOUT", 30*time.Second),
			Workers:     getEnvInt("THUMBNAIL_WORKERS", 2),
			QueueSize:   getEnvInt("THUMBNAIL_QUEUE_SIZE", 256),
		},
	}

	if cfg.Storage.UploadsDir == "" || cfg.Storage.ThumbnailsDir == "" {
		return nil, fmt.Errorf("UPLOADS_DIR and THUMBNAILS_DIR must not be empty")
	}
	if cfg.Thumbnail.Width <= 0 || cfg.Thumbnail.Height <= 0 {
		return nil, fmt.Errorf("thumbnail size must be positive, got %dx%d",
			cfg.Thumbnail.Width, cfg.Thumbnail.Height)
	}
	if cfg.Thumbnail.Workers < 1 {
		cfg.Thumbnail.Workers = 1
	}
	if cfg.Thumbnail.QueueSize < 0 {
		cfg.Thumbnail.QueueSize = 0
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvInt64 reads an int64 env var or returns the default.
func getEnvInt64(key string, defaultVal int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "30s") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping blank entries.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
