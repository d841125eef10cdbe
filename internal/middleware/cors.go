package middleware

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to call the server. ["*"] (the
	// default) allows any: the gallery client usually runs on another port.
	AllowedOrigins []string

	// AllowCredentials lets browsers send cookies cross-origin. The media
	// API is unauthenticated and never needs it.
	AllowCredentials bool
}

// CORS returns echo's CORS middleware configured for the media routes:
// uploads are POSTed from the client, and video players need the range
// headers of cross-origin responses.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	for _, o := range origins {
		if o == "*" && cfg.AllowCredentials {
			slog.Warn("CORS: credentials are not sent for wildcard origins; disabling AllowCredentials")
			cfg.AllowCredentials = false
		}
	}

	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderContentType,
			echo.HeaderXRequestedWith,
			"Range",
		},
		ExposeHeaders: []string{
			"Accept-Ranges",
			echo.HeaderContentLength,
			"Content-Range",
		},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           3600,
	})
}
