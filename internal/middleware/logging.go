// Package middleware provides the HTTP middleware of the media server:
// panic recovery, request logging, security headers, CORS, client IP
// resolution behind proxies, and upload rate limiting. Registration order
// lives in internal/app.
package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// quietPrefixes are paths whose successful requests are logged at debug
// level. A gallery page load fetches every image and thumbnail.
var quietPrefixes = []string{"/uploads/", "/thumbnails/", "/healthz"}

// RequestLogger logs one structured line per request once the response is
// written. Failures are always logged at warn or error.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler write the response so the logged
				// status is the real one.
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
				slog.Int64("bytes_out", res.Size),
			}
			if req.ContentLength > 0 {
				attrs = append(attrs, slog.Int64("bytes_in", req.ContentLength))
			}
			if r := req.Header.Get("Range"); r != "" {
				attrs = append(attrs, slog.String("range", r))
			}

			level := slog.LevelInfo
			switch {
			case res.Status >= 500:
				level = slog.LevelError
			case res.Status >= 400:
				level = slog.LevelWarn
			case isQuiet(req.URL.Path):
				level = slog.LevelDebug
			}

			slog.LogAttrs(req.Context(), level, "request", attrs...)
			return nil
		}
	}
}

func isQuiet(path string) bool {
	for _, p := range quietPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
