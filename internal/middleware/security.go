package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns middleware that sets security-related HTTP headers
// on every response. These headers protect against common web attacks even
// if application-level vulnerabilities exist.
//
// The server only returns JSON, plain text, stored media and a minimal error
// page, so the CSP is far tighter than a full web UI would allow. Stored
// media is embedded by a gallery client on another origin, which is why the
// resource policy is cross-origin.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// Content-Security-Policy: nothing served here runs scripts.
			// Inline styles are needed for the error page only.
			h.Set("Content-Security-Policy",
				"default-src 'none'; "+
					"style-src 'unsafe-inline'; "+
					"img-src 'self' data:; "+
					"media-src 'self'; "+
					"frame-ancestors 'none'; "+
					"base-uri 'none'; "+
					"form-action 'none'",
			)

			// Cross-Origin-Resource-Policy: allow <img>/<video> embedding from
			// the gallery client's origin.
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")

			// X-Content-Type-Options: prevent MIME type sniffing. Uploaded files
			// are attacker-controlled and served with an extension-derived type.
			h.Set("X-Content-Type-Options", "nosniff")

			// X-Frame-Options: prevent clickjacking (redundant with CSP frame-ancestors
			// but some older browsers only support this header).
			h.Set("X-Frame-Options", "DENY")

			// Referrer-Policy: limit referrer information leaked to external sites.
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			return next(c)
		}
	}
}
