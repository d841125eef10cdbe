// Package pages holds the few HTML pages the media server renders itself.
// Everything else is JSON, plain text or raw media for the gallery client.
package pages

//go:generate templ generate

import (
	"fmt"
	"net/http"
)

// errorTitle is the heading shown for a status, e.g. "404 Not Found".
func errorTitle(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}
