package middleware

import (
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// WantsHTML returns true if the client is a browser navigation that prefers
// an HTML page over JSON or plain text. XHR/fetch clients such as axios send
// "application/json, text/plain, */*" and therefore get plain text.
func WantsHTML(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get("Accept"), "text/html")
}

// Render writes a Templ component to the response with the given status code.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(statusCode)
	return component.Render(c.Request().Context(), c.Response().Writer)
}
