package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/mediashare/internal/apperror"
)

// Recovery turns a panicking handler into a 500 so one bad upload cannot
// take the process down. The stack is logged here; the returned error
// carries only the panic value.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					// The client went away mid-response; net/http handles this.
					panic(r)
				}

				slog.Error("panic recovered",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", c.Request().Method),
					slog.String("path", c.Request().URL.Path),
					slog.String("remote_ip", c.RealIP()),
				)
				err = apperror.NewInternal(fmt.Errorf("panic: %v", r))
			}()

			return next(c)
		}
	}
}
