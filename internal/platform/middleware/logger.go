package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/psicoapp/psicoapp/internal/platform/auth"
)

// Logger writes one access-log line per request. Errors are rendered by the
// HTTP error handler, so the status here is the final one.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			evt := logger.Info()
			switch {
			case status >= 500:
				evt = logger.Error()
			case status >= 400:
				evt = logger.Warn()
			}

			evt = evt.
				Str("request_id", requestID(c)).
				Str("method", req.Method).
				Str("path", c.Path()).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())
			if s, ok := auth.SessionFromContext(c.Request().Context()); ok {
				evt = evt.Str("user_id", s.UserID.String()).Str("role", string(s.Role))
			}
			evt.Msg("request")

			return nil
		}
	}
}
