package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"chat-edge/internal/route"
)

// RequestLogger writes one record per public request. 5xx answers log at
// error level and 4xx at warn, so a missing backend URL or asset capability
// stands out from ordinary traffic.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			status := statusCode(c, err)

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"route", route.Classify(req.URL.Path).String(),
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", GetRequestID(c),
				"remote_ip", c.RealIP(),
				"bytes_out", c.Response().Size,
			}
			if err != nil {
				attrs = append(attrs, "err", err.Error())
			}
			logger.Log(req.Context(), levelFor(status), "request", attrs...)

			return err
		}
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
