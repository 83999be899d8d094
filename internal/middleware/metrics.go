package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"chat-edge/internal/metrics"
	"chat-edge/internal/route"
)

// MetricsMiddleware counts every public request under the route kind it
// classifies to ("chat" or "asset"), with the status the request ends with,
// including statuses the error handler has yet to write.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			req := c.Request()
			m.ObserveRequest(req.Method, statusCode(c, err), route.Classify(req.URL.Path).String(), time.Since(start))
			return err
		}
	}
}
