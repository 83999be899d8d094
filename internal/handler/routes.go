package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-edge/internal/config"
	"chat-edge/internal/metrics"
)

// RegisterRoutes sends every method and path on the public listener to the
// router, so classification alone decides how a request is handled.
//
// Any only covers the methods echo knows by name. The RouteNotFound handlers
// take the rest (PURGE, LOCK, QUERY, ...), which would otherwise end as a 405
// from the echo router before reaching the router.
func RegisterRoutes(e *echo.Echo, router *RouterHandler) {
	for _, p := range []string{"/", "/*"} {
		e.Any(p, router.Handle)
		e.RouteNotFound(p, router.Handle)
	}
}

// RegisterAdminRoutes wires the health, status and metrics endpoints onto the
// admin listener.
func RegisterAdminRoutes(e *echo.Echo, cfg *config.Config, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)
	e.GET(cfg.Admin.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}
