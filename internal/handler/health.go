package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"chat-edge/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves the admin health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports how the router is configured. The model API key is never
// included.
func (h *HealthHandler) Status(c echo.Context) error {
	backend := "ok"
	if _, err := h.cfg.Backend.BaseURL(); err != nil {
		backend = err.Error()
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":         "ok",
		"version":        string(h.version),
		"backend_url":    h.cfg.Backend.URL,
		"backend_status": backend,
		"assets":         h.cfg.Assets.Mode(),
		"model":          h.cfg.Gemini.Model,
	})
}
