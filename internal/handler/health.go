package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"authrator/internal/config"
	"authrator/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg        *config.Config
	version    Version
	workspace  *service.Workspace
	dispatcher *service.Dispatcher
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, ws *service.Workspace, d *service.Dispatcher) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, workspace: ws, dispatcher: d}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the version, the configured endpoints and where
// collections are currently stored.
func (h *HealthHandler) Status(c echo.Context) error {
	storage := "local"
	if h.workspace.Remote() {
		storage = "remote"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     string(h.version),
		"proxy_url":   h.cfg.Proxy.URL,
		"backend_url": h.cfg.Backend.BaseURL,
		"storage":     storage,
		"in_flight":   h.dispatcher.InFlight(),
	})
}
