package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"authrator/internal/model"
	"authrator/internal/service"
)

// SendHandler serves request dispatch, cancellation and preview.
type SendHandler struct {
	dispatcher *service.Dispatcher
	logger     *slog.Logger
}

// NewSendHandler creates a SendHandler.
func NewSendHandler(d *service.Dispatcher, logger *slog.Logger) *SendHandler {
	return &SendHandler{
		dispatcher: d,
		logger:     logger.With("component", "send_handler"),
	}
}

type sendRequest struct {
	RequestID string    `json:"requestId"`
	API       model.API `json:"api"`
}

// Send dispatches the request. Failures of the target or the proxy are
// reported inside the Response, so the status is always 200 once the
// payload decodes.
func (h *SendHandler) Send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	resp := h.dispatcher.Send(c.Request().Context(), req.RequestID, req.API.Descriptor())
	return c.JSON(http.StatusOK, resp)
}

// Cancel aborts an in-flight send.
func (h *SendHandler) Cancel(c echo.Context) error {
	canceled := h.dispatcher.Cancel(c.Param("requestId"))
	return c.JSON(http.StatusOK, map[string]bool{"canceled": canceled})
}

// Build returns the wire request a send would perform, without sending it.
func (h *SendHandler) Build(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.dispatcher.Preview(req.API.Descriptor()))
}
