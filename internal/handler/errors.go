package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"authrator/internal/client"
	"authrator/internal/service"
	"authrator/internal/session"
	"authrator/internal/store"
)

var (
	// credentialPattern matches Authorization values and key-like query
	// parameters in error messages.
	credentialPattern = regexp.MustCompile(`(?i)((?:basic|bearer)\s+)[A-Za-z0-9._~+/=-]+`)
	queryValuePattern = regexp.MustCompile(`(?i)([?&](?:api[-_]?key|key|token|access_token|password|secret)=)[^&\s"]+`)
)

// sanitizeError redacts credentials from error messages before logging.
func sanitizeError(err error) string {
	s := credentialPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
	return queryValuePattern.ReplaceAllString(s, "${1}[REDACTED]")
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

// mapError logs err and writes the matching JSON error response.
func mapError(c echo.Context, logger *slog.Logger, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return err
	}

	code, msg := classify(err)
	level := slog.LevelWarn
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(c.Request().Context(), level, "request failed",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
		"status", code,
	)
	return errorJSON(c, code, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrAPINotFound):
		return http.StatusNotFound, "api not found"
	case errors.Is(err, store.ErrCollectionNotFound):
		return http.StatusNotFound, "collection not found"
	case errors.Is(err, session.ErrNotLoggedIn):
		return http.StatusUnauthorized, "not logged in"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "backend request timed out"
	}

	var backendErr *client.HTTPError
	if errors.As(err, &backendErr) {
		if backendErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound, "not found on backend"
		}
		return http.StatusBadGateway, "backend request failed"
	}
	if errors.Is(err, store.ErrRemote) {
		return http.StatusBadGateway, "backend request failed"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return http.StatusBadGateway, "backend host unreachable"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return http.StatusBadGateway, "backend connection failed"
	}

	return http.StatusInternalServerError, "internal error"
}
