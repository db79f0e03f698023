package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jtacoma/uritemplates"

	"authrator/internal/config"
	"authrator/internal/metrics"
)

// HTTPError is returned for non-2xx responses from the backend.
type HTTPError struct {
	StatusCode int
	Status     string
	// Message is the server-provided "message" field, when the body had one.
	Message string
	Body    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return "backend: " + e.Status + ": " + e.Message
	}
	return "backend: " + e.Status
}

// ServerMessage returns the message the backend sent with the failure.
func (e *HTTPError) ServerMessage() string {
	return e.Message
}

// BackendClient is a JSON client for the collections backend. Paths are URI
// templates resolved against the configured base URL.
type BackendClient struct {
	httpClient *http.Client
	base       *url.URL
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBackendClient creates a BackendClient. The metrics parameter is optional.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*BackendClient, error) {
	base, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend base_url: %w", err)
	}
	// Relative references resolve under the last path segment only with a
	// trailing slash.
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	return &BackendClient{
		httpClient: newHTTPClient(4, cfg.Backend.TimeoutSeconds),
		base:       base,
		logger:     logger.With("component", "backend_client"),
		metrics:    m,
	}, nil
}

// Template expands a relative URI template such as "apis/{id}" and resolves
// it against the base URL.
func (c *BackendClient) Template(template string, vars map[string]any) (*url.URL, error) {
	tmpl, err := uritemplates.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", template, err)
	}
	expanded, err := tmpl.Expand(vars)
	if err != nil {
		return nil, fmt.Errorf("expand template %q: %w", template, err)
	}
	return c.base.Parse(expanded)
}

// Do performs method on the expanded template. If in is non-nil it is sent
// as the JSON body; if out is non-nil the response body is decoded into it.
func (c *BackendClient) Do(ctx context.Context, method, template string, vars map[string]any, in, out any) error {
	u, err := c.Template(template, vars)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, template, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build backend request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("backend request", "method", method, "path", u.Path)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(metrics.TargetBackend, method).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, template, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(metrics.TargetBackend, method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, template, err)
	}
	return nil
}

// checkStatus returns an *HTTPError for non-2xx responses, keeping the
// server message when the body carries one.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	he := &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(b),
	}

	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &envelope) == nil {
		he.Message = envelope.Message
	}
	return he
}
