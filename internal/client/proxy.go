// Package client provides the outbound HTTP clients: the proxy that performs
// user requests and the collections backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"authrator/internal/config"
	"authrator/internal/metrics"
	"authrator/internal/model"
)

// ErrResponseTooLarge is returned when the proxied response exceeds the
// configured size limit.
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// StatusError is returned when the proxy answers with a non-2xx status.
type StatusError struct {
	Status     int
	StatusText string
	Headers    []model.KeyValue
	Body       string
}

func (e *StatusError) Error() string {
	return "request failed with status code " + strconv.Itoa(e.Status)
}

// ProxyClient posts wire requests to the remote proxy, which performs them
// against the user's target.
type ProxyClient struct {
	httpClient *http.Client
	url        string
	maxBody    int64
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewProxyClient creates a ProxyClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewProxyClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyClient {
	return &ProxyClient{
		httpClient: newHTTPClient(cfg.Proxy.IdleConnections, cfg.Proxy.TimeoutSeconds),
		url:        cfg.Proxy.URL,
		maxBody:    cfg.Proxy.MaxResponseBytes,
		logger:     logger.With("component", "proxy_client"),
		metrics:    m,
	}
}

func newHTTPClient(idle, timeoutSeconds int) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        idle,
		MaxIdleConnsPerHost: idle,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(timeoutSeconds) * time.Second,
	}
}

// Send performs wr through the proxy. A non-2xx answer is returned as a
// *StatusError; network failures, timeouts and cancellation are returned
// wrapped. The context controls the lifetime of the call.
func (c *ProxyClient) Send(ctx context.Context, wr model.WireRequest) (*model.Response, error) {
	payload, err := json.Marshal(wr)
	if err != nil {
		return nil, fmt.Errorf("encode wire request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	c.logger.Debug("proxy request",
		"method", wr.Method,
		"url", RedactURL(wr.URL),
		"body_type", wr.BodyType,
	)

	method := metrics.NormalizeMethod(string(wr.Method))
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, start, 0)
		return nil, fmt.Errorf("proxy request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readLimited(resp.Body, c.maxBody)
	elapsed := time.Since(start)
	c.observe(method, start, resp.StatusCode)
	if err != nil {
		return nil, fmt.Errorf("read proxy response: %w", err)
	}

	statusText := statusText(resp)
	headers := sortedHeaders(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Status:     resp.StatusCode,
			StatusText: statusText,
			Headers:    headers,
			Body:       string(body),
		}
	}

	return &model.Response{
		Status:     resp.StatusCode,
		StatusText: statusText,
		Headers:    headers,
		Body:       string(body),
		Size:       int64(len(body)),
		ElapsedMs:  elapsed.Milliseconds(),
	}, nil
}

func (c *ProxyClient) observe(method string, start time.Time, status int) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(metrics.TargetProxy, method).Observe(time.Since(start).Seconds())
	if status != 0 {
		c.metrics.UpstreamResponses.WithLabelValues(metrics.TargetProxy, method, strconv.Itoa(status)).Inc()
	}
}

// readLimited reads r fully, failing once more than limit bytes arrive.
// A limit of zero or less disables the check.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, ErrResponseTooLarge
	}
	return b, nil
}

// statusText returns the reason phrase the server sent, falling back to the
// standard text for the code.
func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// sortedHeaders flattens h into key/value pairs ordered by key.
func sortedHeaders(h http.Header) []model.KeyValue {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]model.KeyValue, 0, len(h))
	for _, k := range keys {
		for _, v := range h[k] {
			out = append(out, model.KeyValue{Key: k, Value: v})
		}
	}
	return out
}

// RedactURL replaces every query value in raw so the URL can be logged.
// Unparseable input is dropped entirely.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable url]"
	}
	u.User = nil
	if u.RawQuery == "" {
		return u.String()
	}
	q := u.Query()
	for k := range q {
		q[k] = []string{"REDACTED"}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
