package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"authrator/internal/builder"
	"authrator/internal/config"
	"authrator/internal/metrics"
	"authrator/internal/model"
)

func newTestProxyClient(t *testing.T, url string, maxBody int64) *ProxyClient {
	t.Helper()
	cfg := &config.Config{
		Proxy: config.ProxyConfig{
			URL:              url,
			TimeoutSeconds:   10,
			IdleConnections:  2,
			MaxResponseBytes: maxBody,
		},
	}
	return NewProxyClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.New())
}

func TestProxyClient_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("X-B", "2")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("X-A", "1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestProxyClient(t, srv.URL, 1<<20)
	wr := builder.Build(model.Descriptor{
		Method: model.MethodPost,
		URL:    "https://example.com/items",
		Body:   model.RawString(`{"a":1}`),
	})

	resp, err := c.Send(context.Background(), wr)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if resp.Status != http.StatusCreated {
		t.Errorf("Status = %d, want %d", resp.Status, http.StatusCreated)
	}
	if resp.StatusText != "Created" {
		t.Errorf("StatusText = %q, want %q", resp.StatusText, "Created")
	}
	if resp.Body != `{"ok":true}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.Size != int64(len(`{"ok":true}`)) {
		t.Errorf("Size = %d", resp.Size)
	}
	if resp.ElapsedMs < 0 {
		t.Errorf("ElapsedMs = %d, want >= 0", resp.ElapsedMs)
	}

	var keys []string
	for _, h := range resp.Headers {
		keys = append(keys, h.Key)
	}
	if strings.Join(keys, ",") != "Content-Length,Content-Type,Date,X-A,X-B" {
		t.Errorf("header order = %v", keys)
	}

	if got["method"] != "POST" || got["url"] != "https://example.com/items" {
		t.Errorf("forwarded request = %v", got)
	}
	if got["bodyType"] != "raw" {
		t.Errorf("bodyType = %v, want raw", got["bodyType"])
	}
	settings, _ := got["settings"].(map[string]any)
	if settings["timeout"] != float64(30000) {
		t.Errorf("settings.timeout = %v, want 30000", settings["timeout"])
	}
}

func TestProxyClient_Send_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no such route"}`))
	}))
	defer srv.Close()

	c := newTestProxyClient(t, srv.URL, 0)
	_, err := c.Send(context.Background(), builder.Build(model.Descriptor{URL: "https://example.com"}))

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Status != http.StatusNotFound || se.StatusText != "Not Found" {
		t.Errorf("StatusError = %d %q", se.Status, se.StatusText)
	}
	if se.Body != `{"error":"no such route"}` {
		t.Errorf("Body = %q", se.Body)
	}
	if se.Error() != "request failed with status code 404" {
		t.Errorf("Error() = %q", se.Error())
	}
}

func TestProxyClient_Send_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	c := newTestProxyClient(t, srv.URL, 16)
	_, err := c.Send(context.Background(), builder.Build(model.Descriptor{URL: "https://example.com"}))
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Errorf("error = %v, want ErrResponseTooLarge", err)
	}
}

func TestProxyClient_Send_Unreachable(t *testing.T) {
	c := newTestProxyClient(t, "http://127.0.0.1:1/proxy", 0)
	_, err := c.Send(context.Background(), builder.Build(model.Descriptor{URL: "https://example.com"}))
	if err == nil {
		t.Fatal("Send() expected error for unreachable proxy, got nil")
	}
	var se *StatusError
	if errors.As(err, &se) {
		t.Errorf("unreachable proxy should not yield a StatusError: %v", err)
	}
}

func TestProxyClient_Send_CanceledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestProxyClient(t, srv.URL, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, builder.Build(model.Descriptor{URL: "https://example.com"}))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/a", "https://example.com/a"},
		{"https://example.com/a?key=secret", "https://example.com/a?key=REDACTED"},
		{"https://u:p@example.com/a?x=1&y=2", "https://example.com/a?x=REDACTED&y=REDACTED"},
		{"://bad", "[unparseable url]"},
	}
	for _, tt := range tests {
		if got := RedactURL(tt.in); got != tt.want {
			t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
