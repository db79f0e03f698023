package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"

	"authrator/internal/builder"
	"authrator/internal/client"
	"authrator/internal/config"
	"authrator/internal/metrics"
	"authrator/internal/service"
	"authrator/internal/session"
	"authrator/internal/store"
)

type fixture struct {
	e          *echo.Echo
	cfg        *config.Config
	workspace  *service.Workspace
	dispatcher *service.Dispatcher
}

// newFixture wires the full handler stack against an in-memory filesystem
// and the given fake proxy and backend.
func newFixture(t *testing.T, proxy, backend http.HandlerFunc) *fixture {
	t.Helper()

	if proxy == nil {
		proxy = func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	}
	if backend == nil {
		backend = func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }
	}
	proxySrv := httptest.NewServer(proxy)
	t.Cleanup(proxySrv.Close)
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	return buildFixture(t, proxySrv.URL, backendSrv.URL+"/api")
}

// newFixtureWithProxyURL wires the stack against a proxy URL that is not
// served by the test.
func newFixtureWithProxyURL(t *testing.T, proxyURL string) *fixture {
	t.Helper()
	backendSrv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(backendSrv.Close)
	return buildFixture(t, proxyURL, backendSrv.URL+"/api")
}

func buildFixture(t *testing.T, proxyURL, backendURL string) *fixture {
	t.Helper()

	cfg := &config.Config{
		Proxy:   config.ProxyConfig{URL: proxyURL, TimeoutSeconds: 5, IdleConnections: 2, MaxResponseBytes: 1 << 20},
		Backend: config.BackendConfig{BaseURL: backendURL, TimeoutSeconds: 5},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	fs := afero.NewMemMapFs()

	bc, err := client.NewBackendClient(cfg, logger, m)
	if err != nil {
		t.Fatalf("NewBackendClient: %v", err)
	}
	sess := session.New(fs, "/data/session.json", bc, logger)
	local := store.NewLocalStore(fs, "/data/collections.json", logger)
	remote := store.NewRemoteStore(bc, sess.UserID, logger)
	ws := service.NewWorkspace(sess, local, remote, logger)
	d := service.NewDispatcher(builder.New(builder.DefaultOptions()), client.NewProxyClient(cfg, logger, m), m, logger)

	e := echo.New()
	RegisterRoutes(e,
		NewWorkspaceHandler(ws, logger),
		NewSendHandler(d, logger),
		NewHealthHandler(cfg, "test", ws, d),
	)
	return &fixture{e: e, cfg: cfg, workspace: ws, dispatcher: d}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return v
}
