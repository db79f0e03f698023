package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"go.uber.org/fx"

	"authrator/internal/builder"
	"authrator/internal/client"
	"authrator/internal/config"
	"authrator/internal/handler"
	"authrator/internal/metrics"
	"authrator/internal/middleware"
	"authrator/internal/service"
	"authrator/internal/session"
	"authrator/internal/store"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cli struct {
	config.CLI `kong:"embed"`

	Version kong.VersionFlag `kong:"help='Print version and exit.'"`

	Serve  serveCmd  `kong:"cmd,default='1',help='Run the local API server for the panel (default).'"`
	Send   sendCmd   `kong:"cmd,help='Send a request descriptor through the proxy and print the response.'"`
	Login  loginCmd  `kong:"cmd,help='Log in to the collections backend.'"`
	Logout logoutCmd `kong:"cmd,help='Forget the stored session.'"`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("authrator"),
		kong.Description("Backend for the Authrator REST API client."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
		kong.Bind(&c.CLI),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

// core wires everything below the HTTP surface. It has no lifecycle hooks
// so one-shot commands can build it without starting anything.
func core(cli *config.CLI) fx.Option {
	return fx.Options(
		fx.Provide(
			func() *config.CLI { return cli },
			config.Load,
			metrics.New,
			afero.NewOsFs,
			client.NewProxyClient,
			client.NewBackendClient,
			newSession,
			newWorkspace,
			newDispatcher,
		),
		fx.Invoke(warnConfigPermissions),
	)
}

func newLogger(w io.Writer) func(cfg *config.Config) *slog.Logger {
	return func(cfg *config.Config) *slog.Logger {
		level := slog.LevelInfo
		switch strings.ToLower(cfg.Log.Level) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		opts := &slog.HandlerOptions{Level: level}

		var h slog.Handler
		switch strings.ToLower(cfg.Log.Format) {
		case "text":
			h = slog.NewTextHandler(w, opts)
		default:
			h = slog.NewJSONHandler(w, opts)
		}

		return slog.New(h)
	}
}

func newSession(cfg *config.Config, fs afero.Fs, bc *client.BackendClient, logger *slog.Logger) *session.Session {
	return session.New(fs, cfg.Storage.SessionPath(), bc, logger)
}

func newWorkspace(cfg *config.Config, fs afero.Fs, sess *session.Session, bc *client.BackendClient, logger *slog.Logger) *service.Workspace {
	local := store.NewLocalStore(fs, cfg.Storage.CollectionsPath(), logger)
	remote := store.NewRemoteStore(bc, sess.UserID, logger)
	return service.NewWorkspace(sess, local, remote, logger)
}

func newDispatcher(cfg *config.Config, pc *client.ProxyClient, m *metrics.Metrics, logger *slog.Logger) *service.Dispatcher {
	return service.NewDispatcher(builder.New(cfg.Request.BuilderOptions()), pc, m, logger)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// WriteTimeout stays disabled: a send may legitimately wait on the proxy
	// for as long as the proxy client timeout allows.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.LocalCORS())
	e.Use(middleware.LocalOrigin())

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimiter(cfg.Server.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m, cfg.Metrics.Path))
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server",
				"addr", addr,
				"proxy_url", client.RedactURL(cfg.Proxy.URL),
				"backend_url", client.RedactURL(cfg.Backend.BaseURL),
			)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}

type serveCmd struct{}

func (serveCmd) Run(cli *config.CLI) error {
	fx.New(
		core(cli),
		fx.Provide(
			newLogger(os.Stdout),
			newEcho,
			func() handler.Version { return handler.Version(version) },
			handler.NewWorkspaceHandler,
			handler.NewSendHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, startServer),
	).Run()
	return nil
}
