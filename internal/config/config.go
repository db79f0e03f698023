// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	toml "github.com/pelletier/go-toml/v2"

	"authrator/internal/builder"
)

const (
	defaultProxyURL   = "https://authrator.com/api/api/proxy"
	defaultBackendURL = "https://authrator.com/db-api/api"
)

// CLI holds the global command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to TOML config file.',env='AUTHRATOR_CONFIG'"`
	Host       string `kong:"help='Listen host (overrides config).',env='AUTHRATOR_HOST'"`
	Port       int    `kong:"short='p',help='Listen port (overrides config).',env='AUTHRATOR_PORT'"`
	DataDir    string `kong:"help='Directory for local collections and session (overrides config).',env='AUTHRATOR_DATA_DIR'"`
	ProxyURL   string `kong:"name='proxy-url',help='Proxy endpoint that performs outbound requests (overrides config).',env='AUTHRATOR_PROXY_URL'"`
	BackendURL string `kong:"name='backend-url',help='Base URL of the collections backend (overrides config).',env='AUTHRATOR_BACKEND_URL'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Backend BackendConfig `toml:"backend"`
	Storage StorageConfig `toml:"storage"`
	Request RequestConfig `toml:"request"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds settings for the local HTTP API the panel talks to.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (7337)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ProxyConfig holds the remote proxy that performs outbound requests.
type ProxyConfig struct {
	URL              string `toml:"url"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	IdleConnections  int    `toml:"idle_connections"`
	MaxResponseBytes int64  `toml:"max_response_bytes"`
}

// BackendConfig holds the remote collections backend.
type BackendConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// StorageConfig locates the files used when no user is logged in.
type StorageConfig struct {
	DataDir         string `toml:"data_dir"`
	CollectionsFile string `toml:"collections_file"`
	SessionFile     string `toml:"session_file"`
}

// RequestConfig overrides the request builder's defaults. Booleans are
// pointers because TOML cannot distinguish false from absent.
type RequestConfig struct {
	UserAgent       string `toml:"user_agent"`
	FollowRedirects *bool  `toml:"follow_redirects"`
	TimeoutMs       int    `toml:"timeout_ms"`
	SSLVerification *bool  `toml:"ssl_verification"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// An explicit path (via --config or AUTHRATOR_CONFIG) must exist. Otherwise
// the user config dir and configs/config.toml are searched, and when
// neither exists the defaults are used.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.DataDir != "" {
		c.Storage.DataDir = cli.DataDir
	}
	if cli.ProxyURL != "" {
		c.Proxy.URL = cli.ProxyURL
	}
	if cli.BackendURL != "" {
		c.Backend.BaseURL = cli.BackendURL
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

// validate reports every problem at once.
func (c *Config) validate() error {
	var result *multierror.Error

	if c.Proxy.URL != "" {
		if err := validateRemoteURL(c.Proxy.URL); err != nil {
			result = multierror.Append(result, fmt.Errorf("proxy.url: %w", err))
		}
	}
	if c.Backend.BaseURL != "" {
		if err := validateRemoteURL(c.Backend.BaseURL); err != nil {
			result = multierror.Append(result, fmt.Errorf("backend.base_url: %w", err))
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port))
	}
	if c.Server.BodyMaxBytes < 0 {
		result = multierror.Append(result, fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes))
	}
	if c.Proxy.TimeoutSeconds < 0 {
		result = multierror.Append(result, fmt.Errorf("proxy.timeout_seconds must be non-negative; got %d", c.Proxy.TimeoutSeconds))
	}
	if c.Proxy.IdleConnections < 0 {
		result = multierror.Append(result, fmt.Errorf("proxy.idle_connections must be non-negative; got %d", c.Proxy.IdleConnections))
	}
	if c.Proxy.MaxResponseBytes < 0 {
		result = multierror.Append(result, fmt.Errorf("proxy.max_response_bytes must be non-negative; got %d", c.Proxy.MaxResponseBytes))
	}
	if c.Backend.TimeoutSeconds < 0 {
		result = multierror.Append(result, fmt.Errorf("backend.timeout_seconds must be non-negative; got %d", c.Backend.TimeoutSeconds))
	}
	if c.Request.TimeoutMs < 0 {
		result = multierror.Append(result, fmt.Errorf("request.timeout_ms must be non-negative; got %d", c.Request.TimeoutMs))
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		result = multierror.Append(result, fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond))
	}

	for _, f := range []struct{ key, name string }{
		{"storage.collections_file", c.Storage.CollectionsFile},
		{"storage.session_file", c.Storage.SessionFile},
	} {
		if f.name != "" && filepath.Base(f.name) != f.name {
			result = multierror.Append(result, fmt.Errorf("%s must be a file name, not a path; got %q", f.key, f.name))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		result = multierror.Append(result, fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		result = multierror.Append(result, fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format))
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			result = multierror.Append(result, fmt.Errorf("metrics.path must start with '/'; got %q", p))
		} else {
			for _, reserved := range []string{"/api", "/healthz", "/status"} {
				if p == reserved || strings.HasPrefix(p, reserved+"/") {
					result = multierror.Append(result, fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved))
				}
			}
		}
	}

	return result.ErrorOrNil()
}

// validateRemoteURL requires an absolute URL using HTTPS. Plain HTTP is
// accepted for loopback hosts only.
func validateRemoteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("must be an absolute URL; got %q", raw)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("must use HTTPS for non-loopback hosts; got %q", raw)
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 7337
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Proxy.URL == "" {
		c.Proxy.URL = defaultProxyURL
	}
	if c.Proxy.TimeoutSeconds == 0 {
		// Longer than the 30s transport timeout the proxy applies itself.
		c.Proxy.TimeoutSeconds = 60
	}
	if c.Proxy.IdleConnections == 0 {
		c.Proxy.IdleConnections = 16
	}
	if c.Proxy.MaxResponseBytes == 0 {
		c.Proxy.MaxResponseBytes = 50 * 1024 * 1024 // 50 MB
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaultBackendURL
	}
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 30
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = defaultDataDir()
	}
	if c.Storage.CollectionsFile == "" {
		c.Storage.CollectionsFile = "collections.json"
	}
	if c.Storage.SessionFile == "" {
		c.Storage.SessionFile = "session.json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".authrator"
	}
	return filepath.Join(dir, "authrator")
}

// searchPaths lists paths checked in order when no explicit config is given.
func searchPaths() []string {
	paths := []string{}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "authrator", "config.toml"))
	}
	return append(paths, "configs/config.toml")
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(searchPaths())
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// CollectionsPath is the local collections document.
func (c *StorageConfig) CollectionsPath() string {
	return filepath.Join(c.DataDir, c.CollectionsFile)
}

// SessionPath is the persisted login record.
func (c *StorageConfig) SessionPath() string {
	return filepath.Join(c.DataDir, c.SessionFile)
}

// BuilderOptions returns the request builder options with the configured
// overrides applied.
func (c *RequestConfig) BuilderOptions() builder.Options {
	opts := builder.DefaultOptions()
	if c.UserAgent != "" {
		opts = opts.WithUserAgent(c.UserAgent)
	}
	if c.FollowRedirects != nil {
		opts.Settings.FollowRedirects = *c.FollowRedirects
	}
	if c.TimeoutMs > 0 {
		opts.Settings.Timeout = c.TimeoutMs
	}
	if c.SSLVerification != nil {
		opts.Settings.SSLVerification = *c.SSLVerification
	}
	return opts
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
