// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/chat-edge/config.toml",
	"configs/config.toml",
}

// DefaultModel is used when no model identifier is configured.
const DefaultModel = "gemini-2.5-flash"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to TOML or YAML config file.',env='CONFIG_PATH'"`
	Host       string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BackendURL string `kong:"help='Chat backend base URL (overrides config).',env='BACKEND_URL'"`
	AssetsDir  string `kong:"help='Directory with the static UI (overrides config).',env='ASSETS_DIR'"`
	Model      string `kong:"help='Model identifier for the backend (overrides config).',env='GEMINI_MODEL'"`
	APIKey     string `kong:"help='Backend model API key (overrides config).',env='GEMINI_API_KEY'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration. It is loaded once at
// startup and treated as read-only afterwards.
type Config struct {
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Backend BackendConfig `toml:"backend" yaml:"backend"`
	Assets  AssetsConfig  `toml:"assets" yaml:"assets"`
	Gemini  GeminiConfig  `toml:"gemini" yaml:"gemini"`
	Log     LogConfig     `toml:"log" yaml:"log"`
	Admin   AdminConfig   `toml:"admin" yaml:"admin"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds public HTTP listener settings.
type ServerConfig struct {
	Host         string `toml:"host" yaml:"host"`
	Port         int    `toml:"port" yaml:"port"` // 0 means "use default" (8000)
	BodyMaxBytes int64  `toml:"body_max_bytes" yaml:"body_max_bytes"`
}

// BackendConfig describes the chat backend the /api/chat route forwards to.
// URL is deliberately not validated at load time: a missing or malformed
// value is reported per request by the forwarder.
type BackendConfig struct {
	URL             string `toml:"url" yaml:"url"`
	TimeoutSeconds  int    `toml:"timeout_seconds" yaml:"timeout_seconds"` // 0 means no client timeout
	IdleConnections int    `toml:"idle_connections" yaml:"idle_connections"`
}

// AssetsConfig selects the static asset capability. At most one of Dir and
// Embedded may be set; with neither the capability is absent.
type AssetsConfig struct {
	Dir      string `toml:"dir" yaml:"dir"`
	Embedded bool   `toml:"embedded" yaml:"embedded"`
}

// GeminiConfig carries backend model settings. The router passes them
// through untouched.
type GeminiConfig struct {
	Model  string `toml:"model" yaml:"model"`
	APIKey Secret `toml:"api_key" yaml:"api_key"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// AdminConfig holds the operator listener settings (health, status, metrics).
type AdminConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	Addr        string `toml:"addr" yaml:"addr"`
	MetricsPath string `toml:"metrics_path" yaml:"metrics_path"`
}

// Secret is an opaque credential. It formats and logs as [REDACTED].
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Errors returned by BackendConfig.BaseURL.
var (
	ErrBackendURLUnset   = errors.New("backend url is not set")
	ErrBackendURLInvalid = errors.New("backend url is not a valid absolute http(s) URL")
)

// BaseURL parses the backend URL. It returns ErrBackendURLUnset when the value
// is empty and an error wrapping ErrBackendURLInvalid when it is not an
// absolute http or https URL with a host.
func (b BackendConfig) BaseURL() (*url.URL, error) {
	if b.URL == "" {
		return nil, ErrBackendURLUnset
	}
	u, err := url.Parse(b.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBackendURLInvalid, b.URL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBackendURLInvalid, b.URL)
	}
	return u, nil
}

// Mode reports which asset capability is configured: "dir", "embedded" or "none".
func (a AssetsConfig) Mode() string {
	switch {
	case a.Dir != "":
		return "dir"
	case a.Embedded:
		return "embedded"
	default:
		return "none"
	}
}

// LoadDotEnv loads environment variables from a dotenv file, overriding
// variables already present in the process environment. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Overload(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file (if any) and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/chat-edge/config.toml then configs/config.toml. Finding no file is not
// an error; the router can run from flags and environment alone.
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
		if err := decode(path, data, &cfg); err != nil {
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

// decode picks the file format from the extension; TOML is the default.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return toml.Unmarshal(data, cfg)
	}
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if v := unquote(cli.Host); v != "" {
		c.Server.Host = v
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if v := unquote(cli.BackendURL); v != "" {
		c.Backend.URL = v
	}
	if v := unquote(cli.AssetsDir); v != "" {
		c.Assets.Dir = v
		c.Assets.Embedded = false
	}
	if v := unquote(cli.Model); v != "" {
		c.Gemini.Model = v
	}
	if v := unquote(cli.APIKey); v != "" {
		c.Gemini.APIKey = Secret(v)
	}
	if v := unquote(cli.LogLevel); v != "" {
		c.Log.Level = v
	}
}

// unquote trims whitespace and one pair of matching surrounding quotes, which
// tend to sneak in when values are copied into env files.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == s[len(s)-1] && (s[0] == '"' || s[0] == '\'') {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("backend.timeout_seconds must be non-negative; got %d", c.Backend.TimeoutSeconds)
	}
	if c.Backend.IdleConnections < 0 {
		return fmt.Errorf("backend.idle_connections must be non-negative; got %d", c.Backend.IdleConnections)
	}

	// Assets.
	if c.Assets.Dir != "" && c.Assets.Embedded {
		return fmt.Errorf("assets.dir and assets.embedded are mutually exclusive")
	}
	if c.Assets.Dir != "" {
		info, err := os.Stat(c.Assets.Dir)
		if err != nil {
			return fmt.Errorf("assets.dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("assets.dir %q is not a directory", c.Assets.Dir)
		}
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Admin listener (only when enabled).
	if c.Admin.Enabled {
		if c.Admin.Addr != "" {
			if _, _, err := net.SplitHostPort(c.Admin.Addr); err != nil {
				return fmt.Errorf("admin.addr must be host:port; got %q", c.Admin.Addr)
			}
		}
		if p := c.Admin.MetricsPath; p != "" {
			if p[0] != '/' {
				return fmt.Errorf("admin.metrics_path must start with '/'; got %q", p)
			}
			for _, reserved := range []string{"/healthz", "/status"} {
				if p == reserved || strings.HasPrefix(p, reserved+"/") {
					return fmt.Errorf("admin.metrics_path %q conflicts with reserved route %q", p, reserved)
				}
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields zero means "unset" because TOML cannot distinguish an
// explicit 0 from an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Backend.IdleConnections == 0 {
		c.Backend.IdleConnections = 100
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = DefaultModel
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = "127.0.0.1:9090"
	}
	if c.Admin.MetricsPath == "" {
		c.Admin.MetricsPath = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
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
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Warn logs startup warnings for settings that load fine but will make some
// routes answer with errors, plus a loose config file mode.
func (c *Config) Warn(logger *slog.Logger) {
	if _, err := c.Backend.BaseURL(); err != nil {
		logger.Warn("chat route will answer with a configuration error",
			"err", err,
		)
	}
	if c.Assets.Mode() == "none" {
		logger.Warn("no static asset capability configured; non-API routes will answer 500",
			"hint", "set assets.dir or assets.embedded",
		)
	}
	c.WarnPermissions(logger)
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
