// Package config loads gateway configuration.
//
// DESIGN: Three layers, later wins:
//   - YAML file (optional), with ${VAR} and ${VAR:-default} expansion
//   - Environment overrides (TRAQ_CLIENT_ID, TRAQ_TOKEN, PORT, ...)
//   - Defaults from defaults.go for anything still unset
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvConfigPath      = "STAMP_GATEWAY_CONFIG"
	EnvClientID        = "TRAQ_CLIENT_ID"
	EnvBotToken        = "TRAQ_TOKEN"
	EnvUpstreamBaseURL = "TRAQ_API_BASE_URL"
	EnvPort            = "PORT"
	EnvStaticDir       = "STATIC_DIR"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
)

// Config is the full gateway configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Cache      CacheConfig      `yaml:"cache"`
	Identity   IdentityConfig   `yaml:"identity"`
	Static     StaticConfig     `yaml:"static"`
	CORS       CORSConfig       `yaml:"cors"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig controls the listening HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig describes the traQ API.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
	// ClientID is the OAuth client id. Only the auth callback needs it.
	ClientID string `yaml:"client_id"`
	// BotToken authenticates stamp list refreshes. Optional.
	BotToken string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig controls the stamp list cache.
type CacheConfig struct {
	TTL               time.Duration `yaml:"ttl"`
	ServeStaleOnError *bool         `yaml:"serve_stale_on_error"`
}

// StaleOnError reports whether stale stamps are served when refresh fails.
func (c CacheConfig) StaleOnError() bool {
	if c.ServeStaleOnError == nil {
		return DefaultServeStaleOnError
	}
	return *c.ServeStaleOnError
}

// IdentityConfig names the header the reverse proxy injects.
type IdentityConfig struct {
	UserHeader  string `yaml:"user_header"`
	GuestUserID string `yaml:"guest_user_id"`
}

// StaticConfig points at the built SPA.
type StaticConfig struct {
	Dir   string `yaml:"dir"`
	Index string `yaml:"index"`
}

// CORSConfig applies to /api/* only.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MonitoringConfig controls logging.
type MonitoringConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console, auto
	LogOutput string `yaml:"log_output"` // stdout, stderr
	// RequestLogPath enables the JSONL request log when set.
	RequestLogPath string `yaml:"request_log_path"`
	// RequestLogStdout also emits a compact telemetry line per request.
	RequestLogStdout bool `yaml:"request_log_stdout"`
}

// Default returns a config populated only from defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the config file at path (optional), applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		data = b
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML config content. Empty input yields defaults plus
// environment overrides.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(strings.TrimSpace(string(data))) > 0 {
		expanded := expandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:-default}.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := envPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok && v != "" {
			return v
		}
		return parts[3]
	})
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvClientID)); v != "" {
		c.Upstream.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBotToken)); v != "" {
		c.Upstream.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvUpstreamBaseURL)); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}
	if v := strings.TrimSpace(os.Getenv(EnvStaticDir)); v != "" {
		c.Static.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Monitoring.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		c.Monitoring.LogFormat = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	c.Upstream.BaseURL = strings.TrimRight(c.Upstream.BaseURL, "/")
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultStampTTL
	}
	if c.Identity.UserHeader == "" {
		c.Identity.UserHeader = DefaultUserHeader
	}
	if c.Identity.GuestUserID == "" {
		c.Identity.GuestUserID = DefaultGuestUserID
	}
	if c.Static.Dir == "" {
		c.Static.Dir = DefaultStaticDir
	}
	if c.Static.Index == "" {
		c.Static.Index = DefaultIndexFile
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Monitoring.LogLevel == "" {
		c.Monitoring.LogLevel = DefaultLogLevel
	}
	if c.Monitoring.LogFormat == "" {
		c.Monitoring.LogFormat = DefaultLogFormat
	}
	if c.Monitoring.LogOutput == "" {
		c.Monitoring.LogOutput = DefaultLogOutput
	}
}

// Validate checks the config for values the gateway cannot run with.
// A missing OAuth client id is not an error here: only the auth callback
// depends on it and it reports a config error per request.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.base_url must be an absolute http(s) URL: %q", c.Upstream.BaseURL)
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream.timeout must not be negative")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	switch strings.ToLower(c.Monitoring.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("monitoring.log_level: unknown level %q", c.Monitoring.LogLevel)
	}
	switch strings.ToLower(c.Monitoring.LogFormat) {
	case "json", "console", "auto":
	default:
		return fmt.Errorf("monitoring.log_format: unknown format %q", c.Monitoring.LogFormat)
	}
	switch strings.ToLower(c.Monitoring.LogOutput) {
	case "stdout", "stderr":
	default:
		return fmt.Errorf("monitoring.log_output: unknown output %q", c.Monitoring.LogOutput)
	}
	return nil
}

// HasClientID reports whether the OAuth client id is configured.
func (c *Config) HasClientID() bool {
	return strings.TrimSpace(c.Upstream.ClientID) != ""
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
