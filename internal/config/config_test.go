package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvConfigPath, EnvClientID, EnvBotToken, EnvUpstreamBaseURL,
		EnvPort, EnvStaticDir, EnvLogLevel, EnvLogFormat,
	} {
		t.Setenv(k, "")
	}
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestLoadFromBytes_EmptyUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromBytes(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultUpstreamBaseURL, cfg.Upstream.BaseURL)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.True(t, cfg.Cache.StaleOnError())
	assert.Equal(t, "X-Forwarded-User", cfg.Identity.UserHeader)
	assert.Equal(t, "guest", cfg.Identity.GuestUserID)
	assert.Equal(t, "./dist", cfg.Static.Dir)
	assert.Equal(t, "index.html", cfg.Static.Index)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.HasClientID())
	assert.Equal(t, ":8000", cfg.Addr())
}

// =============================================================================
// YAML + ENV
// =============================================================================

func TestLoadFromBytes_ParsesYAML(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromBytes([]byte(`
server:
  port: 9000
  write_timeout: 2m
upstream:
  base_url: http://localhost:3000/api/v3/
  client_id: my-client
  timeout: 5s
cache:
  ttl: 10m
  serve_stale_on_error: false
identity:
  user_header: X-Showcase-User
static:
  dir: /srv/app
monitoring:
  log_level: debug
  log_format: json
  request_log_stdout: true
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, "http://localhost:3000/api/v3", cfg.Upstream.BaseURL, "trailing slash trimmed")
	assert.Equal(t, "my-client", cfg.Upstream.ClientID)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.Cache.StaleOnError())
	assert.Equal(t, "X-Showcase-User", cfg.Identity.UserHeader)
	assert.Equal(t, "/srv/app", cfg.Static.Dir)
	assert.Equal(t, "debug", cfg.Monitoring.LogLevel)
	assert.True(t, cfg.Monitoring.RequestLogStdout)
	assert.Empty(t, cfg.Monitoring.RequestLogPath)
}

func TestLoadFromBytes_ExpandsEnvPlaceholders(t *testing.T) {
	clearEnv(t)
	t.Setenv("MY_CLIENT", "from-env")

	cfg, err := LoadFromBytes([]byte(`
upstream:
  client_id: ${MY_CLIENT}
  token: ${MISSING_TOKEN:-fallback-token}
`))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Upstream.ClientID)
	assert.Equal(t, "fallback-token", cfg.Upstream.BotToken)
}

func TestLoadFromBytes_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvClientID, "env-client")
	t.Setenv(EnvBotToken, "env-token")
	t.Setenv(EnvPort, "8123")
	t.Setenv(EnvUpstreamBaseURL, "http://traq.local/api/v3")

	cfg, err := LoadFromBytes([]byte(`
server:
  port: 9000
upstream:
  client_id: file-client
`))
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, "env-client", cfg.Upstream.ClientID)
	assert.Equal(t, "env-token", cfg.Upstream.BotToken)
	assert.Equal(t, "http://traq.local/api/v3", cfg.Upstream.BaseURL)
	assert.True(t, cfg.HasClientID())
}

func TestLoad_ReadsFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8088\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestLoadFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{"bad port env", "", map[string]string{EnvPort: "eighty"}},
		{"port out of range", "server:\n  port: 70000\n", nil},
		{"relative base url", "upstream:\n  base_url: /api/v3\n", nil},
		{"ftp base url", "upstream:\n  base_url: ftp://q.trap.jp\n", nil},
		{"negative ttl", "cache:\n  ttl: -1s\n", nil},
		{"unknown log level", "monitoring:\n  log_level: loud\n", nil},
		{"unknown log format", "monitoring:\n  log_format: xml\n", nil},
		{"broken yaml", "server: [", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromBytes([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}
