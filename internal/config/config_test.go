package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir()) // no config file present
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1", cfg.Adapter.Host)
	assert.Equal(t, 35000, cfg.Adapter.Port)
	assert.Equal(t, "auto", cfg.Adapter.Protocol)
	assert.Equal(t, 3*time.Second, cfg.Adapter.Timeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Polling.Interval())
	assert.Equal(t, 2*time.Second, cfg.Polling.OfflineInterval())
	assert.Equal(t, 10, cfg.Polling.SlowEveryN)
	assert.Equal(t, ":8765", cfg.Server.ListenAddr)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadFile(t *testing.T) {
	dir := writeConfig(t, `
log_level: debug
adapter:
  device: /dev/ttyUSB0
  baud: 115200
  timeout_ms: 1500
polling:
  interval_ms: 250
commands:
  disabled: [MAF, OIL_TEMP]
  ranges:
    rpm:
      min: 0
      max: 8000
server:
  listen_addr: ":9000"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Adapter.Device)
	assert.Equal(t, 115200, cfg.Adapter.Baud)
	assert.Equal(t, 1500*time.Millisecond, cfg.Adapter.Timeout())
	assert.Equal(t, 250*time.Millisecond, cfg.Polling.Interval())
	assert.Equal(t, []string{"MAF", "OIL_TEMP"}, cfg.Commands.Disabled)
	require.Contains(t, cfg.Commands.Ranges, "rpm")
	assert.Equal(t, 8000.0, cfg.Commands.Ranges["rpm"].Max)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)

	// Untouched sections keep their defaults.
	assert.Equal(t, 2*time.Second, cfg.Polling.OfflineInterval())
}

func TestLoadRejectsBadPolling(t *testing.T) {
	dir := writeConfig(t, `
polling:
  interval_ms: 0
`)
	_, err := Load(dir)
	assert.ErrorContains(t, err, "interval_ms")
}

func TestLoadRejectsAuthWithoutCredentials(t *testing.T) {
	dir := writeConfig(t, `
auth:
  enabled: true
`)
	_, err := Load(dir)
	assert.ErrorContains(t, err, "auth")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := writeConfig(t, "adapter: [unclosed")
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestAuthConfigFromFile(t *testing.T) {
	dir := writeConfig(t, `
auth:
  enabled: true
  jwt_secret: s3cret
  api_keys: [abc]
  users:
    - username: garage
      password_hash: "$2a$10$abcdefghijklmnopqrstuv"
      role: viewer
`)
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 60, cfg.Auth.JWTExpiration)
	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, "garage", cfg.Auth.Users[0].Username)
	assert.Equal(t, "viewer", cfg.Auth.Users[0].Role)
}
