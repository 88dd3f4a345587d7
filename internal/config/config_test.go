package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7420", cfg.Bridge.ListenAddr)
	assert.True(t, cfg.HTTP.InsecureTLS)
	assert.Equal(t, 15, cfg.HTTP.MaxRedirects)
	assert.Equal(t, Duration(30*time.Second), cfg.HTTP.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Contains(t, cfg.Log.Targets, "stdout")
	assert.NotEmpty(t, cfg.Instance.SocketPath)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7420", cfg.Bridge.ListenAddr)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bridge:
  listen_addr: "127.0.0.1:9000"
http:
  insecure_tls: false
  max_redirects: 5
  timeout: 5s
log:
  level: debug
  targets: [stdout]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Bridge.ListenAddr)
	assert.False(t, cfg.HTTP.InsecureTLS)
	assert.Equal(t, 5, cfg.HTTP.MaxRedirects)
	assert.Equal(t, Duration(5*time.Second), cfg.HTTP.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"stdout"}, cfg.Log.Targets)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("HTTP_INSECURE_TLS", "false")
	t.Setenv("HTTP_MAX_REDIRECTS", "3")
	t.Setenv("HTTP_TIMEOUT", "10s")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Bridge.ListenAddr)
	assert.False(t, cfg.HTTP.InsecureTLS)
	assert.Equal(t, 3, cfg.HTTP.MaxRedirects)
	assert.Equal(t, Duration(10*time.Second), cfg.HTTP.Timeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bridge:\n  listen_addr: \"127.0.0.1:9000\"\n"), 0o644))

	t.Setenv("BRIDGE_LISTEN_ADDR", "127.0.0.1:9001")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", cfg.Bridge.ListenAddr)
}

func TestDuration_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  timeout: forever\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
