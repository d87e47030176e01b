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
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8094, cfg.Server.Port)
	assert.Equal(t, "http", cfg.Search.Backend)
	assert.Zero(t, cfg.Search.Timeout, "No request timeout beyond the transport default")
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, DefaultCacheConfig(), cfg.Cache)
	assert.Equal(t, DefaultOrchestratorConfig(), cfg.Orchestrator)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Elasticsearch.Addresses)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, int64(4096), cfg.WebSocket.MaxMessageSize)
	assert.Equal(t, LogConfig{Level: "info"}, cfg.Log, "JSON logs unless asked otherwise")
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("CACHE_TTL", "10m")
	t.Setenv("CACHE_CAPACITY", "20")
	t.Setenv("ORCHESTRATOR_DEBOUNCE", "500ms")
	t.Setenv("ES_ADDRESSES", "http://es-1:9200, http://es-2:9200")
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 20, cfg.Cache.Capacity)
	assert.Equal(t, 500*time.Millisecond, cfg.Orchestrator.Debounce)
	assert.Equal(t, []string{"http://es-1:9200", "http://es-2:9200"}, cfg.Elasticsearch.Addresses)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.yaml"), []byte(`
search:
  backend: elasticsearch
  timeout: 3s
cache:
  prefix: storefront_cache
  max_age: 12h
store:
  driver: file
  file_dir: /var/lib/hdmarket
log:
  level: debug
  pretty: true
`), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "elasticsearch", cfg.Search.Backend)
	assert.Equal(t, 3*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "storefront_cache", cfg.Cache.Prefix)
	assert.Equal(t, 12*time.Hour, cfg.Cache.MaxAge)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/hdmarket", cfg.Store.FileDir)
	assert.Equal(t, LogConfig{Level: "debug", Pretty: true}, cfg.Log)
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("search: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
