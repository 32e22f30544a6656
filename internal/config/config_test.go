package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
origin: http://origin.test/
backend: redis
timeout: 5s
log:
  format: logrus
redis:
  addr: redis:6379
  db: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://origin.test/", cfg.Origin)
	assert.Equal(t, "redis", cfg.Backend)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "logrus", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level, "unset keys keep their defaults")
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "backend: redis\ncodec: cbor\n")
	t.Setenv("SWCACHE_BACKEND", "bigcache")
	t.Setenv("SWCACHE_LOG_LEVEL", "debug")
	t.Setenv("SWCACHE_REDIS_DB", "3")
	t.Setenv("SWCACHE_BIGCACHE_SHARDS", "64")
	t.Setenv("SWCACHE_COMPRESS", "true")
	t.Setenv("SWCACHE_METRICS_LISTEN", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bigcache", cfg.Backend)
	assert.Equal(t, "cbor", cfg.Codec)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 64, cfg.Bigcache.Shards)
	assert.True(t, cfg.Compress)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "origin: [unterminated"))
	assert.Error(t, err)

	t.Setenv("SWCACHE_TIMEOUT", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "parse env")
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.Origin = "http://origin.test/"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing origin", func(c *Config) { c.Origin = "" }, "origin is required"},
		{"relative origin", func(c *Config) { c.Origin = "/app" }, "absolute URL"},
		{"unknown backend", func(c *Config) { c.Backend = "disk" }, `backend "disk"`},
		{"unknown codec", func(c *Config) { c.Codec = "xml" }, `codec "xml"`},
		{"unknown log format", func(c *Config) { c.Log.Format = "glog" }, "log format"},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }, "log level"},
		{"redis without addr", func(c *Config) { c.Backend = "redis"; c.Redis.Addr = "" }, "redis address"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"bbolt without path", func(c *Config) { c.Backend = "bbolt"; c.Bbolt.Path = "" }, "bbolt path"},
		{"relative metrics path", func(c *Config) { c.Metrics.Listen = ":9090"; c.Metrics.Path = "metrics" }, "metrics path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
