package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/conduit/pkg/storage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conduit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "bolt", cfg.Cache.Backend)
	assert.Equal(t, 10*time.Second, cfg.Admin.Timeout)
	assert.Zero(t, cfg.Refresh.Interval)
	assert.Equal(t, 3, cfg.Probe.Retries)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
admin:
  url: https://gw.example.com:9180
  api_key: edd1c9f034335f136f87ad84b625c8f1
  timeout: 3s
cache:
  backend: redis
  redis_addr: redis:6379
  redis_db: 2
refresh:
  interval: 30s
  chains: true
log:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://gw.example.com:9180", cfg.Admin.URL)
	assert.Equal(t, "edd1c9f034335f136f87ad84b625c8f1", cfg.Admin.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Admin.Timeout)
	assert.Equal(t, 20.0, cfg.Admin.RateLimit, "absent fields keep defaults")
	assert.Equal(t, "/apisix", cfg.Admin.KeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.Refresh.Interval)
	assert.True(t, cfg.Refresh.Chains)
	assert.True(t, cfg.Log.JSON)

	opts := cfg.StorageOptions()
	assert.Equal(t, storage.BackendRedis, opts.Backend)
	assert.Equal(t, "redis:6379", opts.RedisAddr)
	assert.Equal(t, 2, opts.RedisDB)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "admin: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "refresh:\n  interval: soon\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative admin url", func(c *Config) { c.Admin.URL = "127.0.0.1:9180" }},
		{"ftp admin url", func(c *Config) { c.Admin.URL = "ftp://gw" }},
		{"zero timeout", func(c *Config) { c.Admin.Timeout = 0 }},
		{"negative rate", func(c *Config) { c.Admin.RateLimit = -1 }},
		{"zero burst", func(c *Config) { c.Admin.Burst = 0 }},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "etcd" }},
		{"bolt without dir", func(c *Config) { c.Cache.DataDir = "" }},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis"; c.Cache.RedisAddr = "" }},
		{"empty listen", func(c *Config) { c.Server.Listen = "" }},
		{"negative interval", func(c *Config) { c.Refresh.Interval = -time.Second }},
		{"tiny interval", func(c *Config) { c.Refresh.Interval = 10 * time.Millisecond }},
		{"negative probe interval", func(c *Config) { c.Probe.Interval = -time.Second }},
		{"probe without retries", func(c *Config) { c.Probe.Retries = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}

	cfg := Default()
	cfg.Cache.Backend = "memory"
	cfg.Cache.DataDir = ""
	assert.NoError(t, cfg.Validate(), "memory needs no data dir")

	cfg = Default()
	cfg.Probe = ProbeConfig{}
	assert.NoError(t, cfg.Validate(), "disabled probes need no timing")
}
