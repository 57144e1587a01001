package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/conduit/pkg/log"
	"github.com/cuemby/conduit/pkg/storage"
)

// ErrInvalid is wrapped by every validation error
var ErrInvalid = errors.New("invalid configuration")

// Config is the console configuration
type Config struct {
	Admin   AdminConfig   `yaml:"admin"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	Refresh RefreshConfig `yaml:"refresh"`
	Probe   ProbeConfig   `yaml:"probe"`
	Log     LogConfig     `yaml:"log"`
}

// AdminConfig locates the control-plane admin API
type AdminConfig struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// CacheConfig selects the persisted cache backend
type CacheConfig struct {
	Backend       string `yaml:"backend"`
	DataDir       string `yaml:"data_dir"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// ServerConfig configures the presentation API
type ServerConfig struct {
	Listen   string `yaml:"listen"`
	ReadOnly bool   `yaml:"read_only"`
}

// RefreshConfig tunes the orchestrator
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
	Chains   bool          `yaml:"chains"`
}

// ProbeConfig tunes the reachability probes run by serve
type ProbeConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Admin: AdminConfig{
			URL:       "http://127.0.0.1:9180",
			Timeout:   10 * time.Second,
			RateLimit: 20,
			Burst:     4,
			KeyPrefix: "/apisix",
		},
		Cache: CacheConfig{
			Backend:   string(storage.BackendBolt),
			DataDir:   defaultDataDir(),
			RedisAddr: "localhost:6379",
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:9990",
		},
		Refresh: RefreshConfig{
			Interval: 0,
		},
		Probe: ProbeConfig{
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
			Retries:  3,
		},
		Log: LogConfig{
			Level: string(log.InfoLevel),
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conduit"
	}
	return filepath.Join(home, ".conduit")
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults. Fields absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later and far away
func (c Config) Validate() error {
	u, err := url.Parse(c.Admin.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: admin.url %q must be an http(s) URL", ErrInvalid, c.Admin.URL)
	}
	if c.Admin.Timeout <= 0 {
		return fmt.Errorf("%w: admin.timeout must be positive", ErrInvalid)
	}
	if c.Admin.RateLimit < 0 {
		return fmt.Errorf("%w: admin.rate_limit must not be negative", ErrInvalid)
	}
	if c.Admin.RateLimit > 0 && c.Admin.Burst < 1 {
		return fmt.Errorf("%w: admin.burst must be at least 1 when rate_limit is set", ErrInvalid)
	}

	switch storage.Backend(c.Cache.Backend) {
	case storage.BackendBolt:
		if c.Cache.DataDir == "" {
			return fmt.Errorf("%w: cache.data_dir is required for the bolt backend", ErrInvalid)
		}
	case storage.BackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("%w: cache.redis_addr is required for the redis backend", ErrInvalid)
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("%w: cache.backend %q (want bolt, redis or memory)", ErrInvalid, c.Cache.Backend)
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("%w: server.listen is required", ErrInvalid)
	}
	if c.Refresh.Interval < 0 {
		return fmt.Errorf("%w: refresh.interval must not be negative", ErrInvalid)
	}
	if c.Refresh.Interval > 0 && c.Refresh.Interval < time.Second {
		return fmt.Errorf("%w: refresh.interval must be at least 1s", ErrInvalid)
	}

	if c.Probe.Interval < 0 {
		return fmt.Errorf("%w: probe.interval must not be negative", ErrInvalid)
	}
	if c.Probe.Interval > 0 && (c.Probe.Timeout <= 0 || c.Probe.Retries < 1) {
		return fmt.Errorf("%w: probe.timeout and probe.retries must be positive", ErrInvalid)
	}

	switch log.Level(c.Log.Level) {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	return nil
}

// StorageOptions maps the cache section onto storage.Options
func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:       storage.Backend(c.Cache.Backend),
		DataDir:       c.Cache.DataDir,
		RedisAddr:     c.Cache.RedisAddr,
		RedisPassword: c.Cache.RedisPassword,
		RedisDB:       c.Cache.RedisDB,
	}
}
