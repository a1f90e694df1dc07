package config

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		// Env "production" enables the single-page app fallback.
		Env       string `yaml:"env"`
		StaticDir string `yaml:"static_dir"`
		Workers   int    `yaml:"workers"`
		// KeepAliveTimeout and HeaderTimeout are duration strings ("65s").
		KeepAliveTimeout      string `yaml:"keep_alive_timeout"`
		HeaderTimeout         string `yaml:"header_timeout"`
		MaxConcurrentRequests int    `yaml:"max_concurrent_requests"`
	} `yaml:"server"`
	Store struct {
		URL                    string `yaml:"url"`
		Database               string `yaml:"database"`
		PoolSize               int    `yaml:"pool_size"`
		ServerSelectionTimeout string `yaml:"server_selection_timeout"`
		SocketTimeout          string `yaml:"socket_timeout"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`
	Stats struct {
		TTL string `yaml:"ttl"`
	} `yaml:"stats"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

const (
	DefaultPort                   = "5000"
	DefaultMaxConcurrentRequests  = 50
	DefaultPoolSize               = 20
	DefaultKeepAliveTimeout       = 65 * time.Second
	DefaultHeaderTimeout          = 70 * time.Second
	DefaultServerSelectionTimeout = 5 * time.Second
	DefaultSocketTimeout          = 45 * time.Second
	DefaultStatsTTL               = 30 * time.Second
	DefaultRedisChannel           = "intake:submissions"
	DefaultDatabase               = "quiz_intake"
)

// Load reads YAML config from path. A missing file yields an empty config so
// deployments can rely on the environment alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnv loads the file and then applies the process environment on top.
func LoadWithEnv(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyEnv overlays recognized environment variables. lookup is os.LookupEnv in
// production and a map in tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	num := func(dst *int, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok {
				if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
					*dst = n
					return
				}
			}
		}
	}
	millis := func(dst *string, key string) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*dst = (time.Duration(n) * time.Millisecond).String()
			}
		}
	}

	str(&c.Server.Port, "PORT")
	str(&c.Server.Env, "APP_ENV", "NODE_ENV")
	str(&c.Server.StaticDir, "STATIC_DIR")
	num(&c.Server.Workers, "WEB_CONCURRENCY")
	millis(&c.Server.KeepAliveTimeout, "KEEP_ALIVE_TIMEOUT_MS")
	millis(&c.Server.HeaderTimeout, "HEADERS_TIMEOUT_MS")
	num(&c.Server.MaxConcurrentRequests, "MAX_CONCURRENT_REQUESTS")
	str(&c.Store.URL, "DATABASE_URL", "MONGO_URI")
	num(&c.Store.PoolSize, "DATABASE_POOL_SIZE", "MONGO_POOL_SIZE")
	str(&c.Redis.Addr, "REDIS_ADDR")
	str(&c.Log.Level, "LOG_LEVEL")
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = runtime.NumCPU()
	}
	if c.Server.Workers < 1 {
		c.Server.Workers = 1
	}
	if c.Server.MaxConcurrentRequests <= 0 {
		c.Server.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if c.Store.PoolSize <= 0 {
		c.Store.PoolSize = DefaultPoolSize
	}
	if c.Store.Database == "" {
		c.Store.Database = DefaultDatabase
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = DefaultRedisChannel
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Production reports whether the SPA fallback should be served.
func (c Config) Production() bool {
	return strings.EqualFold(c.Server.Env, "production")
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
