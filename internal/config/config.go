package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// BLOGWEB_BACKEND_URL overrides backend.url.
const EnvPrefix = "BLOGWEB"

type Config struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Log             LogConfig     `mapstructure:"log"`
	Backend         BackendConfig `mapstructure:"backend"`
	Cache           CacheConfig   `mapstructure:"cache"`
	Session         SessionConfig `mapstructure:"session"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BackendConfig struct {
	// Mode is "rest" for a real backend or "mock" for the in-process fixture.
	Mode    string        `mapstructure:"mode"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	StaleTime  time.Duration `mapstructure:"stale_time"`
	MaxEntries int           `mapstructure:"max_entries"`
	BatchWait  time.Duration `mapstructure:"batch_wait"`
}

type SessionConfig struct {
	// Storage is one of in-memory, postgres or redis.
	Storage       string        `mapstructure:"storage"`
	DSN           string        `mapstructure:"dsn"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	CookieName    string        `mapstructure:"cookie_name"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":3000")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("backend.mode", "rest")
	v.SetDefault("backend.url", "http://localhost:8000/api")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("cache.stale_time", time.Minute)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.batch_wait", time.Millisecond)
	v.SetDefault("session.storage", "in-memory")
	v.SetDefault("session.dsn", "")
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_password", "")
	v.SetDefault("session.redis_db", 0)
	v.SetDefault("session.ttl", 7*24*time.Hour)
	v.SetDefault("session.cookie_name", "blog_session")
	v.SetDefault("session.cookie_secure", false)
}

// Load reads defaults, then the optional YAML file at path, then environment
// overrides. The result is not validated: apply flag overrides first, then
// call Validate.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Override applies command line values; empty strings keep the loaded ones.
func (c *Config) Override(backendMode, storage string) {
	if backendMode != "" {
		c.Backend.Mode = backendMode
	}
	if storage != "" {
		c.Session.Storage = storage
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Backend.Mode {
	case "rest":
		if c.Backend.URL == "" {
			errs = append(errs, errors.New("backend.url is required in rest mode"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown backend.mode %q", c.Backend.Mode))
	}
	switch c.Session.Storage {
	case "in-memory", "redis":
	case "postgres":
		if c.Session.DSN == "" {
			errs = append(errs, errors.New("session.dsn must be set for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.storage %q", c.Session.Storage))
	}
	if c.Cache.StaleTime < 0 {
		errs = append(errs, errors.New("cache.stale_time must not be negative"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}
	return errors.Join(errs...)
}
