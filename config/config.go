// Package config loads the credcored service configuration from a YAML file
// and CREDCORE_* environment variables.
//
// Environment keys map onto the YAML tree by lower-casing and splitting on a
// double underscore:
//
//	CREDCORE_JWT__SECRET                  -> jwt.secret
//	CREDCORE_PASSWORD_RESET__TTL          -> password_reset.ttl
//	CREDCORE_JWT__PREVIOUS_SECRETS__K2024 -> jwt.previous_secrets.k2024
package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/MrEthical07/credcore"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CREDCORE_"

const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the full service configuration. The engine settings sit at the
// top level of the YAML document.
type Config struct {
	credcore.Config `mapstructure:",squash"`

	Store StoreConfig `mapstructure:"store"`
	HTTP  HTTPConfig  `mapstructure:"http"`
	Log   LogConfig   `mapstructure:"log"`
}

// StoreConfig selects the credential backend. "memory" runs an embedded
// Redis and is meant for local development only.
type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	Prefix        string `mapstructure:"prefix"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    string        `mapstructure:"max_body_bytes"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RateLimit       RateLimit     `mapstructure:"rate_limit"`
}

// RateLimit is the per-client-IP request budget of the HTTP surface. A zero
// RPS disables it.
type RateLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used for every key that neither the file
// nor the environment sets.
func Default() Config {
	return Config{
		Config: credcore.DefaultConfig(),
		Store: StoreConfig{
			Driver:    StoreRedis,
			Prefix:    "cred",
			RedisAddr: "localhost:6379",
		},
		HTTP: HTTPConfig{
			Addr:            ":7127",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    "64KB",
			RateLimit: RateLimit{
				RPS:   20,
				Burst: 40,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides on top
// of Default and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "config file %s", path)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config %s failed", path)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "mapstructure",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config failed")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the service sections and then the engine section.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("store.redis_addr is required for the redis driver")
		}
	case StorePostgres:
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
		if c.LoginThrottle.Enabled || c.PasswordReset.RequestLimit > 0 {
			if strings.TrimSpace(c.Store.RedisAddr) == "" {
				return errors.New("store.redis_addr is required for login_throttle and password_reset.request_limit")
			}
		}
	case StoreMemory:
	default:
		return errors.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}

	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}
	if c.HTTP.RateLimit.RPS < 0 || c.HTTP.RateLimit.Burst < 0 {
		return errors.New("http.rate_limit must not be negative")
	}
	if c.HTTP.RateLimit.RPS > 0 && c.HTTP.RateLimit.Burst == 0 {
		return errors.New("http.rate_limit.burst must be > 0 when rps is set")
	}

	if err := c.Config.Validate(); err != nil {
		return errors.Wrap(err, "engine config")
	}
	return nil
}

func envKey(k, v string) (string, any) {
	k = strings.TrimPrefix(k, EnvPrefix)
	if k == "" {
		return "", nil
	}
	return strings.ReplaceAll(strings.ToLower(k), "__", "."), v
}
