// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

// Package config loads posadmin settings from a YAML file and command-line
// flags.
//
// Precedence, lowest first: flag defaults, the config file, flags set on the
// command line. DATABASE_URL fills database.url when nothing else does.
package config

import (
	"net/url"
	"time"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/sistemapos/posadmin/internal/auth"
)

// Defaults.
const (
	DefaultHTTPAddr    = ":8080"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultSessionTTL  = 30 * 24 * time.Hour
	DefaultLogFormat   = "json"
)

// Environment fallbacks for connection URLs.
const (
	DatabaseURLEnv = "DATABASE_URL"
	RedisURLEnv    = "REDIS_URL"
)

// Session store backends.
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config is the effective configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Redis    RedisConfig    `koanf:"redis" yaml:"redis"`
	Session  SessionConfig  `koanf:"session" yaml:"session"`
	Password PasswordConfig `koanf:"password" yaml:"password"`
	CORS     CORSConfig     `koanf:"cors" yaml:"cors"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
	// TrustProxy makes X-Forwarded-Proto and X-Forwarded-Host authoritative.
	TrustProxy bool `koanf:"trust_proxy" yaml:"trust_proxy"`
}

// MetricsConfig configures the metrics and health listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url" yaml:"url"`
}

// RedisConfig configures the optional Redis session store.
type RedisConfig struct {
	URL string `koanf:"url" yaml:"url"`
}

// SessionConfig configures issued sessions.
type SessionConfig struct {
	TTL time.Duration `koanf:"ttl" yaml:"ttl"`
	// Store is "postgres" or "redis". Users always live in PostgreSQL.
	Store string `koanf:"store" yaml:"store"`
}

// PasswordConfig configures the credential hasher.
type PasswordConfig struct {
	Iterations     int  `koanf:"iterations" yaml:"iterations"`
	LegacyFallback bool `koanf:"legacy_fallback" yaml:"legacy_fallback"`
}

// CORSConfig restricts which origins are echoed back.
type CORSConfig struct {
	// AllowedOrigins are glob patterns such as "https://*.example.com".
	// Empty echoes any origin.
	AllowedOrigins []string `koanf:"allowed_origins" yaml:"allowed_origins"`
}

// LogConfig configures log output.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
}

// flagKeys maps flag names to configuration keys. Flags not listed here are
// not configuration.
var flagKeys = map[string]string{
	"http-addr":           "http.addr",
	"trust-proxy":         "http.trust_proxy",
	"metrics-addr":        "metrics.addr",
	"database-url":        "database.url",
	"session-ttl":         "session.ttl",
	"session-store":       "session.store",
	"redis-url":           "redis.url",
	"password-iterations": "password.iterations",
	"legacy-fallback":     "password.legacy_fallback",
	"cors-origin":         "cors.allowed_origins",
	"log-format":          "log.format",
}

// FileFlag names the flag holding the config file path.
const FileFlag = "config"

// RegisterFlags adds the configuration flags, with their defaults, to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FileFlag, "", "path to a YAML config file")
	fs.String("http-addr", DefaultHTTPAddr, "API listen address")
	fs.Bool("trust-proxy", false, "trust X-Forwarded-Proto and X-Forwarded-Host")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health listen address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL URL (default: $"+DatabaseURLEnv+")")
	fs.Duration("session-ttl", DefaultSessionTTL, "lifetime of issued sessions")
	fs.String("session-store", SessionStorePostgres, "session backend (postgres or redis)")
	fs.String("redis-url", "", "Redis URL for the redis session store (default: $"+RedisURLEnv+")")
	fs.Int("password-iterations", auth.DefaultPBKDF2Iterations, "PBKDF2 iterations for new hashes")
	fs.Bool("legacy-fallback", true, "accept and upgrade legacy sha256 password hashes")
	fs.StringSlice("cors-origin", nil, "allowed CORS origin glob (repeatable; empty = any)")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
}

// Load builds the configuration from the flags in fs (registered with
// RegisterFlags), the file named by --config, and getenv.
func Load(fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	path, err := fs.GetString(FileFlag)
	if err != nil {
		return nil, oops.Code("CONFIG_FLAGS_INVALID").With("flag", FileFlag).Wrap(err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
	}

	flags := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(flags, nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}

	for key, env := range map[string]string{"database.url": DatabaseURLEnv, "redis.url": RedisURLEnv} {
		if k.String(key) != "" || getenv == nil {
			continue
		}
		if v := getenv(env); v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, oops.Code("CONFIG_ENV_INVALID").With("env", env).Wrap(err)
			}
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late or silently.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "http.addr").Errorf("http.addr is required")
	}
	if c.Session.TTL < time.Second {
		return oops.Code("CONFIG_INVALID").With("key", "session.ttl").Errorf("session.ttl must be at least 1s, got %s", c.Session.TTL)
	}
	switch c.Session.Store {
	case SessionStorePostgres:
	case SessionStoreRedis:
		if c.Redis.URL == "" {
			return oops.Code("CONFIG_INVALID").With("key", "redis.url").
				Errorf("redis.url (or %s) is required when session.store is redis", RedisURLEnv)
		}
		if _, err := redis.ParseURL(c.Redis.URL); err != nil {
			return oops.Code("CONFIG_INVALID").With("key", "redis.url").Wrap(err)
		}
	default:
		return oops.Code("CONFIG_INVALID").With("key", "session.store").
			Errorf("session.store must be 'postgres' or 'redis', got %q", c.Session.Store)
	}
	if c.Password.Iterations < auth.MinPBKDF2Iterations || c.Password.Iterations > auth.MaxPBKDF2Iterations {
		return oops.Code("CONFIG_INVALID").With("key", "password.iterations").
			Errorf("password.iterations must be between %d and %d, got %d",
				auth.MinPBKDF2Iterations, auth.MaxPBKDF2Iterations, c.Password.Iterations)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").With("key", "log.format").
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	for _, pattern := range c.CORS.AllowedOrigins {
		if _, err := glob.Compile(pattern); err != nil {
			return oops.Code("CONFIG_INVALID").With("key", "cors.allowed_origins").With("pattern", pattern).Wrap(err)
		}
	}
	return nil
}

// RequireDatabase reports an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "database.url").
			Errorf("database.url (or %s) is required", DatabaseURLEnv)
	}
	return nil
}

// YAML renders the configuration with the database password masked.
func (c *Config) YAML() ([]byte, error) {
	shown := *c
	shown.Database.URL = redactURL(c.Database.URL)
	shown.Redis.URL = redactURL(c.Redis.URL)
	out, err := yamlv3.Marshal(shown)
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return out, nil
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
