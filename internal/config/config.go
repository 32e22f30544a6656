// Package config loads swcache server settings from defaults, an optional
// YAML file and SWCACHE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "SWCACHE_"

// Config is the runtime configuration of cmd/swcache.
type Config struct {
	Origin  string        `yaml:"origin"  env:"ORIGIN"`
	Listen  string        `yaml:"listen"  env:"LISTEN"`
	Backend string        `yaml:"backend" env:"BACKEND"`
	Codec   string        `yaml:"codec"   env:"CODEC"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// MaxBodyBytes caps one fetched response; 0 uses the fetcher default.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// Compress stores records zstd-compressed.
	Compress bool `yaml:"compress" env:"COMPRESS"`

	Log       Log       `yaml:"log"       envPrefix:"LOG_"`
	Metrics   Metrics   `yaml:"metrics"   envPrefix:"METRICS_"`
	Redis     Redis     `yaml:"redis"     envPrefix:"REDIS_"`
	Bbolt     Bbolt     `yaml:"bbolt"     envPrefix:"BBOLT_"`
	Bigcache  Bigcache  `yaml:"bigcache"  envPrefix:"BIGCACHE_"`
	Ristretto Ristretto `yaml:"ristretto" envPrefix:"RISTRETTO_"`
}

type Log struct {
	Format string `yaml:"format" env:"FORMAT"` // zap|logrus|slog|apex
	Level  string `yaml:"level"  env:"LEVEL"`
}

// Metrics serves Prometheus metrics on a separate listener; empty Listen
// disables it.
type Metrics struct {
	Listen string `yaml:"listen" env:"LISTEN"`
	Path   string `yaml:"path"   env:"PATH"`
}

type Bbolt struct {
	Path    string        `yaml:"path"    env:"PATH"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type Redis struct {
	Addr     string `yaml:"addr"     env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db"       env:"DB"`
	// GenTTL bounds generation keys in Redis; 0 keeps them forever. Entries
	// never expire, so once a key's generation expires a stale copy left by
	// a failed delete of it can match again.
	GenTTL time.Duration `yaml:"gen_ttl" env:"GEN_TTL"`
}

type Bigcache struct {
	Shards       int `yaml:"shards"         env:"SHARDS"`
	HardMaxMB    int `yaml:"hard_max_mb"    env:"HARD_MAX_MB"`
	MaxEntrySize int `yaml:"max_entry_size" env:"MAX_ENTRY_SIZE"`
}

type Ristretto struct {
	NumCounters int64 `yaml:"num_counters" env:"NUM_COUNTERS"`
	MaxCost     int64 `yaml:"max_cost"     env:"MAX_COST"`
}

var (
	backends  = []string{"memory", "bbolt", "bigcache", "ristretto", "redis"}
	codecs    = []string{"json", "cbor", "msgpack", "proto"}
	logFormat = []string{"zap", "logrus", "slog", "apex"}
	levels    = []string{"debug", "info", "warn", "error"}
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Listen:  ":8080",
		Backend: "memory",
		Codec:   "json",
		Timeout: 30 * time.Second,
		Log:     Log{Format: "zap", Level: "info"},
		Metrics: Metrics{Path: "/metrics"},
		Redis:   Redis{Addr: "localhost:6379"},
		Bbolt:   Bbolt{Path: "swcache.db", Timeout: time.Second},
		Bigcache: Bigcache{
			Shards:    1024,
			HardMaxMB: 256,
		},
		Ristretto: Ristretto{
			NumCounters: 1e5,
			MaxCost:     256 << 20,
		},
	}
}

// Load starts from Defaults, applies the YAML file at path when path is not
// empty, then SWCACHE_* environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Origin == "" {
		errs = append(errs, errors.New("origin is required"))
	} else if u, err := url.Parse(c.Origin); err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("origin %q must be an absolute URL", c.Origin))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout %s must not be negative", c.Timeout))
	}
	if err := oneOf("backend", c.Backend, backends); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("codec", c.Codec, codecs); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("log format", c.Log.Format, logFormat); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("log level", c.Log.Level, levels); err != nil {
		errs = append(errs, err)
	}
	if c.Backend == "redis" && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis address is required for the redis backend"))
	}
	if c.Backend == "bbolt" && c.Bbolt.Path == "" {
		errs = append(errs, errors.New("bbolt path is required for the bbolt backend"))
	}
	if c.Metrics.Listen != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics path %q must start with /", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

func oneOf(what, v string, allowed []string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s %q must be one of %s", what, v, strings.Join(allowed, "|"))
}
