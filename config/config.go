// Package config loads cache settings from a YAML file and FILECACHE_*
// environment variables and turns them into filecache.Options.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/filecache"
	pr "github.com/unkn0wn-root/filecache/provider"
	bcp "github.com/unkn0wn-root/filecache/provider/bigcache"
	rdp "github.com/unkn0wn-root/filecache/provider/redis"
	rp "github.com/unkn0wn-root/filecache/provider/ristretto"
	"github.com/unkn0wn-root/filecache/versionstore"
)

// EnvPrefix prefixes environment overrides: FILECACHE_ROOT,
// FILECACHE_TIER_KIND, FILECACHE_REDIS_ADDR, ...
const EnvPrefix = "FILECACHE"

// Tier and version store kinds.
const (
	KindNone      = "none"
	KindRistretto = "ristretto"
	KindBigcache  = "bigcache"
	KindRedis     = "redis"
	KindLocal     = "local"
)

type Config struct {
	Root           string        `yaml:"root"`
	IndexSize      int           `yaml:"index_size"`
	Workers        int           `yaml:"workers"`
	QueueDepth     int           `yaml:"queue_depth"`
	RatePerSec     float64       `yaml:"rate_per_sec"`
	Burst          int           `yaml:"burst"`
	AtomicWrites   bool          `yaml:"atomic_writes"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`

	Log      LogConfig      `yaml:"log"`
	Tier     TierConfig     `yaml:"tier"`
	Versions VersionsConfig `yaml:"versions"`
	Redis    RedisConfig    `yaml:"redis"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

type TierConfig struct {
	Kind string `yaml:"kind"`

	// ristretto
	MaxCost     int64 `yaml:"max_cost"`
	NumCounters int64 `yaml:"num_counters"`

	// bigcache
	LifeWindow time.Duration `yaml:"life_window"`
	MaxSizeMB  int           `yaml:"max_size_mb"`

	// redis
	Prefix string `yaml:"prefix"`
}

type VersionsConfig struct {
	Kind      string        `yaml:"kind"` // local or redis
	Namespace string        `yaml:"namespace"`
	TTL       time.Duration `yaml:"ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", "")
	v.SetDefault("index_size", 1024)
	v.SetDefault("workers", 0)
	v.SetDefault("queue_depth", 1024)
	v.SetDefault("rate_per_sec", 0)
	v.SetDefault("burst", 0)
	v.SetDefault("atomic_writes", false)
	v.SetDefault("backend_timeout", 250*time.Millisecond)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("tier.kind", KindNone)
	v.SetDefault("tier.max_cost", 64<<20)
	v.SetDefault("tier.num_counters", 0)
	v.SetDefault("tier.life_window", 10*time.Minute)
	v.SetDefault("tier.max_size_mb", 0)
	v.SetDefault("tier.prefix", "filecache:")
	v.SetDefault("versions.kind", KindLocal)
	v.SetDefault("versions.namespace", "filecache")
	v.SetDefault("versions.ttl", 0)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// Load reads path (YAML) when given, otherwise looks for filecache.yaml in
// the working directory and carries on without one. Environment variables
// override both. The result is validated.
func Load(path string) (*Config, error) { return LoadWith(path, nil) }

// LoadWith is Load with explicit overrides (typically command line flags)
// keyed like the YAML, e.g. "root" or "log.level". They win over everything.
func LoadWith(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(path) > 0 {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		v.SetConfigName("filecache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	decoderOpt := func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
		cfg.TagName = "yaml"
		cfg.WeaklyTypedInput = true
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg, decoderOpt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Root == "" {
		errs = append(errs, errors.New("root is required"))
	}
	if c.IndexSize < 0 {
		errs = append(errs, fmt.Errorf("index_size %d < 0", c.IndexSize))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d < 0", c.Workers))
	}
	if c.QueueDepth < 0 {
		errs = append(errs, fmt.Errorf("queue_depth %d < 0", c.QueueDepth))
	}
	if c.RatePerSec < 0 {
		errs = append(errs, fmt.Errorf("rate_per_sec %v < 0", c.RatePerSec))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or console", c.Log.Format))
	}
	switch c.Tier.Kind {
	case KindNone, "":
	case KindRistretto:
		if c.Tier.MaxCost <= 0 {
			errs = append(errs, errors.New("tier.max_cost must be positive for ristretto"))
		}
	case KindBigcache:
	case KindRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for a redis tier"))
		}
	default:
		errs = append(errs, fmt.Errorf("tier.kind %q is unknown", c.Tier.Kind))
	}
	switch c.Versions.Kind {
	case KindLocal, "":
	case KindRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for redis versions"))
		}
	default:
		errs = append(errs, fmt.Errorf("versions.kind %q is unknown", c.Versions.Kind))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) redisClient() goredis.UniversalClient {
	return goredis.NewClient(&goredis.Options{
		Addr:     c.Redis.Addr,
		Username: c.Redis.Username,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

// NewTier builds the configured memory tier; kind "none" returns nil.
func (c *Config) NewTier(ctx context.Context) (pr.Provider, error) {
	switch c.Tier.Kind {
	case KindNone, "":
		return nil, nil
	case KindRistretto:
		return rp.New(rp.Config{MaxCost: c.Tier.MaxCost, NumCounters: c.Tier.NumCounters})
	case KindBigcache:
		return bcp.New(ctx, bcp.Config{LifeWindow: c.Tier.LifeWindow, HardMaxCacheSizeMB: c.Tier.MaxSizeMB})
	case KindRedis:
		return rdp.New(rdp.Config{Client: c.redisClient(), Prefix: c.Tier.Prefix, CloseClient: true})
	default:
		return nil, fmt.Errorf("tier.kind %q is unknown", c.Tier.Kind)
	}
}

// NewVersionStore builds the configured version store.
func (c *Config) NewVersionStore() (versionstore.Store, error) {
	switch c.Versions.Kind {
	case KindLocal, "":
		return versionstore.NewLocal(), nil
	case KindRedis:
		return versionstore.NewRedis(c.redisClient(), c.Versions.Namespace,
			versionstore.WithTTL(c.Versions.TTL), versionstore.WithCloseClient())
	default:
		return nil, fmt.Errorf("versions.kind %q is unknown", c.Versions.Kind)
	}
}

// Apply copies the storage and scheduling settings into opts. Codec,
// logger, hooks and tier stay the caller's business.
func Apply[V any](c *Config, opts *filecache.Options[V]) {
	opts.Root = c.Root
	opts.IndexSize = c.IndexSize
	opts.Workers = c.Workers
	opts.QueueDepth = c.QueueDepth
	opts.RatePerSec = c.RatePerSec
	opts.Burst = c.Burst
	opts.AtomicWrites = c.AtomicWrites
	opts.BackendTimeout = c.BackendTimeout
}
