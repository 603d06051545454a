package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/filecache"
	"github.com/unkn0wn-root/filecache/codec"
	"github.com/unkn0wn-root/filecache/versionstore"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "filecache.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadFile(t *testing.T) {
	p := writeFile(t, `
root: /var/cache/app
index_size: 64
workers: 3
queue_depth: "128"
atomic_writes: true
backend_timeout: 1s
log:
  level: debug
  format: json
tier:
  kind: ristretto
  max_cost: 1048576
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "/var/cache/app", cfg.Root)
	require.Equal(t, 64, cfg.IndexSize)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, 128, cfg.QueueDepth, "weakly typed input")
	require.True(t, cfg.AtomicWrites)
	require.Equal(t, time.Second, cfg.BackendTimeout)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, KindRistretto, cfg.Tier.Kind)
	require.EqualValues(t, 1<<20, cfg.Tier.MaxCost)
	require.Equal(t, KindLocal, cfg.Versions.Kind, "default kept")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	p := writeFile(t, "root: /tmp/x\nroot_dir: /tmp/y\n")
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	p := writeFile(t, "root: /from/file\n")
	t.Setenv("FILECACHE_ROOT", "/from/env")
	t.Setenv("FILECACHE_TIER_KIND", "bigcache")

	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "/from/env", cfg.Root)
	require.Equal(t, KindBigcache, cfg.Tier.Kind)
}

func TestLoadWithOverrides(t *testing.T) {
	p := writeFile(t, "root: /from/file\nlog:\n  level: warn\n")
	t.Setenv("FILECACHE_ROOT", "/from/env")

	cfg, err := LoadWith(p, map[string]any{"root": "/from/flag", "log.level": "debug"})
	require.NoError(t, err)
	require.Equal(t, "/from/flag", cfg.Root)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FILECACHE_ROOT", "/env/only")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/env/only", cfg.Root)
	require.Equal(t, 1024, cfg.IndexSize)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Root: "/r",
			Log:  LogConfig{Level: "info", Format: "console"},
			Tier: TierConfig{Kind: KindNone},
		}
	}
	ok := base()
	require.NoError(t, ok.Validate())

	cases := map[string]func(*Config){
		"no root":        func(c *Config) { c.Root = "" },
		"negative index": func(c *Config) { c.IndexSize = -1 },
		"bad level":      func(c *Config) { c.Log.Level = "loud" },
		"bad tier":       func(c *Config) { c.Tier.Kind = "memcached" },
		"ristretto cost": func(c *Config) { c.Tier.Kind = KindRistretto },
		"redis no addr":  func(c *Config) { c.Tier.Kind = KindRedis },
		"bad versions":   func(c *Config) { c.Versions.Kind = "etcd" },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mut(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestNewTierKinds(t *testing.T) {
	ctx := context.Background()

	none := Config{Tier: TierConfig{Kind: KindNone}}
	tier, err := none.NewTier(ctx)
	require.NoError(t, err)
	require.Nil(t, tier)

	rc := Config{Tier: TierConfig{Kind: KindRistretto, MaxCost: 1 << 20}}
	tier, err = rc.NewTier(ctx)
	require.NoError(t, err)
	require.NotNil(t, tier)
	require.NoError(t, tier.Close(ctx))

	bc := Config{Tier: TierConfig{Kind: KindBigcache, LifeWindow: time.Minute}}
	tier, err = bc.NewTier(ctx)
	require.NoError(t, err)
	require.NotNil(t, tier)
	require.NoError(t, tier.Close(ctx))
}

func TestNewVersionStoreLocal(t *testing.T) {
	c := Config{}
	vs, err := c.NewVersionStore()
	require.NoError(t, err)
	require.IsType(t, &versionstore.Local{}, vs)
}

func TestApply(t *testing.T) {
	cfg := &Config{Root: "/r", IndexSize: 8, Workers: 2, QueueDepth: 4, RatePerSec: 10, Burst: 5, AtomicWrites: true, BackendTimeout: time.Second}
	opts := filecache.Options[string]{Codec: codec.String{}}
	Apply(cfg, &opts)
	require.Equal(t, "/r", opts.Root)
	require.Equal(t, 8, opts.IndexSize)
	require.Equal(t, 2, opts.Workers)
	require.Equal(t, 4, opts.QueueDepth)
	require.Equal(t, 10.0, opts.RatePerSec)
	require.Equal(t, 5, opts.Burst)
	require.True(t, opts.AtomicWrites)
	require.Equal(t, time.Second, opts.BackendTimeout)
	require.NotNil(t, opts.Codec)
}
