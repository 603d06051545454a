package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/filecache"
	"github.com/unkn0wn-root/filecache/codec"
	"github.com/unkn0wn-root/filecache/config"
	zaplog "github.com/unkn0wn-root/filecache/log/zap"
	"github.com/unkn0wn-root/filecache/storage"
)

const opTimeout = 10 * time.Second

var errMiss = errors.New("miss")

type rootFlags struct {
	config   string
	root     string
	logLevel string
}

// app is what every subcommand runs against. It is opened in
// PersistentPreRunE and closed by run once the subcommand returns.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	cache filecache.Cache[[]byte]
	store *storage.Engine
}

func newRootCmd() *cobra.Command {
	rf := new(rootFlags)
	a := new(app)

	cmd := &cobra.Command{
		Use:           "filecache",
		Short:         "Inspect and mutate a filecache directory.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context(), rf)
		},
	}
	fs := cmd.PersistentFlags()
	fs.StringVarP(&rf.config, "config", "c", "", "config file (YAML)")
	fs.StringVar(&rf.root, "root", "", "cache root directory")
	fs.StringVar(&rf.logLevel, "log-level", "", "debug, info, warn or error")

	cmd.AddCommand(
		newGetCmd(a),
		newPutCmd(a),
		newRmCmd(a),
		newClearCmd(a),
		newStatCmd(a),
		newInspectCmd(a),
	)
	return cmd
}

func (a *app) open(ctx context.Context, rf *rootFlags) error {
	overrides := map[string]any{}
	if rf.root != "" {
		overrides["root"] = rf.root
	}
	if rf.logLevel != "" {
		overrides["log.level"] = rf.logLevel
	}
	cfg, err := config.LoadWith(rf.config, overrides)
	if err != nil {
		return fmt.Errorf("fail to load config, %w", err)
	}
	a.cfg = cfg

	if a.log, err = newLogger(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger, %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	tier, err := cfg.NewTier(ctx)
	if err != nil {
		return fmt.Errorf("failed to init tier, %w", err)
	}

	opts := filecache.Options[[]byte]{
		Codec:  codec.Bytes{},
		Tier:   tier,
		Logger: zaplog.New(a.log),
	}
	config.Apply(cfg, &opts)
	if a.cache, err = filecache.New(opts); err != nil {
		return fmt.Errorf("failed to open cache, %w", err)
	}
	if a.store, err = storage.NewOS(cfg.Root); err != nil {
		return fmt.Errorf("failed to open storage, %w", err)
	}
	a.log.Debug("cache opened", zap.String("root", cfg.Root), zap.String("tier", cfg.Tier.Kind))
	return nil
}

// run wraps a subcommand body so the cache is closed whatever it returns.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		return errors.Join(err, a.close())
	}
}

func (a *app) close() error {
	var err error
	if a.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		err = a.cache.Close(ctx)
		cancel()
		a.cache = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return err
}

func newLogger(lc config.LogConfig) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if lc.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = lvl
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
