package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/filecache"
	"github.com/unkn0wn-root/filecache/internal/resolve"
	"github.com/unkn0wn-root/filecache/internal/wire"
)

func newGetCmd(a *app) *cobra.Command {
	var minVersion int64
	cmd := &cobra.Command{
		Use:   "get <key> [--version N]",
		Short: "Print a fresh value. Without --version the entry must be an expiring one.",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			type result struct {
				v   []byte
				ok  bool
				err error
			}
			ch := make(chan result, 1)
			cb := func(v []byte, ok bool, err error) { ch <- result{v, ok, err} }
			if cmd.Flags().Changed("version") {
				a.cache.GetOrOldVersion(args[0], minVersion, cb)
			} else {
				a.cache.GetOrExpire(args[0], cb)
			}

			var r result
			select {
			case r = <-ch:
			case <-time.After(opTimeout):
				return fmt.Errorf("get %q timed out", args[0])
			}
			if r.err != nil {
				return r.err
			}
			if !r.ok {
				return fmt.Errorf("%q: %w", args[0], errMiss)
			}
			_, err := cmd.OutOrStdout().Write(append(r.v, '\n'))
			return err
		}),
	}
	cmd.Flags().Int64Var(&minVersion, "version", 0, "minimum acceptable version")
	return cmd
}

func newPutCmd(a *app) *cobra.Command {
	var (
		ttl     time.Duration
		version int64
	)
	cmd := &cobra.Command{
		Use:   "put <key> <value> (--ttl D | --version N)",
		Short: "Store a value with an expiry or a version.",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			done := make(chan error, 1)
			cb := func(err error) { done <- err }
			if cmd.Flags().Changed("ttl") {
				a.cache.PutWithExpireTime(args[0], []byte(args[1]), ttl, cb)
			} else {
				a.cache.PutWithVersion(args[0], []byte(args[1]), version, cb)
			}
			select {
			case err := <-done:
				if err != nil {
					return err
				}
			case <-time.After(opTimeout):
				return fmt.Errorf("put %q timed out", args[0])
			}
			a.log.Debug("stored", zap.String("key", args[0]), zap.String("path", resolve.Derive(args[0]).Path))
			return nil
		}),
	}
	fs := cmd.Flags()
	fs.DurationVar(&ttl, "ttl", 0, "time to live, e.g. 30s or 1h")
	fs.Int64Var(&version, "version", 0, "entry version")
	cmd.MarkFlagsMutuallyExclusive("ttl", "version")
	cmd.MarkFlagsOneRequired("ttl", "version")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Remove an entry.",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			removed, err := a.cache.Remove(args[0])
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintln(cmd.OutOrStdout(), "removed")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "absent")
			}
			return nil
		}),
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry.",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return a.cache.Clear()
		}),
	}
}

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Print the number of entry files.",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			n, err := a.cache.Len()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "root: %s\nentries: %d\n", a.cfg.Root, n)
			return nil
		}),
	}
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <key>",
		Short: "Print the envelope stored for a key without evaluating it.",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			h := resolve.Derive(args[0])
			raw, ok, err := a.store.Read(h.Path)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%q: %w", args[0], errMiss)
			}
			env, err := wire.Decode(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", h.Path, filecache.ErrDecode)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path: %s\n", h.Path)
			fmt.Fprintf(out, "key: %s\n", env.Key)
			if env.Key != args[0] {
				fmt.Fprintln(out, "collision: true")
			}
			fmt.Fprintf(out, "strategy: %s\n", env.Strategy)
			switch env.Strategy {
			case wire.StrategyExpire:
				exp := time.UnixMilli(env.ExpireAt).UTC()
				fmt.Fprintf(out, "expire_at: %s\n", exp.Format(time.RFC3339Nano))
				fmt.Fprintf(out, "expired: %t\n", !exp.After(time.Now()))
			case wire.StrategyVersion:
				fmt.Fprintf(out, "version: %d\n", env.Version)
			}
			fmt.Fprintf(out, "payload_bytes: %d\n", len(env.Payload))
			return nil
		}),
	}
}
