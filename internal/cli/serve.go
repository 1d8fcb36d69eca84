package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/procluster/internal/cache"
	"github.com/thebtf/procluster/internal/config"
	"github.com/thebtf/procluster/internal/db/gorm"
	"github.com/thebtf/procluster/internal/runner"
	"github.com/thebtf/procluster/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Watch    string
	Database string
	NoStore  bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the clustering API and dashboard",
		Long: `Start the HTTP API with a live dashboard.

Runs are stored in the settings database (~/.procluster/procluster.db by
default). With --watch, a CSV file or directory is re-clustered on every
change and the result is pushed to dashboard clients.

Example:
  procluster serve
  procluster serve --addr :8080 --watch ./tables`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default settings server_addr)")
	cmd.Flags().StringVar(&opts.Watch, "watch", "", "CSV file or directory to re-cluster on change")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite path or postgres:// DSN (default settings database)")
	cmd.Flags().BoolVar(&opts.NoStore, "no-store", false, "do not store runs")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	r := &runner.Runner{}
	if cfg.RedisAddr != "" {
		c := cache.New(cfg.RedisAddr, cfg.CacheTTL)
		defer c.Close()
		if err := c.Ping(cmd.Context()); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, results will not be cached")
		}
		r.Cache = c
	}
	if !opts.NoStore {
		if opts.Database == "" && cfg.Database == "" {
			if err := config.EnsureDataDir(); err != nil {
				return WrapExitError(ExitFailure, "create data directory", err)
			}
		}
		store, err := openStore(firstNonEmpty(opts.Database, cfg.DatabaseDSN()))
		if err != nil {
			return err
		}
		defer store.Close()
		r.Runs = gorm.NewRunStore(store)
	}

	svc := server.New(server.Options{Config: cfg, Runner: r, Version: opts.Version})
	if opts.Watch != "" {
		if err := svc.Watch(opts.Watch); err != nil {
			return classify("watch", err)
		}
		log.Info().Str("target", opts.Watch).Msg("Re-clustering on change")
	}

	return classify("serve", svc.ListenAndServe(cmd.Context(), firstNonEmpty(opts.Addr, cfg.ServerAddr)))
}
