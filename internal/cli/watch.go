package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/procluster/internal/watcher"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JobOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch [threshold]",
		Short: "Re-cluster whenever the input table changes",
		Long: `Cluster the input once, then again every time it is written or replaced.

With --input the file is watched; otherwise every *.csv file in --dir is.
Failed runs are logged and watching continues. Stop with Ctrl-C.

Example:
  procluster watch --input procs.csv --no-export
  procluster watch 0.5 --dir ./tables --db ./runs.db`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd, args)
		},
	}

	opts.bindFlags(cmd)
	return cmd
}

func runWatch(opts *JobOptions, cmd *cobra.Command, args []string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	popts, err := opts.resolve(cmd, args, cfg)
	if err != nil {
		return classify("invalid options", err)
	}

	target := opts.Input
	if target == "" {
		target = firstNonEmpty(opts.Dir, cfg.InputDir, ".")
	}

	r, cleanup, err := opts.newRunner(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	onChange := func(path string) {
		if err := execute(cmd, opts, r, path, popts); err != nil {
			log.Error().Err(err).Str("input", path).Msg("Re-clustering failed")
		}
	}

	// initial run, when there is something to cluster
	if path, err := opts.inputPath(cfg); err == nil {
		onChange(path)
	} else {
		log.Warn().Err(err).Str("target", target).Msg("Nothing to cluster yet")
	}

	w, err := watcher.New(target, onChange)
	if err != nil {
		return classify("watch", err)
	}
	if err := w.Start(); err != nil {
		return classify("watch", err)
	}
	defer func() { _ = w.Stop() }()

	log.Info().Str("target", target).Msg("Watching for changes")
	<-cmd.Context().Done()
	log.Info().Msg("Stopped watching")
	return nil
}
