package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"

	"github.com/thebtf/procluster/internal/cache"
	"github.com/thebtf/procluster/internal/config"
	"github.com/thebtf/procluster/internal/db/gorm"
	"github.com/thebtf/procluster/internal/export"
	"github.com/thebtf/procluster/internal/input"
	"github.com/thebtf/procluster/internal/pipeline"
	"github.com/thebtf/procluster/internal/render"
	"github.com/thebtf/procluster/internal/runner"
	"github.com/thebtf/procluster/pkg/hierarchy"
	"github.com/thebtf/procluster/pkg/models"
)

// JobOptions holds the flags shared by run and watch.
type JobOptions struct {
	*RootOptions
	Input     string
	Dir       string
	Linkage   string
	Delimiter string
	OutDir    string
	Name      string
	Database  string
	Threshold float64
	Clusters  int
	Workers   int
	NoExport  bool
	Tree      bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JobOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [threshold]",
		Short: "Cluster a procedure table once",
		Long: `Cluster the procedures of a CSV table (Procedure, Attributes, Invocations).

Without --input the first *.csv file in --dir is used. The distance matrix,
cluster labels and dendrogram are written to <out>/<name>_*.{csv,pdf} plus
<name>.json unless --no-export is given.

Example:
  procluster run 0.7 --dir ./tables
  procluster run --input procs.csv --clusters 4 --linkage complete
  procluster run --input procs.csv --db ~/.procluster/procluster.db --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(opts, cmd, args)
		},
	}

	opts.bindFlags(cmd)
	return cmd
}

func (o *JobOptions) bindFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.Input, "input", "i", "", "CSV file to cluster")
	f.StringVar(&o.Dir, "dir", "", "directory searched for a CSV file when --input is not set (default settings input_dir or .)")
	f.Float64VarP(&o.Threshold, "threshold", "t", config.DefaultThreshold, "distance threshold for cutting the tree")
	f.IntVarP(&o.Clusters, "clusters", "k", 0, "number of clusters to cut into (replaces the threshold)")
	f.StringVarP(&o.Linkage, "linkage", "l", config.DefaultLinkage, "linkage criterion (single|complete|average|weighted)")
	f.StringVar(&o.Delimiter, "delimiter", models.DefaultDelimiter, "separator of attribute and invocation lists")
	f.IntVar(&o.Workers, "workers", 0, "goroutines computing the distance matrix (0 = GOMAXPROCS)")
	f.StringVarP(&o.OutDir, "out", "o", "", "directory for exported files (default settings output_dir or .)")
	f.StringVar(&o.Name, "name", "", "file name prefix of exports (default settings output_name)")
	f.StringVar(&o.Database, "db", "", "store the run in this SQLite path or postgres:// DSN")
	f.BoolVar(&o.NoExport, "no-export", false, "do not write export files")
	f.BoolVar(&o.Tree, "tree", false, "print the dendrogram as an indented tree")
}

// resolve merges settings, changed flags and the optional positional threshold.
// A selector given on the command line replaces the configured one.
func (o *JobOptions) resolve(cmd *cobra.Command, args []string, cfg *config.Config) (pipeline.Options, error) {
	opts := cfg.PipelineOptions()
	flags := cmd.Flags()

	var threshold *float64
	if flags.Changed("threshold") {
		t := o.Threshold
		threshold = &t
	}
	if len(args) == 1 {
		t, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return opts, fmt.Errorf("%w: threshold %q is not a number", models.ErrConfiguration, args[0])
		}
		if threshold != nil && *threshold != t {
			return opts, fmt.Errorf("%w: threshold given as argument and flag", models.ErrConfiguration)
		}
		threshold = &t
	}
	var count *int
	if flags.Changed("clusters") {
		k := o.Clusters
		count = &k
	}
	if threshold != nil || count != nil {
		opts.Selector = hierarchy.Selector{Threshold: threshold, ClusterCount: count}
	}

	if flags.Changed("linkage") {
		opts.Linkage = hierarchy.Linkage(strings.ToLower(o.Linkage))
	}
	if flags.Changed("delimiter") {
		opts.Delimiter = o.Delimiter
	}
	if flags.Changed("workers") {
		opts.Workers = o.Workers
	}
	return opts, nil
}

// inputPath returns --input, or the CSV discovered in the input directory.
func (o *JobOptions) inputPath(cfg *config.Config) (string, error) {
	if o.Input != "" {
		return o.Input, nil
	}
	return input.Discover(firstNonEmpty(o.Dir, cfg.InputDir, "."))
}

// newRunner builds the runner and returns a func releasing its resources.
func (o *JobOptions) newRunner(cfg *config.Config) (*runner.Runner, func(), error) {
	r := &runner.Runner{OutName: firstNonEmpty(o.Name, cfg.OutputName)}
	if !o.NoExport {
		r.OutDir = firstNonEmpty(o.OutDir, cfg.OutputDir, ".")
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.RedisAddr != "" {
		c := cache.New(cfg.RedisAddr, cfg.CacheTTL)
		r.Cache = c
		closers = append(closers, func() { _ = c.Close() })
	}

	if dsn := firstNonEmpty(o.Database, cfg.Database); dsn != "" {
		store, err := openStore(dsn)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		r.Runs = gorm.NewRunStore(store)
		closers = append(closers, func() { _ = store.Close() })
	}
	return r, cleanup, nil
}

func openStore(dsn string) (*gorm.Store, error) {
	if gorm.DialectOf(dsn) == gorm.DialectSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0750); err != nil {
			return nil, WrapExitError(ExitFailure, "create database directory", err)
		}
	}
	store, err := gorm.NewStore(gorm.Config{DSN: dsn, LogLevel: logger.Silent})
	if err != nil {
		return nil, WrapExitError(ExitFailure, "open database", err)
	}
	return store, nil
}

func runOnce(opts *JobOptions, cmd *cobra.Command, args []string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	popts, err := opts.resolve(cmd, args, cfg)
	if err != nil {
		return classify("invalid options", err)
	}
	path, err := opts.inputPath(cfg)
	if err != nil {
		return classify("find input", err)
	}

	r, cleanup, err := opts.newRunner(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return execute(cmd, opts, r, path, popts)
}

// execute clusters one input file and reports the outcome.
func execute(cmd *cobra.Command, opts *JobOptions, r *runner.Runner, path string, popts pipeline.Options) error {
	records, err := input.Load(path)
	if err != nil {
		return classify("load input", err)
	}
	log.Debug().Str("input", path).Int("procedures", len(records)).Str("selector", popts.Selector.String()).Msg("Clustering")

	out, err := r.Execute(cmd.Context(), path, records, popts)
	if err != nil {
		return classify("cluster", err)
	}
	return report(cmd, opts, path, out)
}

// runReport is the JSON form of one outcome.
type runReport struct {
	Run *models.RunSummary `json:"run,omitempty"`
	export.Document
	Input  string   `json:"input"`
	Files  []string `json:"files,omitempty"`
	Cached bool     `json:"cached"`
}

func report(cmd *cobra.Command, opts *JobOptions, path string, out *runner.Outcome) error {
	res := out.Result
	data := runReport{
		Run:      out.Summary,
		Document: export.NewDocument(res),
		Input:    path,
		Files:    out.Files,
		Cached:   out.Cached,
	}

	return opts.formatter(cmd).Success(data, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROCEDURE\tCLUSTER")
		for i, name := range res.Names {
			fmt.Fprintf(tw, "%s\t%d\n", name, res.Assignment.Labels[i])
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(w, "\n%d procedures, %d clusters (%s linkage, %s)\n",
			len(res.Names), res.Assignment.Count(), res.Tree.Method, res.Options.Selector)
		if opts.Tree {
			var threshold *float64
			if t, ok := res.Threshold(); ok {
				threshold = &t
			}
			fmt.Fprintln(w)
			if err := render.WriteText(w, res.Tree, res.Names, threshold); err != nil {
				return err
			}
		}
		for _, f := range out.Files {
			fmt.Fprintf(w, "wrote %s\n", f)
		}
		if out.Summary != nil {
			fmt.Fprintf(w, "saved run %s\n", out.Summary.ID)
		}
		return nil
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
